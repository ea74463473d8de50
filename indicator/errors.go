package indicator

import "fmt"

// InsufficientDataError reports a series shorter than an indicator's minimum.
// It is a synchronous input contract violation, not a transient fault, so
// callers must not retry it.
type InsufficientDataError struct {
	Indicator string
	Required  int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s requires at least %d samples, got %d", e.Indicator, e.Required, e.Got)
}

func insufficient(indicator string, required, got int) error {
	return &InsufficientDataError{Indicator: indicator, Required: required, Got: got}
}

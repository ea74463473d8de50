package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ruscigno/marketpulse/pkg/cache"
)

// Status classifies a component or the service as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth is one component's check result.
type ComponentHealth struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Duration  string    `json:"duration,omitempty"`
}

// Response is the overall health report.
type Response struct {
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
	Uptime     string            `json:"uptime"`
}

// Checker runs the component checks. Extra checks (streaming connectivity,
// vendor reachability) register as named probe functions.
type Checker struct {
	db        *sqlx.DB
	cache     cache.Cache
	probes    map[string]func(ctx context.Context) error
	logger    *zap.Logger
	startTime time.Time
}

func NewChecker(db *sqlx.DB, c cache.Cache, logger *zap.Logger) *Checker {
	return &Checker{
		db:        db,
		cache:     c,
		probes:    make(map[string]func(ctx context.Context) error),
		logger:    logger,
		startTime: time.Now(),
	}
}

// AddProbe registers an additional named check. Must be called before the
// handler starts serving.
func (c *Checker) AddProbe(name string, probe func(ctx context.Context) error) {
	c.probes[name] = probe
}

// Check runs every component check and folds them into one overall status.
func (c *Checker) Check(ctx context.Context) Response {
	components := []ComponentHealth{c.checkDatabase(ctx), c.checkCache(ctx)}
	for name, probe := range c.probes {
		components = append(components, c.runProbe(ctx, name, probe))
	}

	overall := StatusHealthy
	for _, component := range components {
		switch component.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	return Response{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Components: components,
		Uptime:     time.Since(c.startTime).String(),
	}
}

func (c *Checker) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	component := ComponentHealth{Name: "database", Timestamp: start.UTC()}

	if c.db == nil {
		component.Status = StatusUnhealthy
		component.Message = "database connection not initialized"
		return component
	}
	if err := c.db.PingContext(ctx); err != nil {
		component.Status = StatusUnhealthy
		component.Message = err.Error()
		c.logger.Error("database health check failed", zap.Error(err))
		return component
	}

	stats := c.db.Stats()
	component.Status = StatusHealthy
	if stats.MaxOpenConnections > 0 && stats.OpenConnections > stats.MaxOpenConnections*8/10 {
		component.Status = StatusDegraded
		component.Message = "high connection usage"
	}
	component.Duration = time.Since(start).String()
	return component
}

func (c *Checker) checkCache(ctx context.Context) ComponentHealth {
	start := time.Now()
	component := ComponentHealth{Name: "cache", Timestamp: start.UTC(), Status: StatusHealthy}

	// A round trip through the store is the only reliable liveness signal;
	// the backends themselves degrade failures to misses.
	probeKey := "health:probe"
	c.cache.Set(ctx, probeKey, []byte("ok"), 5*time.Second)
	if _, ok := c.cache.Get(ctx, probeKey); !ok {
		component.Status = StatusDegraded
		component.Message = "cache probe write not readable"
	}
	component.Duration = time.Since(start).String()
	return component
}

func (c *Checker) runProbe(ctx context.Context, name string, probe func(ctx context.Context) error) ComponentHealth {
	start := time.Now()
	component := ComponentHealth{Name: name, Timestamp: start.UTC(), Status: StatusHealthy}
	if err := probe(ctx); err != nil {
		component.Status = StatusUnhealthy
		component.Message = err.Error()
	}
	component.Duration = time.Since(start).String()
	return component
}

// Handler serves the health report; 200 unless any component is unhealthy.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := c.Check(ctx)
		w.Header().Set("Content-Type", "application/json")
		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.logger.Warn("failed to write health response", zap.Error(err))
		}
	})
}

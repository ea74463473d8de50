package cache

import "time"

// Class buckets cached data by freshness requirements. Each class maps to a
// fixed TTL tier.
type Class string

const (
	ClassRealtime   Class = "realtime"
	ClassBars       Class = "bars"
	ClassIndicators Class = "indicators"
	ClassStatistics Class = "statistics"
	ClassHistory    Class = "history"
	ClassSession    Class = "session"
	ClassWatchlist  Class = "watchlist"
	ClassConfig     Class = "config"
)

var classTTLs = map[Class]time.Duration{
	ClassRealtime:   5 * time.Second,
	ClassBars:       60 * time.Second,
	ClassIndicators: 5 * time.Minute,
	ClassStatistics: 15 * time.Minute,
	ClassHistory:    time.Hour,
	ClassSession:    30 * time.Minute,
	ClassWatchlist:  10 * time.Minute,
	ClassConfig:     24 * time.Hour,
}

// TTLFor returns the TTL tier for a data class. Unknown classes get the
// realtime tier so stale data is the failure mode, never sticky data.
func TTLFor(c Class) time.Duration {
	if ttl, ok := classTTLs[c]; ok {
		return ttl
	}
	return classTTLs[ClassRealtime]
}

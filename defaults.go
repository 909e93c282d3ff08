package querycache

import "time"

const (
	defaultEntryTTL     = 30 * time.Minute
	defaultGenRetention = 24 * time.Hour
	defaultSweep        = time.Hour
	defaultRetryDelay   = 200 * time.Millisecond
	defaultRetries      = 1
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

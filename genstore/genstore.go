// Package genstore holds per-key generation counters. The query cache bumps a
// key's generation whenever a fetch is superseded or a value is overwritten
// out of band; a fetch writes its result only if the generation it observed at
// start is still current.
package genstore

import (
	"context"
	"time"
)

type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes entries not bumped within retention (no-op for Redis).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}

package querycache

import (
	"time"

	gen "github.com/unkn0wn-root/querycache/genstore"
	pr "github.com/unkn0wn-root/querycache/provider"
)

type SetCostFunc func(storageKey string, frame []byte) int64

// StoreOptions configure a Store. Namespace and Provider are required.
type StoreOptions struct {
	Namespace string // isolates keys in a shared provider, e.g. "postsctl"
	Provider  pr.Provider

	Logger          Logger        // nil => NopLogger
	Hooks           Hooks         // nil => NopHooks
	EntryTTL        time.Duration // provider TTL per value; 0 => 30m
	GenStore        gen.GenStore  // nil => LocalGenStore
	CleanupInterval time.Duration // local gen sweep; 0 => 1h
	GenRetention    time.Duration // 0 => 24h
	ComputeSetCost  SetCostFunc   // default: len(frame)
	Now             func() time.Time
}

// ClientOptions configure the query controller.
type ClientOptions struct {
	// StaleTime marks successful entries stale once they are older than
	// this. 0 keeps entries fresh until invalidated.
	StaleTime time.Duration
	Retry     RetryPolicy
}

// RetryPolicy bounds automatic fetch retries. Client errors (anything that
// reports a 4xx StatusCode) and context cancellation are never retried.
type RetryPolicy struct {
	Retries   int           // extra attempts after the first; 0 => 1
	Disabled  bool          // no retries at all
	Delay     time.Duration // initial backoff; 0 => 200ms
	Retryable func(error) bool
}

package querycache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

// Client is the query controller: it reads through the Store, collapses
// concurrent fetches of one key into a single call, retries transient
// failures, and discards results from superseded fetches.
type Client struct {
	store     *Store
	log       Logger
	hooks     Hooks
	staleTime time.Duration
	retry     RetryPolicy

	// flight keys are storageKey#generation, so a superseded flight and its
	// replacement never share waiters.
	flights singleflight.Group

	mu        sync.Mutex
	closed    bool
	inflight  map[string]flight
	observers map[string]observer

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

type flight struct {
	sk     string
	gen    uint64
	cancel context.CancelFunc
}

// observer re-runs an active query after its key is invalidated.
type observer struct {
	key     Key
	refetch func(ctx context.Context)
}

func NewClient(store *Store, opts ClientOptions) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("querycache: store is required")
	}
	c := &Client{
		store:     store,
		log:       store.log,
		hooks:     store.hooks,
		staleTime: opts.StaleTime,
		retry:     opts.Retry,
		inflight:  make(map[string]flight),
		observers: make(map[string]observer),
	}
	c.retry.Retries = coalesce(c.retry.Retries, defaultRetries)
	c.retry.Delay = coalesce(c.retry.Delay, defaultRetryDelay)
	if c.retry.Retryable == nil {
		c.retry.Retryable = DefaultRetryable
	}
	c.base, c.stop = context.WithCancel(context.Background())
	return c, nil
}

func (c *Client) Store() *Store { return c.store }

// InvalidateQueries marks every key under prefix stale and refetches the
// ones with an active query in the background. Each refetch supersedes a
// fetch already in flight for its key.
func (c *Client) InvalidateQueries(ctx context.Context, prefix Key) []Key {
	keys := c.store.Invalidate(prefix)
	for _, k := range keys {
		sk := c.store.storageKey(k)
		c.mu.Lock()
		obs, ok := c.observers[sk]
		c.mu.Unlock()
		if !ok {
			continue
		}
		c.goBackground(obs.refetch)
	}
	c.log.Debug("invalidated queries", Fields{"prefix": prefix.String(), "keys": len(keys)})
	return keys
}

// CancelQueries supersedes every in-flight fetch under prefix. Their results
// are discarded and loading entries return to their previous state.
func (c *Client) CancelQueries(ctx context.Context, prefix Key) error {
	var errs []error
	for _, k := range c.store.Keys(prefix) {
		if _, err := c.supersede(ctx, c.store.storageKey(k)); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Unobserve forgets the active queries under prefix without touching their
// cached values. Later invalidations mark those keys stale but do not refetch
// them until a Fetch, Refetch or Query registers them again. It returns the
// number of queries forgotten.
func (c *Client) Unobserve(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for sk, o := range c.observers {
		if o.key.HasPrefix(prefix) {
			delete(c.observers, sk)
			n++
		}
	}
	return n
}

// RemoveQueries drops keys under prefix from the store and forgets their
// active queries.
func (c *Client) RemoveQueries(ctx context.Context, prefix Key) error {
	keys := c.store.Keys(prefix)
	c.mu.Lock()
	for _, k := range keys {
		delete(c.observers, c.store.storageKey(k))
	}
	c.mu.Unlock()
	c.cancelFlights(func(f flight) bool {
		for _, k := range keys {
			if c.store.storageKey(k) == f.sk {
				return true
			}
		}
		return false
	})
	return c.store.Remove(ctx, prefix)
}

// Reset clears the store and all active queries.
func (c *Client) Reset(ctx context.Context) error {
	return c.RemoveQueries(ctx, nil)
}

// Close cancels running fetches, waits for them, and closes the store.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
	return c.store.Close(ctx)
}

func (c *Client) supersede(ctx context.Context, sk string) (uint64, error) {
	g, err := c.store.supersede(ctx, sk)
	if err != nil {
		return 0, err
	}
	c.cancelFlights(func(f flight) bool { return f.sk == sk && f.gen < g })
	return g, nil
}

func (c *Client) cancelFlights(match func(flight) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fk, f := range c.inflight {
		if match(f) {
			f.cancel()
			delete(c.inflight, fk)
		}
	}
}

// beginFlight returns the context a flight runs under. It is detached from
// any caller so one impatient waiter cannot cancel a shared fetch.
func (c *Client) beginFlight(fk, sk string, g uint64) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(c.base)
	c.inflight[fk] = flight{sk: sk, gen: g, cancel: cancel}
	c.wg.Add(1)
	return ctx, func() {
		c.mu.Lock()
		delete(c.inflight, fk)
		c.mu.Unlock()
		cancel()
		c.wg.Done()
	}, nil
}

func (c *Client) goBackground(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		fn(c.base)
	}()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) observe(sk string, o observer) {
	c.mu.Lock()
	c.observers[sk] = o
	c.mu.Unlock()
}

// retryDo runs op with the client's retry policy. Non-retryable errors stop
// immediately and are returned unchanged, and so does any error once ctx
// itself is done.
func retryDo[V any](ctx context.Context, c *Client, sk string, op func() (V, error)) (V, error) {
	if c.retry.Disabled {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.Delay
	b.MaxInterval = 30 * c.retry.Delay

	attempt := 0
	v, err := backoff.Retry(ctx, func() (V, error) {
		attempt++
		v, err := op()
		if err != nil && (ctx.Err() != nil || !c.retry.Retryable(err)) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retry.Retries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.hooks.FetchRetried(sk, attempt, err)
			c.log.Debug("retrying fetch", Fields{"key": sk, "attempt": attempt, "delay": d, "err": err})
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}

// DefaultRetryable retries everything except cancellation and errors
// reporting a 4xx status. A deadline error is retried, since HTTP client
// timeouts surface as one; retryDo stops once the fetch's own context is done.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code < 400 || code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

func flightKey(sk string, g uint64) string {
	return sk + "#" + strconv.FormatUint(g, 10)
}

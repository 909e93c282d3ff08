package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/querycache/codec"
)

// QueryOptions describe one cached read.
type QueryOptions[V any] struct {
	Key Key
	Fn  func(ctx context.Context) (V, error)

	// Codec stores V in the provider; nil => JSON.
	Codec codec.Codec[V]

	// Disabled queries never fetch. They still report cached data.
	Disabled bool

	// StaleTime overrides ClientOptions.StaleTime when positive.
	StaleTime time.Duration
}

// Result is what a query observer sees: cached data plus the entry state.
type Result[V any] struct {
	Data      V
	HasData   bool
	Status    Status
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

func (r Result[V]) IsLoading() bool { return r.Status == StatusLoading }
func (r Result[V]) IsError() bool   { return r.Status == StatusError }
func (r Result[V]) IsSuccess() bool { return r.Status == StatusSuccess }

// flightResult carries a fetched value to every waiter. raw lets a waiter
// with a different V decode its own copy.
type flightResult struct {
	val any
	raw []byte
}

type query[V any] struct {
	c     *Client
	opts  QueryOptions[V]
	codec codec.Codec[V]
	sk    string
}

func newQuery[V any](c *Client, opts QueryOptions[V]) *query[V] {
	q := &query[V]{c: c, opts: opts, codec: opts.Codec}
	if q.codec == nil {
		q.codec = codec.JSON[V]{}
	}
	if opts.Disabled {
		q.sk = c.store.storageKey(opts.Key)
	} else {
		q.sk = c.store.track(opts.Key)
	}
	return q
}

// Fetch returns k's cached value while it is fresh; otherwise it joins (or
// starts) the single in-flight fetch for the key and waits for it. ctx only
// bounds the wait; the shared fetch keeps running for other waiters.
// The key stays active, and is refetched when invalidated, until
// Client.Unobserve or Client.RemoveQueries releases it.
func Fetch[V any](ctx context.Context, c *Client, opts QueryOptions[V]) (V, error) {
	q, err := prepare(c, opts)
	if err != nil {
		var zero V
		return zero, err
	}
	c.observe(q.sk, q.observer())
	return q.fetch(ctx, false)
}

// Prefetch warms the cache for opts.Key without registering an active query.
func Prefetch[V any](ctx context.Context, c *Client, opts QueryOptions[V]) error {
	q, err := prepare(c, opts)
	if err != nil {
		return err
	}
	_, err = q.fetch(ctx, false)
	return err
}

// Refetch supersedes any fetch in flight for opts.Key and waits for a new one.
func Refetch[V any](ctx context.Context, c *Client, opts QueryOptions[V]) (V, error) {
	q, err := prepare(c, opts)
	if err != nil {
		var zero V
		return zero, err
	}
	c.observe(q.sk, q.observer())
	return q.refetch(ctx)
}

// Query is the non-blocking read. It returns the current entry at once and,
// when the entry is missing or stale, starts a background fetch and reports
// loading. An entry in the error state is not retried until invalidated.
func Query[V any](ctx context.Context, c *Client, opts QueryOptions[V]) Result[V] {
	q := newQuery(c, opts)
	r, fresh := q.read(ctx)
	if opts.Disabled || opts.Fn == nil || fresh {
		return r
	}
	c.observe(q.sk, q.observer())

	switch {
	case r.Status == StatusLoading:
		return r
	case r.Status == StatusError && !r.Stale:
		return r
	}

	g, ok := c.store.snapshotGen(ctx, q.sk)
	if !ok || !c.store.markLoading(ctx, opts.Key, q.sk, g) {
		c.goBackground(func(bg context.Context) { _, _ = q.fetch(bg, false) })
		return r
	}
	c.goBackground(func(bg context.Context) { _, _ = q.wait(bg, g) })
	r.Status = StatusLoading
	return r
}

// GetQueryData decodes k's cached value. ok is false when nothing is cached.
func GetQueryData[V any](ctx context.Context, c *Client, k Key, cd codec.Codec[V]) (V, bool, error) {
	var zero V
	if cd == nil {
		cd = codec.JSON[V]{}
	}
	e, ok, err := c.store.Read(ctx, k)
	if err != nil || !ok || !e.HasValue {
		return zero, false, err
	}
	v, err := cd.Decode(e.Value)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", k, err)
	}
	return v, true, nil
}

// SetQueryData replaces k's value with fn(old). fn returns keep=false to
// leave the entry untouched. The write marks the entry fresh and discards
// the result of any fetch that started before it.
func SetQueryData[V any](ctx context.Context, c *Client, k Key, cd codec.Codec[V], fn func(old V, ok bool) (V, bool)) (bool, error) {
	if cd == nil {
		cd = codec.JSON[V]{}
	}
	old, ok, err := GetQueryData(ctx, c, k, cd)
	if err != nil {
		return false, err
	}
	next, keep := fn(old, ok)
	if !keep {
		return false, nil
	}
	raw, err := cd.Encode(next)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", k, err)
	}
	if err := c.store.Write(ctx, k, raw); err != nil {
		return false, err
	}
	return true, nil
}

func prepare[V any](c *Client, opts QueryOptions[V]) (*query[V], error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if opts.Disabled {
		return nil, ErrDisabled
	}
	if opts.Fn == nil {
		return nil, ErrNoFetcher
	}
	return newQuery(c, opts), nil
}

func (q *query[V]) observer() observer {
	return observer{
		key: q.opts.Key,
		refetch: func(ctx context.Context) {
			if _, err := q.refetch(ctx); err != nil {
				q.c.log.Debug("background refetch failed", Fields{"key": q.opts.Key.String(), "err": err})
			}
		},
	}
}

func (q *query[V]) refetch(ctx context.Context) (V, error) {
	var zero V
	g, err := q.c.supersede(ctx, q.sk)
	if err != nil {
		return zero, err
	}
	q.c.store.markLoading(ctx, q.opts.Key, q.sk, g)
	return q.wait(ctx, g)
}

func (q *query[V]) fetch(ctx context.Context, superseded bool) (V, error) {
	r, fresh := q.read(ctx)
	switch {
	case fresh:
		return r.Data, nil
	case superseded && r.HasData && r.Status != StatusLoading:
		// cancelled without a replacement: the reverted value stands
		return r.Data, nil
	}

	g, ok := q.c.store.snapshotGen(ctx, q.sk)
	if !ok {
		// no generation to guard a write with; serve uncached
		return retryDo(ctx, q.c, q.sk, func() (V, error) { return q.opts.Fn(ctx) })
	}
	return q.wait(ctx, g)
}

// wait joins the flight for generation g. A superseded flight sends the
// waiter back through fetch, which serves the cache or joins the current
// flight.
func (q *query[V]) wait(ctx context.Context, g uint64) (V, error) {
	var zero V
	fk := flightKey(q.sk, g)
	ch := q.c.flights.DoChan(fk, func() (any, error) { return q.run(fk, g) })

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if errors.Is(res.Err, errSuperseded) {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			return q.fetch(ctx, true)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return q.value(res.Val)
	}
}

func (q *query[V]) run(fk string, g uint64) (any, error) {
	fctx, done, err := q.c.beginFlight(fk, q.sk, g)
	if err != nil {
		return nil, err
	}
	defer done()

	k := q.opts.Key
	sctx := context.WithoutCancel(fctx)
	if !q.c.store.markLoading(sctx, k, q.sk, g) {
		q.c.hooks.FetchSuperseded(q.sk)
		return nil, errSuperseded
	}

	v, ferr := retryDo(fctx, q.c, q.sk, func() (V, error) { return q.opts.Fn(fctx) })
	if ferr != nil {
		if q.c.base.Err() != nil {
			q.c.store.revertLoading(q.sk)
			return nil, ErrClosed
		}
		if !q.c.store.markError(sctx, k, q.sk, g, ferr) {
			q.c.hooks.FetchSuperseded(q.sk)
			return nil, errSuperseded
		}
		q.c.hooks.FetchFailed(q.sk, ferr)
		q.c.log.Debug("fetch failed", Fields{"key": k.String(), "err": ferr})
		return nil, ferr
	}

	raw, err := q.codec.Encode(v)
	if err != nil {
		err = fmt.Errorf("encode %s: %w", k, err)
		q.c.store.markError(sctx, k, q.sk, g, err)
		return nil, err
	}
	applied, werr := q.c.store.WriteWithGen(sctx, k, raw, g)
	switch {
	case werr != nil:
		// the provider refused the value; waiters still get it
		q.c.store.revertLoading(q.sk)
	case !applied:
		q.c.hooks.FetchSuperseded(q.sk)
		return nil, errSuperseded
	}
	return flightResult{val: v, raw: raw}, nil
}

func (q *query[V]) value(res any) (V, error) {
	var zero V
	fr, ok := res.(flightResult)
	if !ok {
		return zero, fmt.Errorf("querycache: unexpected flight result %T", res)
	}
	if v, ok := fr.val.(V); ok {
		return v, nil
	}
	v, err := q.codec.Decode(fr.raw)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", q.opts.Key, err)
	}
	return v, nil
}

// read returns the entry as a Result and whether it can be served without
// fetching.
func (q *query[V]) read(ctx context.Context) (Result[V], bool) {
	var r Result[V]
	e, ok, err := q.c.store.Read(ctx, q.opts.Key)
	if err != nil {
		q.c.log.Warn("cache read failed", Fields{"key": q.opts.Key.String(), "err": err})
	}
	if !ok {
		return r, false
	}
	r.Status = e.Status
	r.Err = e.Err
	r.Stale = e.Stale
	r.UpdatedAt = e.UpdatedAt
	if e.HasValue {
		v, derr := q.codec.Decode(e.Value)
		if derr != nil {
			q.c.log.Warn("cached value decode failed", Fields{"key": q.opts.Key.String(), "err": derr})
		} else {
			r.Data = v
			r.HasData = true
		}
	}
	if st := q.staleTime(); st > 0 && r.HasData && q.c.store.now().Sub(r.UpdatedAt) > st {
		r.Stale = true
	}
	return r, r.HasData && !r.Stale && r.Status != StatusError
}

func (q *query[V]) staleTime() time.Duration {
	if q.opts.StaleTime > 0 {
		return q.opts.StaleTime
	}
	return q.c.staleTime
}

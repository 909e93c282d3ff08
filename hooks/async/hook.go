// Package asynchook moves querycache hook calls off the fetch path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := querycache.NewStore(querycache.StoreOptions{
//	    Namespace: "postsctl",
//	    Provider:  p,
//	    Hooks:     hooks,
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
)

type Hooks struct {
	inner   querycache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(inner querycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Hooks must not be
// called after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHealEntry(k, r string)        { h.try(func() { h.inner.SelfHealEntry(k, r) }) }
func (h *Hooks) FetchSuperseded(k string)         { h.try(func() { h.inner.FetchSuperseded(k) }) }
func (h *Hooks) FetchFailed(k string, err error)  { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.inner.GenBumpError(k, err) }) }
func (h *Hooks) ProviderSetRejected(k string, err error) {
	h.try(func() { h.inner.ProviderSetRejected(k, err) })
}
func (h *Hooks) FetchRetried(k string, attempt int, err error) {
	h.try(func() { h.inner.FetchRetried(k, attempt, err) })
}
func (h *Hooks) MutationRolledBack(n int, err error) {
	h.try(func() { h.inner.MutationRolledBack(n, err) })
}
func (h *Hooks) GenSnapshotError(n int, err error) {
	h.try(func() { h.inner.GenSnapshotError(n, err) })
}

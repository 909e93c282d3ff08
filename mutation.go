package querycache

import (
	"context"
	"sync"
)

// MutationStatus is the state of the most recent Execute call.
type MutationStatus uint8

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return "unknown"
	}
}

// MutationHooks implement optimistic updates. OnBeforeCommit runs before
// the network call and returns the snapshot OnFailure restores. A nil
// OnFailure restores the snapshot into the store.
type MutationHooks[In any] struct {
	OnBeforeCommit func(ctx context.Context, in In) (Snapshot, error)
	OnFailure      func(ctx context.Context, in In, snap Snapshot, err error)
	OnSettled      func(ctx context.Context, in In, err error)
}

type MutationOptions[In, Out any] struct {
	Fn        func(ctx context.Context, in In) (Out, error)
	Hooks     MutationHooks[In]
	OnSuccess func(ctx context.Context, in In, out Out)
}

// MutationState is what a mutation observer sees.
type MutationState[Out any] struct {
	Status MutationStatus
	Data   Out
	Err    error
}

// Mutation runs a write against the server and keeps the cache consistent
// with it. One Mutation may execute concurrently; State reflects the call
// that finished last and IsPending is true while any call runs.
type Mutation[In, Out any] struct {
	c    *Client
	opts MutationOptions[In, Out]

	mu      sync.Mutex
	pending int
	state   MutationState[Out]
}

func NewMutation[In, Out any](c *Client, opts MutationOptions[In, Out]) *Mutation[In, Out] {
	return &Mutation[In, Out]{c: c, opts: opts}
}

// Execute runs the mutation. On failure the optimistic snapshot is rolled
// back before the error, unchanged, is returned. OnSettled always runs last.
// Hooks after the network call run even if ctx is cancelled by then.
func (m *Mutation[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	m.begin()

	var (
		out  Out
		snap Snapshot
		err  error
	)
	if h := m.opts.Hooks.OnBeforeCommit; h != nil {
		snap, err = h(ctx, in)
	}
	if err == nil {
		out, err = m.opts.Fn(ctx, in)
	}

	after := context.WithoutCancel(ctx)
	if err != nil {
		m.rollback(after, in, snap, err)
	} else if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(after, in, out)
	}
	if h := m.opts.Hooks.OnSettled; h != nil {
		h(after, in, err)
	}

	m.finish(out, err)
	return out, err
}

func (m *Mutation[In, Out]) rollback(ctx context.Context, in In, snap Snapshot, err error) {
	if h := m.opts.Hooks.OnFailure; h != nil {
		h(ctx, in, snap, err)
		return
	}
	if snap.Len() == 0 {
		return
	}
	if rerr := m.c.RestoreSnapshot(ctx, snap, err); rerr != nil {
		m.c.log.Error("mutation rollback failed", Fields{"keys": snap.Len(), "err": rerr})
	}
}

func (m *Mutation[In, Out]) begin() {
	m.mu.Lock()
	m.pending++
	m.state.Status = MutationPending
	m.mu.Unlock()
}

func (m *Mutation[In, Out]) finish(out Out, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if err != nil {
		m.state = MutationState[Out]{Status: MutationError, Err: err}
	} else {
		m.state = MutationState[Out]{Status: MutationSuccess, Data: out}
	}
	if m.pending > 0 {
		m.state.Status = MutationPending
	}
}

func (m *Mutation[In, Out]) State() MutationState[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[In, Out]) IsPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending > 0
}

// Reset returns an idle mutation to its initial state.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == 0 {
		m.state = MutationState[Out]{}
	}
}

// RestoreSnapshot is an OnFailure helper for callers that wrap the default
// rollback with their own logic.
func (c *Client) RestoreSnapshot(ctx context.Context, snap Snapshot, cause error) error {
	if err := c.store.Restore(ctx, snap); err != nil {
		return err
	}
	c.hooks.MutationRolledBack(snap.Len(), cause)
	return nil
}

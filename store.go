package querycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	gen "github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/internal/util"
	"github.com/unkn0wn-root/querycache/internal/wire"
	pr "github.com/unkn0wn-root/querycache/provider"
)

const lockStripes = 64

// Status is the lifecycle state of one cache entry.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Entry is a point-in-time copy of one cached query. Value holds the codec
// bytes and is owned by the caller.
type Entry struct {
	Key       Key
	Value     []byte
	HasValue  bool
	Status    Status
	Err       error
	Stale     bool
	UpdatedAt time.Time
	ErrorAt   time.Time
	Failures  int
}

// SnapshotItem is one key's value as captured by Snapshot.
type SnapshotItem struct {
	Key       Key
	Value     []byte
	Present   bool
	UpdatedAt time.Time
}

// Snapshot holds the pre-edit values of a key family for rollback.
type Snapshot struct {
	Items []SnapshotItem
}

func (s Snapshot) Len() int { return len(s.Items) }

type meta struct {
	key Key
	sk  string

	// seq identifies the frame currently in the provider; 0 = no value.
	seq uint64

	status   Status
	settled  Status // status to return to when a loading fetch is superseded
	err      error
	stale    bool
	updated  time.Time
	errorAt  time.Time
	failures int
}

// Store is the process-wide keyed cache of query results. Values live in a
// Provider framed with a write sequence; per-key status lives in memory.
// Construct one per process and hand it to a Client.
type Store struct {
	ns             string
	provider       pr.Provider
	gens           gen.GenStore
	log            Logger
	hooks          Hooks
	ttl            time.Duration
	computeSetCost SetCostFunc
	now            func() time.Time

	seq atomic.Uint64

	// stripe locks serialise provider access per key; take before mu.
	locks [lockStripes]sync.RWMutex

	mu      sync.RWMutex
	entries map[string]*meta
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("querycache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("querycache: namespace is required")
	}

	s := &Store{
		ns:       opts.Namespace,
		provider: opts.Provider,
		entries:  make(map[string]*meta),
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.ttl = coalesce[time.Duration](opts.EntryTTL, defaultEntryTTL)

	if opts.ComputeSetCost != nil {
		s.computeSetCost = opts.ComputeSetCost
	} else {
		s.computeSetCost = func(_ string, frame []byte) int64 { return int64(len(frame)) }
	}
	if opts.Now != nil {
		s.now = opts.Now
	} else {
		s.now = time.Now
	}

	if opts.GenStore != nil {
		s.gens = opts.GenStore
	} else {
		s.gens = gen.NewLocalGenStore(
			coalesce[time.Duration](opts.CleanupInterval, defaultSweep),
			coalesce[time.Duration](opts.GenRetention, defaultGenRetention),
		)
	}
	return s, nil
}

// Read returns the entry for k. ok is false when the key was never tracked.
// A value that vanished from the provider, fails wire validation, or was
// written by someone else is dropped (self-heal) and reported as absent.
func (s *Store) Read(ctx context.Context, k Key) (Entry, bool, error) {
	sk := s.storageKey(k)
	l := s.lockFor(sk)
	l.RLock()
	defer l.RUnlock()
	return s.readLocked(ctx, sk)
}

func (s *Store) readLocked(ctx context.Context, sk string) (Entry, bool, error) {
	s.mu.RLock()
	m, ok := s.entries[sk]
	var snap meta
	if ok {
		snap = *m
	}
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}

	e := snap.entry()
	if snap.seq == 0 {
		return e, true, nil
	}

	raw, hit, err := s.provider.Get(ctx, sk)
	if err != nil {
		e.dropValue()
		return e, true, err
	}

	reason := "provider_miss"
	if hit {
		seq, ts, payload, derr := wire.DecodeEntry(raw)
		switch {
		case derr != nil:
			reason = "corrupt"
		case seq != snap.seq:
			reason = "seq_mismatch"
		default:
			e.Value = bytes.Clone(payload)
			e.HasValue = true
			e.UpdatedAt = time.Unix(0, ts)
			return e, true, nil
		}
		_ = s.provider.Del(ctx, sk)
	}

	s.mu.Lock()
	if m, ok := s.entries[sk]; ok && m.seq == snap.seq {
		m.seq = 0
		m.dropValue()
	}
	s.mu.Unlock()
	s.hooks.SelfHealEntry(sk, reason)
	s.log.Debug("dropped cached value", Fields{"key": snap.key.String(), "reason": reason})

	e.dropValue()
	return e, true, nil
}

// Write replaces k's value, marks it success, and clears error and stale.
// It bumps k's generation, so fetches already in flight cannot overwrite it.
func (s *Store) Write(ctx context.Context, k Key, value []byte) error {
	_, err := s.write(ctx, k, value, nil, time.Time{})
	return err
}

// WriteWithGen writes only if k's generation still equals observedGen.
// applied=false with a nil error means the generation moved.
func (s *Store) WriteWithGen(ctx context.Context, k Key, value []byte, observedGen uint64) (applied bool, err error) {
	return s.write(ctx, k, value, &observedGen, time.Time{})
}

func (s *Store) write(ctx context.Context, k Key, value []byte, observed *uint64, updated time.Time) (bool, error) {
	sk := s.storageKey(k)
	l := s.lockFor(sk)
	l.Lock()
	defer l.Unlock()

	if observed != nil {
		if g, ok := s.snapshotGen(ctx, sk); !ok || g != *observed {
			s.log.Debug("write skipped (gen mismatch)", Fields{"key": k.String(), "obs": *observed})
			return false, nil
		}
	} else if _, err := s.gens.Bump(ctx, sk); err != nil {
		// a direct edit must outrank every fetch that started before it
		s.hooks.GenBumpError(sk, err)
		s.log.Error("gen bump error", Fields{"key": k.String(), "err": err})
		return false, err
	}

	if updated.IsZero() {
		updated = s.now()
	}
	seq := s.seq.Add(1)
	frame := wire.EncodeEntry(seq, updated.UnixNano(), value)
	ok, err := s.provider.Set(ctx, sk, frame, s.computeSetCost(sk, frame), s.ttl)
	if err == nil && !ok {
		err = ErrProviderRejected
	}

	s.mu.Lock()
	m := s.metaLocked(k, sk)
	if err != nil {
		m.seq = 0
		m.dropValue()
		s.mu.Unlock()
		s.hooks.ProviderSetRejected(sk, err)
		s.log.Warn("provider write failed", Fields{"key": k.String(), "err": err})
		return false, err
	}
	m.seq = seq
	m.status = StatusSuccess
	m.settled = StatusSuccess
	m.err = nil
	m.stale = false
	m.updated = updated
	m.failures = 0
	s.mu.Unlock()
	return true, nil
}

// Invalidate marks every entry under prefix stale and returns their keys.
// Values stay readable until a refetch replaces them. Idempotent.
func (s *Store) Invalidate(prefix Key) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []Key
	for _, m := range s.entries {
		if m.key.HasPrefix(prefix) {
			m.stale = true
			keys = append(keys, m.key)
		}
	}
	return keys
}

// Snapshot captures the current values of every key under prefix.
func (s *Store) Snapshot(ctx context.Context, prefix Key) (Snapshot, error) {
	var snap Snapshot
	var errs []error
	for _, k := range s.Keys(prefix) {
		e, ok, err := s.Read(ctx, k)
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot %s: %w", k, err))
			continue
		}
		if !ok {
			continue
		}
		snap.Items = append(snap.Items, SnapshotItem{
			Key:       k,
			Value:     e.Value,
			Present:   e.HasValue,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return snap, errors.Join(errs...)
}

// Restore writes snapshot values back verbatim, including their original
// update time. Items captured without a value have their value dropped.
func (s *Store) Restore(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, it := range snap.Items {
		if it.Present {
			if _, err := s.write(ctx, it.Key, it.Value, nil, it.UpdatedAt); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", it.Key, err))
			}
			continue
		}
		if err := s.dropValue(ctx, it.Key); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", it.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Remove forgets every key under prefix. Their generations are bumped so
// fetches still in flight cannot resurrect them.
func (s *Store) Remove(ctx context.Context, prefix Key) error {
	var errs []error
	for _, k := range s.Keys(prefix) {
		sk := s.storageKey(k)
		l := s.lockFor(sk)
		l.Lock()
		_, bumpErr := s.gens.Bump(ctx, sk)
		delErr := s.provider.Del(ctx, sk)
		s.mu.Lock()
		delete(s.entries, sk)
		s.mu.Unlock()
		l.Unlock()
		if bumpErr != nil {
			s.hooks.GenBumpError(sk, bumpErr)
		}
		if bumpErr != nil || delErr != nil {
			errs = append(errs, &RemoveError{Key: k, BumpErr: bumpErr, DelErr: delErr})
		}
	}
	return errors.Join(errs...)
}

// Reset removes every entry. Meant for test isolation.
func (s *Store) Reset(ctx context.Context) error {
	return s.Remove(ctx, nil)
}

// Keys lists tracked keys under prefix in no particular order.
func (s *Store) Keys(prefix Key) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []Key
	for _, m := range s.entries {
		if m.key.HasPrefix(prefix) {
			keys = append(keys, m.key)
		}
	}
	return keys
}

// SnapshotGen returns k's current generation; a GenStore failure reads as 0.
func (s *Store) SnapshotGen(ctx context.Context, k Key) uint64 {
	g, _ := s.snapshotGen(ctx, s.storageKey(k))
	return g
}

func (s *Store) Close(ctx context.Context) error {
	var errs []error
	if s.gens != nil {
		errs = append(errs, s.gens.Close(ctx))
	}
	if s.provider != nil {
		errs = append(errs, s.provider.Close(ctx))
	}
	return errors.Join(errs...)
}

// track registers k so family operations see it before its first fetch lands.
func (s *Store) track(k Key) string {
	sk := s.storageKey(k)
	s.mu.Lock()
	s.metaLocked(k, sk)
	s.mu.Unlock()
	return sk
}

// supersede bumps sk's generation so a running fetch cannot write, and
// puts a loading entry back into the state it had before that fetch.
func (s *Store) supersede(ctx context.Context, sk string) (uint64, error) {
	l := s.lockFor(sk)
	l.Lock()
	defer l.Unlock()

	g, err := s.gens.Bump(ctx, sk)
	if err != nil {
		s.hooks.GenBumpError(sk, err)
		s.log.Error("gen bump error", Fields{"key": sk, "err": err})
		return 0, err
	}
	s.mu.Lock()
	if m, ok := s.entries[sk]; ok && m.status == StatusLoading {
		m.status = m.settled
	}
	s.mu.Unlock()
	return g, nil
}

// markLoading moves k to loading if gen is still current.
func (s *Store) markLoading(ctx context.Context, k Key, sk string, g uint64) bool {
	l := s.lockFor(sk)
	l.Lock()
	defer l.Unlock()

	if cur, ok := s.snapshotGen(ctx, sk); !ok || cur != g {
		return false
	}
	s.mu.Lock()
	m := s.metaLocked(k, sk)
	if m.status != StatusLoading {
		m.settled = m.status
	}
	m.status = StatusLoading
	s.mu.Unlock()
	return true
}

// markError records a failed fetch if gen is still current. The previous
// value, if any, stays readable.
func (s *Store) markError(ctx context.Context, k Key, sk string, g uint64, ferr error) bool {
	l := s.lockFor(sk)
	l.Lock()
	defer l.Unlock()

	if cur, ok := s.snapshotGen(ctx, sk); !ok || cur != g {
		return false
	}
	s.mu.Lock()
	m := s.metaLocked(k, sk)
	m.status = StatusError
	m.settled = StatusError
	m.err = ferr
	m.errorAt = s.now()
	m.failures++
	s.mu.Unlock()
	return true
}

// revertLoading undoes markLoading without recording an error, used when
// the client shuts down mid-fetch.
func (s *Store) revertLoading(sk string) {
	s.mu.Lock()
	if m, ok := s.entries[sk]; ok && m.status == StatusLoading {
		m.status = m.settled
	}
	s.mu.Unlock()
}

func (s *Store) dropValue(ctx context.Context, k Key) error {
	sk := s.storageKey(k)
	l := s.lockFor(sk)
	l.Lock()
	defer l.Unlock()

	err := s.provider.Del(ctx, sk)
	s.mu.Lock()
	if m, ok := s.entries[sk]; ok {
		m.seq = 0
		m.dropValue()
	}
	s.mu.Unlock()
	return err
}

func (s *Store) snapshotGen(ctx context.Context, sk string) (uint64, bool) {
	g, err := s.gens.Snapshot(ctx, sk)
	if err != nil {
		// conservative: callers treat this as "generation moved"
		s.hooks.GenSnapshotError(1, err)
		s.log.Warn("gen snapshot error", Fields{"key": sk, "err": err})
		return 0, false
	}
	return g, true
}

func (s *Store) metaLocked(k Key, sk string) *meta {
	m, ok := s.entries[sk]
	if !ok {
		m = &meta{key: append(Key(nil), k...), sk: sk}
		s.entries[sk] = m
	}
	return m
}

func (s *Store) storageKey(k Key) string {
	return util.StorageKey("q:"+s.ns, k.parts())
}

func (s *Store) lockFor(sk string) *sync.RWMutex {
	return &s.locks[xxhash.Sum64String(sk)%lockStripes]
}

func (m *meta) entry() Entry {
	return Entry{
		Key:       append(Key(nil), m.key...),
		Status:    m.status,
		Err:       m.err,
		Stale:     m.stale,
		UpdatedAt: m.updated,
		ErrorAt:   m.errorAt,
		Failures:  m.failures,
	}
}

// dropValue demotes a success without a value back to idle.
func (m *meta) dropValue() {
	if m.status == StatusSuccess {
		m.status = StatusIdle
	}
	if m.settled == StatusSuccess {
		m.settled = StatusIdle
	}
}

func (e *Entry) dropValue() {
	e.Value = nil
	e.HasValue = false
	if e.Status == StatusSuccess {
		e.Status = StatusIdle
	}
}

package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/querycache/internal/wire"
)

// TestStoreWriteReadInvalidate checks that invalidation keeps the value
// readable and only marks it stale.
func TestStoreWriteReadInvalidate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)
	k := Key{"posts", "u1"}

	if _, ok, err := s.Read(ctx, k); ok || err != nil {
		t.Fatalf("Read untracked: ok=%v err=%v", ok, err)
	}
	if err := s.Write(ctx, k, []byte(`[1]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	e, ok, err := s.Read(ctx, k)
	if err != nil || !ok || !e.HasValue || string(e.Value) != `[1]` {
		t.Fatalf("Read: ok=%v err=%v e=%+v", ok, err, e)
	}
	if e.Status != StatusSuccess || e.Stale {
		t.Fatalf("fresh write: status=%v stale=%v", e.Status, e.Stale)
	}

	keys := s.Invalidate(Key{"posts"})
	if len(keys) != 1 || !keys[0].Equal(k) {
		t.Fatalf("Invalidate keys=%v", keys)
	}
	once, _, _ := s.Read(ctx, k)
	if !once.Stale || !once.HasValue || string(once.Value) != `[1]` {
		t.Fatalf("after invalidate: %+v", once)
	}
	if keys := s.Invalidate(Key{"posts"}); len(keys) != 1 {
		t.Fatalf("second Invalidate keys=%v", keys)
	}
	twice, _, _ := s.Read(ctx, k)
	if twice.Stale != once.Stale || twice.Status != once.Status || string(twice.Value) != string(once.Value) ||
		!twice.UpdatedAt.Equal(once.UpdatedAt) || twice.Err != once.Err {
		t.Fatalf("Invalidate not idempotent: once=%+v twice=%+v", once, twice)
	}

	if got := s.Invalidate(Key{"users"}); len(got) != 0 {
		t.Fatalf("unrelated family matched: %v", got)
	}
}

// TestStoreSelfHeal covers the three reasons a framed value gets dropped.
func TestStoreSelfHeal(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	s := newTestStore(t, mp, func(o *StoreOptions) { o.Hooks = h })
	k := Key{"user", "1"}
	sk := s.storageKey(k)

	if err := s.Write(ctx, k, []byte(`{}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mp.put(sk, []byte("garbage"))
	if e, _, _ := s.Read(ctx, k); e.HasValue || e.Status != StatusIdle {
		t.Fatalf("corrupt frame should drop value: %+v", e)
	}

	_ = s.Write(ctx, k, []byte(`{}`))
	mp.put(sk, wire.EncodeEntry(999999, time.Now().UnixNano(), []byte(`{"x":1}`)))
	if e, _, _ := s.Read(ctx, k); e.HasValue {
		t.Fatalf("foreign seq should drop value: %+v", e)
	}

	_ = s.Write(ctx, k, []byte(`{}`))
	_ = mp.Del(ctx, sk)
	if e, _, _ := s.Read(ctx, k); e.HasValue {
		t.Fatalf("evicted value should read as absent: %+v", e)
	}

	want := []string{"corrupt", "seq_mismatch", "provider_miss"}
	if len(h.selfHeals) != len(want) {
		t.Fatalf("self heals=%v", h.selfHeals)
	}
	for i := range want {
		if h.selfHeals[i] != want[i] {
			t.Fatalf("self heals=%v want %v", h.selfHeals, want)
		}
	}
}

// TestStoreSnapshotRestore verifies restore is verbatim, including the
// original update time, and drops values that did not exist at capture.
func TestStoreSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := newTestStore(t, newMemProvider(), func(o *StoreOptions) {
		o.Now = func() time.Time { return clock }
	})
	k := Key{"posts", "u1"}
	_ = s.Write(ctx, k, []byte(`["p1","p2"]`))
	s.track(Key{"posts", "u2"})

	snap, err := s.Snapshot(ctx, Key{"posts"})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("snapshot len=%d want 2", snap.Len())
	}

	clock = now.Add(time.Minute)
	_ = s.Write(ctx, k, []byte(`["p2"]`))
	_ = s.Write(ctx, Key{"posts", "u2"}, []byte(`["p9"]`))

	if err := s.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	e, _, _ := s.Read(ctx, k)
	if string(e.Value) != `["p1","p2"]` {
		t.Fatalf("restored value=%s", e.Value)
	}
	if !e.UpdatedAt.Equal(now) {
		t.Fatalf("restored UpdatedAt=%v want %v", e.UpdatedAt, now)
	}
	if e2, _, _ := s.Read(ctx, Key{"posts", "u2"}); e2.HasValue {
		t.Fatalf("key absent at snapshot should be dropped, got %s", e2.Value)
	}
}

// TestStoreWriteWithGen checks the generation guard.
func TestStoreWriteWithGen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)
	k := Key{"user", "1"}
	sk := s.track(k)

	obs := s.SnapshotGen(ctx, k)
	if _, err := s.supersede(ctx, sk); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	applied, err := s.WriteWithGen(ctx, k, []byte(`1`), obs)
	if err != nil || applied {
		t.Fatalf("stale write: applied=%v err=%v", applied, err)
	}
	applied, err = s.WriteWithGen(ctx, k, []byte(`2`), s.SnapshotGen(ctx, k))
	if err != nil || !applied {
		t.Fatalf("current write: applied=%v err=%v", applied, err)
	}

	// a direct write outranks a fetch that observed the generation before it
	obs = s.SnapshotGen(ctx, k)
	if err := s.Write(ctx, k, []byte(`3`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if applied, err := s.WriteWithGen(ctx, k, []byte(`4`), obs); err != nil || applied {
		t.Fatalf("write after direct edit: applied=%v err=%v", applied, err)
	}
	if e, _, _ := s.Read(ctx, k); string(e.Value) != `3` {
		t.Fatalf("value=%s want 3", e.Value)
	}
}

// TestStoreLoadingRevert verifies supersede returns a loading entry to the
// state it had before the fetch.
func TestStoreLoadingRevert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)
	k := Key{"user", "1"}
	_ = s.Write(ctx, k, []byte(`1`))
	sk := s.storageKey(k)

	g := s.SnapshotGen(ctx, k)
	if !s.markLoading(ctx, k, sk, g) {
		t.Fatalf("markLoading at current gen should succeed")
	}
	if e, _, _ := s.Read(ctx, k); e.Status != StatusLoading || !e.HasValue {
		t.Fatalf("loading entry keeps value: %+v", e)
	}
	if _, err := s.supersede(ctx, sk); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if e, _, _ := s.Read(ctx, k); e.Status != StatusSuccess {
		t.Fatalf("status after supersede=%v want success", e.Status)
	}
	if s.markError(ctx, k, sk, g, errors.New("late")) {
		t.Fatalf("markError with superseded gen must be ignored")
	}
}

type delErrProvider struct {
	*memProvider
	err error
}

func (p *delErrProvider) Del(context.Context, string) error { return p.err }

// TestStoreRemove verifies removal forgets keys and reports delete failures.
func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMemProvider(), nil)
	_ = s.Write(ctx, Key{"posts", "u1"}, []byte(`[]`))
	_ = s.Write(ctx, Key{"users", 0, 100}, []byte(`[]`))

	if err := s.Remove(ctx, Key{"posts"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Read(ctx, Key{"posts", "u1"}); ok {
		t.Fatalf("removed key still tracked")
	}
	if len(s.Keys(nil)) != 1 {
		t.Fatalf("keys=%v", s.Keys(nil))
	}

	sentinel := errors.New("del down")
	s2 := newTestStore(t, &delErrProvider{memProvider: newMemProvider(), err: sentinel}, nil)
	_ = s2.Write(ctx, Key{"user", "1"}, []byte(`1`))
	err := s2.Remove(ctx, Key{"user"})
	var re *RemoveError
	if !errors.As(err, &re) || !errors.Is(err, sentinel) {
		t.Fatalf("want RemoveError wrapping delete error, got %v", err)
	}
}

type rejectProvider struct{ *memProvider }

func (rejectProvider) Set(context.Context, string, []byte, int64, time.Duration) (bool, error) {
	return false, nil
}

func TestStoreProviderRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, rejectProvider{newMemProvider()}, nil)
	if err := s.Write(ctx, Key{"k"}, []byte(`1`)); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("Write err=%v want ErrProviderRejected", err)
	}
	if e, ok, _ := s.Read(ctx, Key{"k"}); !ok || e.HasValue {
		t.Fatalf("rejected write must not leave a value: ok=%v e=%+v", ok, e)
	}
}

package querycache

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/querycache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: append([]byte(nil), value...), exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) put(key string, v []byte) {
	p.mu.Lock()
	p.m[key] = memEntry{v: v}
	p.mu.Unlock()
}

type post struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

type recHooks struct {
	NopHooks
	mu         sync.Mutex
	selfHeals  []string
	superseded int
	retries    int
	failed     int
	rollbacks  int
}

func (h *recHooks) SelfHealEntry(_ string, reason string) {
	h.mu.Lock()
	h.selfHeals = append(h.selfHeals, reason)
	h.mu.Unlock()
}

func (h *recHooks) FetchSuperseded(string) {
	h.mu.Lock()
	h.superseded++
	h.mu.Unlock()
}

func (h *recHooks) FetchRetried(string, int, error) {
	h.mu.Lock()
	h.retries++
	h.mu.Unlock()
}

func (h *recHooks) FetchFailed(string, error) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}

func (h *recHooks) MutationRolledBack(int, error) {
	h.mu.Lock()
	h.rollbacks++
	h.mu.Unlock()
}

func newTestStore(t *testing.T, mp pr.Provider, optsOpt func(*StoreOptions)) *Store {
	t.Helper()
	opts := StoreOptions{Namespace: "test", Provider: mp}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := NewStore(opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func newTestClient(t *testing.T, optsOpt func(*ClientOptions)) (*Client, *memProvider) {
	t.Helper()
	mp := newMemProvider()
	opts := ClientOptions{Retry: RetryPolicy{Delay: time.Millisecond}}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := NewClient(newTestStore(t, mp, nil), opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, mp
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "status " + http.StatusText(e.code) }
func (e statusErr) StatusCode() int { return e.code }

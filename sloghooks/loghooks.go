// Package sloghooks logs querycache events with log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	RetryEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	retryCtr    atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHealEntry(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("querycache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.provider_set_rejected",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) FetchSuperseded(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.fetch_superseded", "key", h.redact(storageKey))
}

func (h *Hooks) FetchRetried(storageKey string, attempt int, err error) {
	if h.l == nil || !sample(h.opts.RetryEvery, &h.retryCtr) {
		return
	}
	h.l.Info("querycache.fetch_retried",
		"key", h.redact(storageKey),
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) FetchFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.fetch_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) MutationRolledBack(keys int, err error) {
	if h.l == nil {
		return
	}
	h.l.Info("querycache.mutation_rolled_back",
		"keys", keys,
		"err", err)
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.gen_snapshot_error",
		"count", count,
		"err", err)
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("querycache.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}

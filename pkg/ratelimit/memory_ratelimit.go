package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMemorySize = 100000
	defaultMemoryTTL  = time.Hour
)

type window struct {
	hits []time.Time // 已记录的请求时间，按写入顺序
}

// MemoryBackend is the in-process fallback backend.
//
// It is safe for concurrent use, but its state is private to the process: when
// it is in use each replica enforces its own limits.
type MemoryBackend struct {
	mu        sync.Mutex
	windows   *expirable.LRU[string, *window]
	penalties *expirable.LRU[string, time.Time]
	size      int
	ttl       time.Duration
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemorySize caps the number of tracked keys; the least recently used key is evicted first.
func WithMemorySize(size int) MemoryOption {
	return func(m *MemoryBackend) {
		if size > 0 {
			m.size = size
		}
	}
}

// WithMemoryTTL sets how long an idle key is retained. It must cover the
// widest window and the longest penalty, see Registry.Retention.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryBackend) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewMemory 创建一个新的基于内存的计数后端
func NewMemory(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		size: defaultMemorySize,
		ttl:  defaultMemoryTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.windows = expirable.NewLRU[string, *window](m.size, nil, m.ttl)
	m.penalties = expirable.NewLRU[string, time.Time](m.size, nil, m.ttl)
	return m
}

var (
	_ Backend        = (*MemoryBackend)(nil)
	_ PenaltyTracker = (*MemoryBackend)(nil)
)

// Check records the attempt and reports the window state for key.
func (m *MemoryBackend) Check(_ context.Context, key Key, rule Rule, now time.Time) (Status, error) {
	k := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows.Get(k)
	if !ok {
		w = &window{}
	}

	// 移除窗口外的旧条目
	cutoff := now.Add(-rule.Window)
	kept := w.hits[:0]
	for _, hit := range w.hits {
		if !hit.Before(cutoff) {
			kept = append(kept, hit)
		}
	}
	w.hits = append(kept, now)
	m.windows.Add(k, w)
	made := len(w.hits)

	if until, penalized := m.penaltyLocked(key, now); penalized {
		return newStatus(rule, now, made, true, until), nil
	}
	if made > rule.Limit {
		var until time.Time
		if rule.Penalty > 0 {
			until = now.Add(rule.Penalty)
			m.penalties.Add(key.PenaltyKey(), until)
		}
		return newStatus(rule, now, made, true, until), nil
	}
	return newStatus(rule, now, made, false, time.Time{}), nil
}

// IsPenalized reports the penalty expiry of key if one is active at now.
func (m *MemoryBackend) IsPenalized(_ context.Context, key Key, now time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.penaltyLocked(key, now)
	return until, ok, nil
}

// ApplyPenalty denies key until now+d.
func (m *MemoryBackend) ApplyPenalty(_ context.Context, key Key, now time.Time, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.penalties.Add(key.PenaltyKey(), now.Add(d))
	return nil
}

func (m *MemoryBackend) penaltyLocked(key Key, now time.Time) (time.Time, bool) {
	pk := key.PenaltyKey()
	until, ok := m.penalties.Get(pk)
	if !ok {
		return time.Time{}, false
	}
	if !now.Before(until) {
		m.penalties.Remove(pk)
		return time.Time{}, false
	}
	return until, true
}

// Clear drops both the counter and the penalty marker of key.
func (m *MemoryBackend) Clear(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows.Remove(key.String())
	m.penalties.Remove(key.PenaltyKey())
	return nil
}

// Len returns the number of tracked counters.
func (m *MemoryBackend) Len() int {
	return m.windows.Len()
}

// Connected is always false: the memory backend is never the shared store.
func (m *MemoryBackend) Connected() bool { return false }

// Close purges all state.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows.Purge()
	m.penalties.Purge()
	return nil
}

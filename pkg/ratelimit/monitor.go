package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultViolationCapacity = 1000
	recentViolations         = 50
)

// RuleViolation summarizes one tripped rule.
type RuleViolation struct {
	Dimension    Dimension  `json:"dimension"`
	Category     Category   `json:"category"`
	Key          string     `json:"key"`
	Limit        int        `json:"limit"`
	RequestsMade int        `json:"requests_made"`
	PenaltyUntil *time.Time `json:"penalty_until,omitempty"`
}

// Violation is one denied request. A request that trips several rules is
// logged once, listing all of them.
type Violation struct {
	ID               string          `json:"id"`
	Timestamp        time.Time       `json:"timestamp"`
	ClientIdentifier string          `json:"client_identifier"`
	Path             string          `json:"path"`
	Method           string          `json:"method,omitempty"`
	ViolatedRules    []RuleViolation `json:"violated_rules"`
}

// Stats is a read-only snapshot for dashboards.
type Stats struct {
	TotalRequests    int64       `json:"total_requests"`
	BlockedRequests  int64       `json:"blocked_requests"`
	BlockRate        float64     `json:"block_rate"`
	RecentViolations []Violation `json:"recent_violations"`
	BackendConnected bool        `json:"backend_connected"`
}

// Monitor keeps running totals and a bounded log of recent violations.
type Monitor struct {
	total   atomic.Int64
	blocked atomic.Int64

	mu         sync.Mutex
	violations []Violation // 环形缓冲区
	next       int
	full       bool
}

// NewMonitor creates a monitor keeping at most capacity violations.
func NewMonitor(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = defaultViolationCapacity
	}
	return &Monitor{violations: make([]Violation, capacity)}
}

// Record accounts for one evaluated request. v is nil for allowed requests.
func (m *Monitor) Record(v *Violation) {
	m.total.Add(1)
	if v == nil {
		return
	}
	m.blocked.Add(1)

	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.violations[m.next] = *v
	m.next = (m.next + 1) % len(m.violations)
	if m.next == 0 {
		m.full = true
	}
}

// Recent returns up to n violations, most recent first.
func (m *Monitor) Recent(n int) []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.next
	if m.full {
		size = len(m.violations)
	}
	n = min(n, size)

	out := make([]Violation, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.violations)) % len(m.violations)
		out = append(out, m.violations[idx])
	}
	return out
}

// Stats returns the current totals, block rate in percent and the last 50 violations.
func (m *Monitor) Stats() Stats {
	// Record 先加 total 再加 blocked，反序读取保证 blocked <= total
	blocked := m.blocked.Load()
	total := m.total.Load()
	return Stats{
		TotalRequests:    total,
		BlockedRequests:  blocked,
		BlockRate:        float64(blocked) / float64(max(1, total)) * 100,
		RecentViolations: m.Recent(recentViolations),
	}
}

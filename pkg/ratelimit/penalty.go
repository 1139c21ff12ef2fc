package ratelimit

import (
	"context"
	"math"
	"time"
)

// PenaltyTracker records cool-down periods that outlive the counting window.
//
// Once applied, a penalty denies the key until it lapses even if the window
// count has already dropped back under the limit. Both backends implement it.
// Check consults and applies penalties on its own; the tracker backs
// Limiter.Penalty and Limiter.ApplyPenalty.
type PenaltyTracker interface {
	IsPenalized(ctx context.Context, key Key, now time.Time) (time.Time, bool, error)
	ApplyPenalty(ctx context.Context, key Key, now time.Time, d time.Duration) error
}

// PenaltyStatus is the penalty state of one key.
type PenaltyStatus struct {
	Key        string     `json:"key"`
	Penalized  bool       `json:"penalized"`
	Until      *time.Time `json:"until,omitempty"`
	RetryAfter int        `json:"retry_after"` // 秒，向上取整
}

func newPenaltyStatus(key Key, now, until time.Time, penalized bool) PenaltyStatus {
	ps := PenaltyStatus{Key: key.String(), Penalized: penalized}
	if penalized {
		ps.Until = &until
		ps.RetryAfter = int(math.Ceil(until.Sub(now).Seconds()))
	}
	return ps
}

// RetryAfter is how long a caller should wait before the key can pass again.
func (s Status) RetryAfter(now time.Time) time.Duration {
	if !s.IsLimited {
		return 0
	}
	if s.Penalized() {
		return max(0, s.PenaltyUntil.Sub(now))
	}
	return max(0, s.WindowEnd.Sub(s.WindowStart))
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// 响应头名称
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderWindow    = "X-RateLimit-Window"
)

// DefaultBypass lists path prefixes that are never rate limited.
var DefaultBypass = []string{"/health", "/metrics", "/docs", "/redoc", "/openapi.json"}

// RuleStatus is the outcome of one selected rule.
type RuleStatus struct {
	Selection
	Status
	Err error // non-nil when the backend failed and the rule was allowed through
}

// Decision is the merged verdict for one request.
type Decision struct {
	Allowed    bool
	Bypassed   bool
	Headers    map[string]string // X-RateLimit-* of the last evaluated rule
	Statuses   []RuleStatus
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1 when denied.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	return max(1, int(math.Ceil(d.RetryAfter.Seconds())))
}

// Violated returns the statuses of every tripped rule.
func (d Decision) Violated() []RuleStatus {
	var out []RuleStatus
	for _, st := range d.Statuses {
		if st.IsLimited {
			out = append(out, st)
		}
	}
	return out
}

// ClearRequest addresses one counter for an administrative reset.
type ClearRequest struct {
	Identifier string    `json:"identifier"`
	Dimension  Dimension `json:"dimension"`
	Category   Category  `json:"category"`
	Endpoint   string    `json:"endpoint,omitempty"`
}

// Limiter evaluates every applicable rule for a request and merges the results.
type Limiter struct {
	selector *Selector
	backend  Backend
	fallback Backend
	monitor  *Monitor
	metrics  *Metrics
	bypass   []string
	now      func() time.Time
}

// Option 限流器的函数式选项
type Option func(*Limiter)

// WithBypass replaces the bypassed path prefixes.
func WithBypass(prefixes ...string) Option {
	return func(l *Limiter) {
		l.bypass = prefixes
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithMetrics exports decisions to prometheus.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithMonitor replaces the monitoring counters.
func WithMonitor(m *Monitor) Option {
	return func(l *Limiter) {
		l.monitor = m
	}
}

// WithFallback registers a local backend that is cleared together with the
// primary one on administrative resets.
func WithFallback(b Backend) Option {
	return func(l *Limiter) {
		l.fallback = b
	}
}

// New creates a limiter. The selector and backend are required.
func New(selector *Selector, backend Backend, opts ...Option) *Limiter {
	l := &Limiter{
		selector: selector,
		backend:  backend,
		bypass:   DefaultBypass,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.monitor == nil {
		l.monitor = NewMonitor(defaultViolationCapacity)
	}
	return l
}

// Bypassed reports whether path is exempt from rate limiting.
func (l *Limiter) Bypassed(path string) bool {
	for _, prefix := range l.bypass {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Evaluate checks every rule that applies to req. Backend failures never
// surface: a failed check counts as allowed and is logged.
func (l *Limiter) Evaluate(ctx context.Context, req Request) Decision {
	if l.Bypassed(req.Path) {
		return Decision{Allowed: true, Bypassed: true}
	}

	now := l.now()
	selections := l.selector.Select(req)
	dec := Decision{
		Allowed:  true,
		Headers:  make(map[string]string, 4),
		Statuses: make([]RuleStatus, 0, len(selections)),
	}

	var violated []RuleViolation
	for _, sel := range selections {
		start := time.Now()
		st, err := l.backend.Check(ctx, sel.Key, sel.Rule, now)
		l.metrics.observeCheck(time.Since(start))
		if err != nil {
			log.Warn().Err(err).Str("key", sel.Key.String()).Msg("rate limit check failed, allowing request")
			l.metrics.backendError()
			st = allowedStatus(sel.Rule, now)
		}

		dec.Statuses = append(dec.Statuses, RuleStatus{Selection: sel, Status: st, Err: err})
		setHeaders(dec.Headers, sel.Rule, st)

		if !st.IsLimited {
			continue
		}
		dec.Allowed = false
		dec.RetryAfter = max(dec.RetryAfter, st.RetryAfter(now))
		l.metrics.violation(sel.Key)

		rv := RuleViolation{
			Dimension:    sel.Key.Dimension,
			Category:     sel.Key.Category,
			Key:          sel.Key.String(),
			Limit:        sel.Rule.Limit,
			RequestsMade: st.RequestsMade,
		}
		if st.Penalized() {
			until := st.PenaltyUntil
			rv.PenaltyUntil = &until
		}
		violated = append(violated, rv)
	}

	l.metrics.decision(dec.Allowed)
	if dec.Allowed {
		l.monitor.Record(nil)
		return dec
	}

	client := ClientIdentifier(req)
	l.monitor.Record(&Violation{
		Timestamp:        now,
		ClientIdentifier: client,
		Path:             req.Path,
		Method:           req.Method,
		ViolatedRules:    violated,
	})
	log.Info().
		Str("client", client).
		Str("path", req.Path).
		Int("violated", len(violated)).
		Dur("retry_after", dec.RetryAfter).
		Msg("rate limit exceeded")
	return dec
}

func setHeaders(h map[string]string, rule Rule, st Status) {
	h[HeaderLimit] = strconv.Itoa(rule.Limit)
	h[HeaderRemaining] = strconv.Itoa(st.Remaining)
	h[HeaderReset] = strconv.FormatInt(st.ResetTime.Unix(), 10)
	h[HeaderWindow] = strconv.Itoa(int(rule.Window.Seconds()))
}

// resolveKey validates an administrative key address against the registry.
func (l *Limiter) resolveKey(req ClearRequest) (Key, error) {
	if !req.Dimension.Valid() {
		return Key{}, fmt.Errorf("%w: dimension %q", ErrUnknownRule, req.Dimension)
	}
	reg := l.selector.Registry()
	if _, ok := reg.Rule(req.Dimension, req.Category); !ok {
		return Key{}, fmt.Errorf("%w: %s/%s", ErrUnknownRule, req.Dimension, req.Category)
	}
	identifier := req.Identifier
	if req.Dimension == DimensionGlobal && strings.TrimSpace(identifier) == "" {
		identifier = systemSubject
	}
	return NewKey(req.Dimension, req.Category, identifier, req.Endpoint), nil
}

// Clear removes the counter and penalty marker addressed by req, on the
// primary backend and on the local fallback.
func (l *Limiter) Clear(ctx context.Context, req ClearRequest) error {
	key, err := l.resolveKey(req)
	if err != nil {
		return err
	}

	err = l.backend.Clear(ctx, key)
	if l.fallback != nil && l.fallback != l.backend {
		err = errors.Join(err, l.fallback.Clear(ctx, key))
	}
	if err != nil {
		log.Error().Err(err).Str("key", key.String()).Msg("failed to clear rate limit")
		return err
	}

	log.Info().Str("key", key.String()).Msg("rate limit cleared")
	return nil
}

func (l *Limiter) tracker() (PenaltyTracker, error) {
	tracker, ok := l.backend.(PenaltyTracker)
	if !ok {
		return nil, ErrPenaltyUnsupported
	}
	return tracker, nil
}

// Penalty reports the penalty state of the key addressed by req.
func (l *Limiter) Penalty(ctx context.Context, req ClearRequest) (PenaltyStatus, error) {
	key, err := l.resolveKey(req)
	if err != nil {
		return PenaltyStatus{}, err
	}
	tracker, err := l.tracker()
	if err != nil {
		return PenaltyStatus{}, err
	}

	now := l.now()
	until, penalized, err := tracker.IsPenalized(ctx, key, now)
	if err != nil {
		return PenaltyStatus{}, err
	}
	return newPenaltyStatus(key, now, until, penalized), nil
}

// ApplyPenalty denies the key addressed by req for d, regardless of its window count.
func (l *Limiter) ApplyPenalty(ctx context.Context, req ClearRequest, d time.Duration) (PenaltyStatus, error) {
	if d <= 0 {
		return PenaltyStatus{}, fmt.Errorf("%w: penalty must be positive, got %s", ErrInvalidRule, d)
	}
	key, err := l.resolveKey(req)
	if err != nil {
		return PenaltyStatus{}, err
	}
	tracker, err := l.tracker()
	if err != nil {
		return PenaltyStatus{}, err
	}

	now := l.now()
	if err := tracker.ApplyPenalty(ctx, key, now, d); err != nil {
		log.Error().Err(err).Str("key", key.String()).Msg("failed to apply penalty")
		return PenaltyStatus{}, err
	}

	log.Info().Str("key", key.String()).Dur("penalty", d).Msg("penalty applied")
	return newPenaltyStatus(key, now, now.Add(d), true), nil
}

// Stats returns the monitoring snapshot.
func (l *Limiter) Stats() Stats {
	stats := l.monitor.Stats()
	stats.BackendConnected = l.Connected()
	return stats
}

// Connected reports whether the active backend is the shared store and reachable.
func (l *Limiter) Connected() bool {
	return l.backend.Connected()
}

// Rules returns the active rule table.
func (l *Limiter) Rules() RuleSet {
	return l.selector.Registry().RuleSet()
}

// Close releases the backends.
func (l *Limiter) Close() error {
	err := l.backend.Close()
	if l.fallback != nil && l.fallback != l.backend {
		err = errors.Join(err, l.fallback.Close())
	}
	return err
}

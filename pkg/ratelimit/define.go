package ratelimit

import (
	"context"
	"time"
)

const (
	keyPrefix     = "rate_limit"     // 所有计数键的前缀
	penaltySuffix = "penalty"        // 惩罚标记键的后缀
	keyTTLBuffer  = 60 * time.Second // 计数键在窗口之外额外保留的时间
	unknownClient = "unknown"
	systemSubject = "system"
)

// Dimension is an independent axis of rate limiting. Every dimension that
// matches a request is enforced at the same time.
type Dimension string

const (
	DimensionIP       Dimension = "per_ip"
	DimensionUser     Dimension = "per_user"
	DimensionEndpoint Dimension = "per_endpoint"
	DimensionGlobal   Dimension = "global"
)

// Dimensions lists every dimension in evaluation order.
var Dimensions = []Dimension{DimensionIP, DimensionUser, DimensionEndpoint, DimensionGlobal}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionIP, DimensionUser, DimensionEndpoint, DimensionGlobal:
		return true
	}
	return false
}

// Category names a rule inside a dimension.
type Category string

const (
	CategoryLogin   Category = "login"
	CategoryUpload  Category = "upload"
	CategoryStrict  Category = "strict"
	CategoryAPI     Category = "api"
	CategoryGeneral Category = "general"
	CategoryExport  Category = "export"
	CategoryBulk    Category = "bulk_operations"
	CategorySystem  Category = "system"
)

// Rule 限流规则，启动时定义，之后不可变
type Rule struct {
	Limit      int           `yaml:"limit" json:"limit"`                                 // 窗口内允许的请求数
	Window     time.Duration `yaml:"window" json:"window"`                               // 滑动窗口长度
	BurstLimit int           `yaml:"burst_limit,omitempty" json:"burst_limit,omitempty"` // 预留，目前只存储
	Penalty    time.Duration `yaml:"penalty,omitempty" json:"penalty,omitempty"`         // 超限后直接拒绝的时长
}

// Request describes an inbound request as seen by the hosting HTTP layer.
type Request struct {
	ClientIP     string
	ForwardedFor string
	Path         string
	Method       string
	UserID       string
	UserRole     string
}

// Status is the outcome of a single rule check.
type Status struct {
	RequestsMade int
	Limit        int
	WindowStart  time.Time
	WindowEnd    time.Time
	Remaining    int
	ResetTime    time.Time
	IsLimited    bool
	PenaltyUntil time.Time // zero when no penalty applies
}

// Penalized reports whether the status was produced by an active penalty.
func (s Status) Penalized() bool {
	return !s.PenaltyUntil.IsZero()
}

// Backend counts requests per key inside a sliding window.
//
// Check always records the attempt, even when the request ends up denied.
type Backend interface {
	Check(ctx context.Context, key Key, rule Rule, now time.Time) (Status, error)
	Clear(ctx context.Context, key Key) error
	Connected() bool
	Close() error
}

// allowedStatus is what a check reports when the backend could not be asked.
func allowedStatus(rule Rule, now time.Time) Status {
	return Status{
		RequestsMade: 0,
		Limit:        rule.Limit,
		WindowStart:  now.Add(-rule.Window),
		WindowEnd:    now,
		Remaining:    rule.Limit,
		ResetTime:    now.Add(rule.Window),
	}
}

// newStatus builds the status for a key once the count and penalty are known.
func newStatus(rule Rule, now time.Time, made int, limited bool, penaltyUntil time.Time) Status {
	st := Status{
		RequestsMade: made,
		Limit:        rule.Limit,
		WindowStart:  now.Add(-rule.Window),
		WindowEnd:    now,
		Remaining:    max(0, rule.Limit-made),
		ResetTime:    now.Add(rule.Window),
		IsLimited:    limited,
		PenaltyUntil: penaltyUntil,
	}
	if !penaltyUntil.IsZero() {
		st.Remaining = 0
		st.ResetTime = penaltyUntil
	}
	return st
}

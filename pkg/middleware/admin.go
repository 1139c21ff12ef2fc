package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/play/throttle/pkg/compile"
	"github.com/play/throttle/pkg/ratelimit"
)

// RuleView 规则的对外展示形式，时长以秒为单位
type RuleView struct {
	Limit          int     `json:"limit"`
	WindowSeconds  float64 `json:"window_seconds"`
	BurstLimit     int     `json:"burst_limit,omitempty"`
	PenaltySeconds float64 `json:"penalty_seconds,omitempty"`
}

// RulesView GET /rules 的响应体
type RulesView struct {
	Rules map[ratelimit.Dimension]map[ratelimit.Category]RuleView `json:"rules"`
	Roles map[string]RuleView                                     `json:"roles"`
}

func newRuleView(rule ratelimit.Rule) RuleView {
	return RuleView{
		Limit:          rule.Limit,
		WindowSeconds:  rule.Window.Seconds(),
		BurstLimit:     rule.BurstLimit,
		PenaltySeconds: rule.Penalty.Seconds(),
	}
}

// AdminRoutes 限流管理接口：
//
//	GET  /stats    监控统计
//	POST /clear    清除某个计数器及其惩罚
//	GET  /rules    当前生效的规则
//	GET  /penalty  查询某个键的惩罚状态（query 参数同 clear 的字段）
//	POST /penalty  手动惩罚某个键，body 额外带 seconds
//
// 访问控制由挂载方负责。
func AdminRoutes(limiter *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, limiter.Stats())
	})

	r.Post("/clear", func(w http.ResponseWriter, r *http.Request) {
		var req ratelimit.ClearRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := validateKey(req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if err := limiter.Clear(r.Context(), req); err != nil {
			writeLimiterError(w, err)
			return
		}
		log.Ctx(r.Context()).Info().Str("identifier", req.Identifier).Msg("rate limit cleared via admin api")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	})

	r.Get("/penalty", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := ratelimit.ClearRequest{
			Identifier: q.Get("identifier"),
			Dimension:  ratelimit.Dimension(q.Get("dimension")),
			Category:   ratelimit.Category(q.Get("category")),
			Endpoint:   q.Get("endpoint"),
		}
		if err := validateKey(req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		status, err := limiter.Penalty(r.Context(), req)
		if err != nil {
			writeLimiterError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Post("/penalty", func(w http.ResponseWriter, r *http.Request) {
		var req PenaltyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := validateKey(req.ClearRequest); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		status, err := limiter.ApplyPenalty(r.Context(), req.ClearRequest, time.Duration(req.Seconds)*time.Second)
		if err != nil {
			writeLimiterError(w, err)
			return
		}
		log.Ctx(r.Context()).Info().Str("key", status.Key).Int("seconds", req.Seconds).Msg("penalty applied via admin api")
		writeJSON(w, http.StatusOK, status)
	})

	r.Get("/rules", func(w http.ResponseWriter, r *http.Request) {
		set := limiter.Rules()
		view := RulesView{
			Rules: make(map[ratelimit.Dimension]map[ratelimit.Category]RuleView, len(set.Rules)),
			Roles: make(map[string]RuleView, len(set.Roles)),
		}
		for dim, cats := range set.Rules {
			view.Rules[dim] = make(map[ratelimit.Category]RuleView, len(cats))
			for cat, rule := range cats {
				view.Rules[dim][cat] = newRuleView(rule)
			}
		}
		for role, rule := range set.Roles {
			view.Roles[role] = newRuleView(rule)
		}
		writeJSON(w, http.StatusOK, view)
	})

	return r
}

// PenaltyRequest POST /penalty 的请求体
type PenaltyRequest struct {
	ratelimit.ClearRequest
	Seconds int `json:"seconds"`
}

func validateKey(req ratelimit.ClearRequest) error {
	if req.Identifier == "" && req.Dimension != ratelimit.DimensionGlobal {
		return errors.New("identifier is required")
	}
	return nil
}

func writeLimiterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ratelimit.ErrUnknownRule), errors.Is(err, ratelimit.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ratelimit.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, ratelimit.ErrPenaltyUnsupported):
		writeError(w, http.StatusNotImplemented, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// Health 健康检查，带上构建信息和后端连接状态
func Health(limiter *ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":            "ok",
			"backend_connected": limiter.Connected(),
		}
		for k, v := range compile.Info() {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	}
}

package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/play/throttle/pkg/meta"
	"github.com/play/throttle/pkg/ratelimit"
)

// TooManyRequests 429 响应体
type TooManyRequests struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Request 把 HTTP 请求转换为限流请求描述
func Request(r *http.Request) (ratelimit.Request, *meta.Meta) {
	m := meta.FromRequest(r)
	return ratelimit.Request{
		ClientIP:     m.ClientIP(),
		ForwardedFor: m.ForwardedFor(),
		Path:         r.URL.Path,
		Method:       r.Method,
		UserID:       m.UserID(),
		UserRole:     m.UserRole(),
	}, m
}

// RateLimit 限流中间件。
// 放行的请求带上 X-RateLimit-* 响应头后交给 next；拒绝的请求直接返回 429。
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, m := Request(r)
			dec := limiter.Evaluate(r.Context(), req)

			for k, v := range dec.Headers {
				w.Header().Set(k, v)
			}

			if !dec.Allowed {
				seconds := dec.RetryAfterSeconds()
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSON(w, http.StatusTooManyRequests, TooManyRequests{
					Error:      "Rate limit exceeded",
					Message:    fmt.Sprintf("Too many requests. Please retry after %d seconds.", seconds),
					RetryAfter: seconds,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(m.Context()))
		})
	}
}

package main

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/play/throttle/pkg/config"
	"github.com/play/throttle/pkg/middleware"
	"github.com/play/throttle/pkg/ratelimit"
)

// newRouter 路由：
//
//	/health                健康检查
//	/metrics               prometheus
//	/admin/rate-limits/*   限流管理
//	/*                     限流后转发到上游
func newRouter(cfg config.Server, limiter *ratelimit.Limiter, gatherer prometheus.Gatherer) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, requestLogger, chimw.Recoverer)

	r.Get("/health", middleware.Health(limiter))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Mount("/admin/rate-limits", middleware.AdminRoutes(limiter))

	upstream, err := newProxy(cfg.Upstream)
	if err != nil {
		return nil, err
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		r.Handle("/*", upstream)
	})
	return r, nil
}

// requestLogger 把带 request_id 的 logger 挂到请求 context 上
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := log.Logger.With().Str("request_id", chimw.GetReqID(r.Context())).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
	})
}

func newProxy(upstream string) (http.Handler, error) {
	if upstream == "" {
		log.Warn().Msg("no upstream configured, only rate limit checks are served")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), nil
	}

	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", upstream)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}

package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/play/throttle/pkg/config"
	"github.com/play/throttle/pkg/logger"
	"github.com/play/throttle/pkg/meta"
	"github.com/play/throttle/pkg/ratelimit"
)

func TestRouter_ProxiesThroughLimiter(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Path+" "+r.Header.Get(meta.HeaderUserID))
	}))
	defer upstream.Close()

	reg := prometheus.NewRegistry()
	sel, err := ratelimit.NewSelector(ratelimit.DefaultRegistry())
	require.NoError(t, err)
	limiter := ratelimit.New(sel, ratelimit.NewMemory(), ratelimit.WithMetrics(ratelimit.NewMetrics(reg)))

	h, err := newRouter(config.Server{Upstream: upstream.URL}, limiter, reg)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL+"/api/projects", nil)
	require.NoError(t, err)
	req.Header.Set(meta.HeaderUserID, "42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/api/projects 42", string(body))
	assert.Equal(t, "10000", resp.Header.Get(ratelimit.HeaderLimit))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `throttle_requests_total{decision="allowed"} 1`)
}

func TestNewProxy(t *testing.T) {
	_, err := newProxy("not a url")
	require.Error(t, err)

	h, err := newProxy("")
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_LogsUpstreamFailure(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.DefaultContextLogger = nil
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	logger.SetupWriter(logger.Config{Level: "debug"}, &buf)

	// 上游已经关闭
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstream.Close()

	sel, err := ratelimit.NewSelector(ratelimit.DefaultRegistry())
	require.NoError(t, err)
	limiter := ratelimit.New(sel, ratelimit.NewMemory())

	h, err := newRouter(config.Server{Upstream: upstream.URL}, limiter, prometheus.NewRegistry())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, buf.String(), "upstream request failed")
	assert.Contains(t, buf.String(), `"request_id"`)
	assert.Contains(t, buf.String(), `"path":"/api/projects"`)
}

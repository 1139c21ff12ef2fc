package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/play/throttle/pkg/meta"
	"github.com/play/throttle/pkg/ratelimit"
	"github.com/play/throttle/pkg/worker"
)

type Options struct {
	URL          string
	Method       string
	Requests     int
	Concurrency  int
	UserID       string
	UserRole     string
	ForwardedFor string
	Timeout      time.Duration
	Client       *http.Client
}

// Report 压测结果
type Report struct {
	Requests   int64             `json:"requests"`
	Allowed    int64             `json:"allowed"`
	Limited    int64             `json:"limited"`
	Failed     int64             `json:"failed"`
	RetryAfter string            `json:"retry_after,omitempty"` // 最后一次 429 的 Retry-After
	Headers    map[string]string `json:"headers"`               // 最后一个响应的 X-RateLimit-* 头
	Elapsed    time.Duration     `json:"elapsed"`
}

var rateLimitHeaders = []string{
	ratelimit.HeaderLimit,
	ratelimit.HeaderRemaining,
	ratelimit.HeaderReset,
	ratelimit.HeaderWindow,
}

// Run 发起 opts.Requests 个请求，最多 opts.Concurrency 个同时进行
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.URL == "" {
		return nil, errors.New("url is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	var (
		allowed, limited, failed atomic.Int64
		mu                       sync.Mutex
		headers                  = make(map[string]string, len(rateLimitHeaders))
		retryAfter               string
	)

	start := time.Now()
	pool := worker.NewPool(opts.Concurrency)
	for range opts.Requests {
		_, err := pool.Do(ctx, func(ctx context.Context) {
			resp, err := send(ctx, client, opts)
			if err != nil {
				failed.Add(1)
				log.Debug().Err(err).Msg("request failed")
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				limited.Add(1)
			case resp.StatusCode >= 500:
				failed.Add(1)
			default:
				allowed.Add(1)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, h := range rateLimitHeaders {
				if v := resp.Header.Get(h); v != "" {
					headers[h] = v
				}
			}
			if v := resp.Header.Get("Retry-After"); v != "" {
				retryAfter = v
			}
		})
		if err != nil {
			break
		}
	}
	pool.Wait()

	report := &Report{
		Allowed:    allowed.Load(),
		Limited:    limited.Load(),
		Failed:     failed.Load(),
		RetryAfter: retryAfter,
		Headers:    headers,
		Elapsed:    time.Since(start),
	}
	report.Requests = report.Allowed + report.Limited + report.Failed
	log.Info().
		Int64("allowed", report.Allowed).
		Int64("limited", report.Limited).
		Int64("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("ratecheck finished")
	return report, ctx.Err()
}

func send(ctx context.Context, client *http.Client, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, nil)
	if err != nil {
		return nil, err
	}
	if opts.UserID != "" {
		req.Header.Set(meta.HeaderUserID, opts.UserID)
	}
	if opts.UserRole != "" {
		req.Header.Set(meta.HeaderUserRole, opts.UserRole)
	}
	if opts.ForwardedFor != "" {
		req.Header.Set(meta.HeaderForwardedFor, opts.ForwardedFor)
	}
	return client.Do(req)
}

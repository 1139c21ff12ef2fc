// ratecheck 对一个地址发起并发请求，统计放行、限流和失败的数量，用于验证部署后的限流规则
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/play/throttle/pkg/logger"
)

func main() {
	var opts Options
	flag.StringVar(&opts.URL, "url", "http://localhost:8080/api/projects", "target url")
	flag.StringVar(&opts.Method, "method", "GET", "http method")
	flag.IntVar(&opts.Requests, "n", 100, "number of requests")
	flag.IntVar(&opts.Concurrency, "c", 10, "concurrent requests")
	flag.StringVar(&opts.UserID, "user", "", "value of X-User-Id")
	flag.StringVar(&opts.UserRole, "role", "", "value of X-User-Role")
	flag.StringVar(&opts.ForwardedFor, "forwarded-for", "", "value of X-Forwarded-For")
	flag.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per request timeout")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	logger.Setup(logger.Config{Level: *level, Pretty: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := Run(ctx, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("ratecheck failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("failed to write report")
	}
}

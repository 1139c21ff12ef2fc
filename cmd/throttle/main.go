package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/play/throttle/pkg/compile"
	"github.com/play/throttle/pkg/config"
	"github.com/play/throttle/pkg/extension"
	"github.com/play/throttle/pkg/logger"
	"github.com/play/throttle/pkg/logger/redislog"
	"github.com/play/throttle/pkg/ratelimit"
)

func main() {
	version := flag.Bool("version", false, "print build info and exit")
	flag.Parse()
	if *version {
		compile.Print()
		return
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Setup(cfg.Log)
	compile.Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("throttle stopped")
	}
	log.Info().Msg("throttle exited")
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		rdb     *redis.Client
		limiter *ratelimit.Limiter
	)

	mgr := extension.NewManager()
	mgr.Register(
		extension.Func("redis", func(context.Context) error {
			rdb = newRedisClient(cfg.Redis)
			return nil
		}, func() {
			if rdb != nil {
				_ = rdb.Close()
			}
		}),
		extension.Func("ratelimit", func(ctx context.Context) (err error) {
			limiter, err = newLimiter(ctx, cfg, rdb, metrics)
			return err
		}, func() {
			if limiter != nil {
				_ = limiter.Close()
			}
		}),
	)
	if err := mgr.LoadAll(ctx); err != nil {
		return err
	}
	defer mgr.ExitAll()

	handler, err := newRouter(cfg.Server, limiter, metrics)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Str("upstream", cfg.Server.Upstream).Msg("throttle listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRedisClient(cfg config.Redis) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	redis.SetLogger(redislog.New())
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// newLimiter 组装规则、后端和限流器。redis 不可达时退回到内存后端。
func newLimiter(ctx context.Context, cfg *config.Config, rdb *redis.Client, reg prometheus.Registerer) (*ratelimit.Limiter, error) {
	set := ratelimit.DefaultRuleSet()
	if cfg.RateLimit.RulesFile != "" {
		f, err := os.Open(cfg.RateLimit.RulesFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		custom, err := ratelimit.LoadRuleSet(f)
		if err != nil {
			return nil, err
		}
		set = set.Merge(custom)
		log.Info().Str("file", cfg.RateLimit.RulesFile).Msg("rate limit rules loaded")
	}

	registry, err := ratelimit.NewRegistry(set)
	if err != nil {
		return nil, err
	}
	selector, err := ratelimit.NewSelector(registry)
	if err != nil {
		return nil, err
	}

	memory := ratelimit.NewMemory(ratelimit.WithMemoryTTL(registry.Retention()))

	var client redis.Cmdable
	if rdb != nil {
		client = rdb
	}
	backend := ratelimit.NewBackend(ctx, client, memory, ratelimit.WithTimeout(cfg.Redis.Timeout))

	return ratelimit.New(selector, backend,
		ratelimit.WithFallback(memory),
		ratelimit.WithBypass(cfg.RateLimit.Bypass...),
		ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
	), nil
}

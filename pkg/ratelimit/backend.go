package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewBackend picks the counting backend at startup. The redis backend is used
// when rdb answers a ping; otherwise fallback is returned and enforcement
// becomes per replica.
func NewBackend(ctx context.Context, rdb redis.Cmdable, fallback *MemoryBackend, opts ...RedisOption) Backend {
	if rdb == nil {
		log.Warn().Msg("no redis client configured, using in-memory rate limiting")
		return fallback
	}

	backend := NewRedis(rdb, opts...)
	if err := backend.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup, using in-memory rate limiting")
		return fallback
	}

	log.Info().Msg("using redis rate limiting backend")
	return backend
}

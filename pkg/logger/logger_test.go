package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	level := SetupWriter(Config{Level: "WARN"}, &buf)
	assert.Equal(t, zerolog.WarnLevel, level)

	log.Info().Msg("hidden")
	log.Warn().Str("key", "rate_limit:per_ip:api:1.2.3.4").Msg("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"key":"rate_limit:per_ip:api:1.2.3.4"`)

	buf.Reset()
	level = SetupWriter(Config{Level: "loud"}, &buf)
	assert.Equal(t, zerolog.InfoLevel, level)
	assert.Contains(t, buf.String(), "unknown log level")
}

func TestSetupWriter_ContextLogger(t *testing.T) {
	defer func() {
		zerolog.DefaultContextLogger = nil
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	var buf bytes.Buffer
	SetupWriter(Config{Level: "info"}, &buf)

	// context 上没有挂 logger 时退回到全局 logger
	log.Ctx(context.Background()).Info().Msg("rate limit cleared via admin api")
	assert.Contains(t, buf.String(), "rate limit cleared via admin api")
}

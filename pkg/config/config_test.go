package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfig, "")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.Timeout)
	assert.Equal(t, []string{"/health", "/metrics", "/docs", "/redoc", "/openapi.json"}, cfg.RateLimit.Bypass)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  addr: ":9000"
  upstream: "http://app:8000"
redis:
  addr: "redis:6379"
  timeout: 100ms
ratelimit:
  rules_file: rules.yaml
log:
  level: debug
  pretty: true
`), 0o644))

	t.Setenv(envConfig, file)
	t.Setenv("THROTTLE_REDIS_DB", "3")
	t.Setenv("THROTTLE_LOG_LEVEL", "warn")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "http://app:8000", cfg.Server.Upstream)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 100*time.Millisecond, cfg.Redis.Timeout)
	assert.Equal(t, "rules.yaml", cfg.RateLimit.RulesFile)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(envConfig, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("THROTTLE_SERVER_ADDR=:7000\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("THROTTLE_SERVER_ADDR") })

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfig, "does-not-exist.yaml")

	_, err := Load(viper.New())
	require.Error(t, err)
}

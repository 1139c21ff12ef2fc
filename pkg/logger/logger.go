package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config 日志配置，对应配置文件中的 log 段
type Config struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	Traced bool   `mapstructure:"traced"`
}

// Setup 设置全局 zerolog 日志，返回最终生效的级别
func Setup(cfg Config) zerolog.Level {
	return SetupWriter(cfg, os.Stderr)
}

// SetupWriter 与 Setup 相同，但写入 w
func SetupWriter(cfg Config, w io.Writer) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	// 没有挂载 logger 的 context 也能通过 log.Ctx 输出
	zerolog.DefaultContextLogger = &log.Logger

	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
	}
	return level
}

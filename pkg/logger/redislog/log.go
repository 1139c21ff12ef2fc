package redislog

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Logger 把 go-redis 内部日志（连接池、重连等）转到 zerolog
//
//	redis.SetLogger(redislog.New())
type Logger struct {
	logger zerolog.Logger
}

func New() *Logger {
	return &Logger{logger: log.Logger.With().Str("component", "redis").Logger()}
}

// Printf 实现 go-redis 的 internal.Logging 接口
func (l *Logger) Printf(ctx context.Context, format string, v ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))

	// 失败类信息总是输出，其余只在 log.traced 打开时输出
	if strings.Contains(msg, "fail") || strings.Contains(msg, "error") {
		l.logger.Warn().Msg(msg)
		return
	}
	if !viper.GetBool("log.traced") {
		return
	}
	l.logger.Debug().Msg(msg)
}

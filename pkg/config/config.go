package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/play/throttle/pkg/logger"
	"github.com/play/throttle/pkg/ratelimit"
)

const (
	envPrefix   = "THROTTLE"
	envConfig   = "THROTTLE_CONFIG"
	defaultFile = "throttle.yaml"
)

type Server struct {
	Addr            string        `mapstructure:"addr"`
	Upstream        string        `mapstructure:"upstream"` // 被保护的后端地址，为空时只提供管理接口
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"` // 为空时使用内存后端
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"` // 单次限流检查的超时
}

type RateLimit struct {
	RulesFile string   `mapstructure:"rules_file"`
	Bypass    []string `mapstructure:"bypass"`
}

// Config 服务配置
type Config struct {
	Server    Server        `mapstructure:"server"`
	Redis     Redis         `mapstructure:"redis"`
	RateLimit RateLimit     `mapstructure:"ratelimit"`
	Log       logger.Config `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.upstream", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", 250*time.Millisecond)
	v.SetDefault("ratelimit.rules_file", "")
	v.SetDefault("ratelimit.bypass", ratelimit.DefaultBypass)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.traced", false)
}

// Load 读取配置，优先级从高到低：环境变量（THROTTLE_ 前缀）、配置文件、默认值。
// 当前目录下的 .env 会先被载入环境变量。配置文件由 THROTTLE_CONFIG 指定，
// 否则尝试 ./throttle.yaml，不存在时忽略。
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := os.Getenv(envConfig)
	if file == "" {
		if _, err := os.Stat(defaultFile); err == nil {
			file = defaultFile
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

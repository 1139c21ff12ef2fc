package ratelimit

import "errors"

var (
	// ErrBackendUnavailable 表示共享存储无法访问（连接失败、超时等）
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
	// ErrInvalidRule 表示规则配置或惩罚参数无效
	ErrInvalidRule = errors.New("invalid rate limit rule")
	// ErrUnknownRule 表示请求的维度或类别不存在
	ErrUnknownRule = errors.New("unknown rate limit rule")
	// ErrPenaltyUnsupported 表示当前后端不支持单独查询或设置惩罚
	ErrPenaltyUnsupported = errors.New("backend does not track penalties")
)

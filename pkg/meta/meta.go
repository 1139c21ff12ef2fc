// Meta 用于在 context.Context 中安全地存储和传递请求元数据
// 线程安全，支持并发读写
package meta

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// metadataKey 用于 context.WithValue 的唯一 key，防止冲突
type metadataKey struct{}

// Meta 结构体用于存储和管理元数据
type Meta struct {
	mu   sync.RWMutex
	ctx  context.Context
	data map[string]any
}

// New 创建一个空的 Meta，关联到 ctx
func New(ctx context.Context) *Meta {
	return &Meta{
		ctx:  ctx,
		data: make(map[string]any),
	}
}

// FromContext 返回 ctx 中携带的 Meta，没有则返回一个新的空 Meta
func FromContext(ctx context.Context) *Meta {
	if m, ok := ctx.Value(metadataKey{}).(*Meta); ok {
		return m
	}
	log.Trace().Msg("no meta found in context")
	return New(ctx)
}

// Set 设置指定 key 的元数据，支持链式调用
func (m *Meta) Set(key string, value any) *Meta {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		m.data = make(map[string]any)
	}
	m.data[key] = value
	return m
}

// Get 获取指定 key 的元数据，如果不存在则返回 nil
func (m *Meta) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil
	}
	return m.data[key]
}

// GetString 获取指定 key 的字符串类型元数据
func (m *Meta) GetString(key string) string {
	return cast.ToString(m.Get(key))
}

// Context 返回带有当前元数据的 context.Context
func (m *Meta) Context() context.Context {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metadataKey{}, m)
}

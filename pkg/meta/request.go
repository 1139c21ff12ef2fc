package meta

import (
	"cmp"
	"context"
	"net"
	"net/http"
	"strings"
)

// 上游鉴权层写入的请求头
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-Ip"
	HeaderUserID       = "X-User-Id"
	HeaderUserRole     = "X-User-Role"
)

// 元数据 key
const (
	MetaClientIP      = "x-meta-client-ip"
	MetaForwardedFor  = "x-meta-forwarded-for"
	MetaRequestMethod = "x-meta-request-method"
	MetaRequestPath   = "x-meta-request-path"
	MetaUserAgent     = "x-meta-user-agent"
	MetaUserID        = "x-meta-user-id"
	MetaUserRole      = "x-meta-user-role"
)

// FromRequest 从 HTTP 请求中提取元数据
// 如果 req 的 context 已经携带 Meta（例如鉴权中间件通过 WithUser 写入），在其基础上补充
func FromRequest(req *http.Request) *Meta {
	data := make(map[string]string, 7)

	data[MetaRequestMethod] = req.Method
	data[MetaRequestPath] = req.URL.Path
	data[MetaUserAgent] = req.UserAgent()
	data[MetaForwardedFor] = req.Header.Get(HeaderForwardedFor)
	data[MetaUserID] = strings.TrimSpace(req.Header.Get(HeaderUserID))
	data[MetaUserRole] = strings.TrimSpace(req.Header.Get(HeaderUserRole))

	// 获取客户端IP
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	data[MetaClientIP] = cmp.Or(strings.TrimSpace(req.Header.Get(HeaderRealIP)), host)

	m := FromContext(req.Context())
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		m.data = make(map[string]any, len(data))
	}
	for k, v := range data {
		if v == "" {
			continue
		}
		// 已有的值优先
		if _, ok := m.data[k]; ok {
			continue
		}
		m.data[k] = v
	}
	return m
}

// WithUser 把已鉴权用户写入 ctx，FromRequest 会优先使用这里的值
func WithUser(ctx context.Context, userID any, role string) context.Context {
	m := FromContext(ctx)
	m.Set(MetaUserID, userID)
	if role != "" {
		m.Set(MetaUserRole, role)
	}
	return context.WithValue(ctx, metadataKey{}, m)
}

// ClientIP 返回客户端直连地址
func (m *Meta) ClientIP() string { return m.GetString(MetaClientIP) }

// ForwardedFor 返回原始的 X-Forwarded-For 值
func (m *Meta) ForwardedFor() string { return m.GetString(MetaForwardedFor) }

// Path 返回请求路径
func (m *Meta) Path() string { return m.GetString(MetaRequestPath) }

// Method 返回请求方法
func (m *Meta) Method() string { return m.GetString(MetaRequestMethod) }

// UserID 返回用户ID，数字类型的ID会被转换成字符串
func (m *Meta) UserID() string { return m.GetString(MetaUserID) }

// UserRole 返回用户角色
func (m *Meta) UserRole() string { return m.GetString(MetaUserRole) }

package extension

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Extension 是一个有加载和退出两个阶段的组件，例如 redis 连接、限流器
type Extension interface {
	Name() string                   // Name 返回扩展的名称
	Load(ctx context.Context) error // Load 加载扩展，如果失败则返回error
	Exit()                          // Exit 退出扩展，不返回error，应确保资源释放
}

// Manager 用于管理扩展的生命周期
type Manager struct {
	mu         sync.Mutex
	registered []Extension // 注册顺序
	loaded     []Extension // 当前已加载的扩展，顺序与注册一致
}

// NewManager 创建一个新的 Manager 实例
func NewManager() *Manager {
	return &Manager{}
}

// Register 注册一个扩展，扩展按注册顺序加载
func (m *Manager) Register(exts ...Extension) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ext := range exts {
		if ext == nil {
			log.Warn().Msg("attempted to register a nil extension")
			continue
		}
		m.registered = append(m.registered, ext)
		log.Trace().Str("extension", ext.Name()).Msg("extension registered")
	}
}

// LoadAll 按注册顺序加载所有扩展。
// 任何一个扩展加载失败时，本次已经加载的扩展会被反向退出，并返回该错误。
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var loaded []Extension
	for _, ext := range m.registered {
		if err := ext.Load(ctx); err != nil {
			log.Error().Err(err).Str("extension", ext.Name()).Msg("failed to load extension")
			exitInReverse(loaded)
			return fmt.Errorf("load extension %q: %w", ext.Name(), err)
		}
		loaded = append(loaded, ext)
		log.Debug().Str("extension", ext.Name()).Msg("extension loaded")
	}

	m.loaded = loaded
	return nil
}

// ExitAll 反向退出所有已加载的扩展
func (m *Manager) ExitAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	exitInReverse(m.loaded)
	m.loaded = nil
}

// Loaded 返回已加载扩展的名称，按加载顺序
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.loaded))
	for _, ext := range m.loaded {
		names = append(names, ext.Name())
	}
	return names
}

func exitInReverse(exts []Extension) {
	for i := len(exts) - 1; i >= 0; i-- {
		exts[i].Exit()
		log.Debug().Str("extension", exts[i].Name()).Msg("extension exited")
	}
}

// funcExtension 用函数拼装的扩展
type funcExtension struct {
	name string
	load func(ctx context.Context) error
	exit func()
}

// Func 用一对函数构造扩展，load 和 exit 都可以为 nil
func Func(name string, load func(ctx context.Context) error, exit func()) Extension {
	return &funcExtension{name: name, load: load, exit: exit}
}

func (f *funcExtension) Name() string { return f.name }

func (f *funcExtension) Load(ctx context.Context) error {
	if f.load == nil {
		return nil
	}
	return f.load(ctx)
}

func (f *funcExtension) Exit() {
	if f.exit != nil {
		f.exit()
	}
}

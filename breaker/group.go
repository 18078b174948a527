package breaker

import (
	"sync"
)

// Group 按键管理一组熔断器
// 每个键（如 gRPC target、下游方法名）惰性创建一个独立的熔断器，
// 不同键之间互不影响
type Group struct {
	cfg      *Config
	opts     []Option
	breakers sync.Map // map[string]Breaker
	mu       sync.Mutex
}

// NewGroup 创建熔断器组
// cfg 作为组内所有熔断器的模板，Name 字段会被各自的键覆盖
func NewGroup(cfg *Config, opts ...Option) *Group {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	return &Group{
		cfg:  cfg,
		opts: opts,
	}
}

// Get 获取或创建指定键的熔断器
func (g *Group) Get(key string) Breaker {
	if v, ok := g.breakers.Load(key); ok {
		return v.(Breaker)
	}

	// 创建路径加锁，避免并发创建时观察者被重复注册
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.breakers.Load(key); ok {
		return v.(Breaker)
	}

	cfg := *g.cfg
	cfg.Name = key
	cb, err := New(&cfg, g.opts...)
	if err != nil {
		// New 仅在配置非法时出错，模板配置已通过校验
		panic(err)
	}

	g.breakers.Store(key, cb)
	return cb
}

// Names 返回组内已创建的熔断器键列表
func (g *Group) Names() []string {
	var names []string
	g.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// Stats 返回组内所有熔断器的统计信息
func (g *Group) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	g.breakers.Range(func(key, value any) bool {
		stats[key.(string)] = value.(Breaker).Stats()
		return true
	})
	return stats
}

// ResetAll 重置组内所有熔断器
func (g *Group) ResetAll() {
	g.breakers.Range(func(_, value any) bool {
		value.(Breaker).Reset()
		return true
	})
}

package ratelimit

import (
	"sync"
)

// Group 按键管理一组限流器
// 每个键（如用户 ID、客户端 IP）惰性创建一个独立的限流器，
// 配置来自同一个模板
type Group struct {
	cfg      *Config
	opts     []Option
	limiters sync.Map // map[string]Limiter
	mu       sync.Mutex
}

// NewGroup 创建限流器组
// cfg 作为组内所有限流器的模板，Name 字段会被各自的键覆盖
func NewGroup(cfg *Config, opts ...Option) *Group {
	return &Group{
		cfg:  cfg,
		opts: opts,
	}
}

// Get 获取或创建指定键的限流器
// 模板配置非法时返回 nil
func (g *Group) Get(key string) Limiter {
	if v, ok := g.limiters.Load(key); ok {
		return v.(Limiter)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.limiters.Load(key); ok {
		return v.(Limiter)
	}

	cfg := *g.cfg
	cfg.Name = key
	l, err := New(&cfg, g.opts...)
	if err != nil {
		return nil
	}

	g.limiters.Store(key, l)
	return l
}

// Stats 返回组内所有限流器的统计信息
func (g *Group) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	g.limiters.Range(func(key, value any) bool {
		stats[key.(string)] = value.(Limiter).Stats()
		return true
	})
	return stats
}

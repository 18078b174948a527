// Package registry 以依赖名为键组织每个外部依赖的弹性组合。
//
// registry 是 Bulwark 弹性层的组装入口，它提供了：
// - 应用持有的注册表，按依赖名构建并查找 Guard，无包级单例
// - Guard：限流器 → 熔断器 → 重试器的调用链组合
// - 可从 config.Loader 批量构建（dependencies 配置段）
// - 聚合各组件的统计快照
//
// ## 基本使用
//
//	reg := registry.New(registry.WithLogger(logger), registry.WithMeter(meter))
//
//	guard, _ := reg.Register(&registry.DependencyConfig{
//	    Name:      "openai",
//	    RateLimit: ratelimit.OpenAILimit(),
//	    Breaker:   &breaker.Config{FailureThreshold: 5},
//	    Retry:     retry.APIRetryPolicy(),
//	})
//
//	err := guard.Do(ctx, func(ctx context.Context) error {
//	    return client.CreateCompletion(ctx, req)
//	})
package registry

import (
	"sort"
	"sync"

	"github.com/ceyewan/bulwark/breaker"
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/config"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/ratelimit"
	"github.com/ceyewan/bulwark/retry"
	"github.com/ceyewan/bulwark/xerrors"
)

// ========================================
// 类型定义 (Type Definitions)
// ========================================

// DependencyConfig 一个外部依赖的弹性配置
// 为 nil 的组件不参与该依赖的调用链
type DependencyConfig struct {
	// Name 依赖名称，注册表中的键
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// RateLimit 限流配置
	RateLimit *ratelimit.Config `json:"ratelimit" yaml:"ratelimit" mapstructure:"ratelimit"`

	// Breaker 熔断配置
	Breaker *breaker.Config `json:"breaker" yaml:"breaker" mapstructure:"breaker"`

	// Retry 重试策略
	Retry *retry.Policy `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// Registry 依赖弹性注册表
// 由应用在启动时构建并持有
type Registry struct {
	logger clog.Logger
	meter  metrics.Meter

	mu     sync.RWMutex
	guards map[string]*Guard
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建空的注册表
func New(opts ...Option) *Registry {
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(clog.String("component", "registry"))
	}

	return &Registry{
		logger: logger,
		meter:  opt.meter,
		guards: make(map[string]*Guard),
	}
}

// FromLoader 从配置加载器构建注册表
// 读取 dependencies 配置段，每项为一个 DependencyConfig
func FromLoader(loader config.Loader, opts ...Option) (*Registry, error) {
	var deps []DependencyConfig
	if err := loader.UnmarshalKey("dependencies", &deps); err != nil {
		return nil, xerrors.Wrap(err, "failed to unmarshal dependencies config")
	}

	r := New(opts...)
	for i := range deps {
		if _, err := r.Register(&deps[i]); err != nil {
			return nil, xerrors.Wrapf(err, "failed to register dependency %q", deps[i].Name)
		}
	}
	return r, nil
}

// ========================================
// 注册与查找 (Registration and Lookup)
// ========================================

// Register 按配置构建 Guard 并注册
// 同名依赖重复注册时返回已有的 Guard
func (r *Registry) Register(cfg *DependencyConfig) (*Guard, error) {
	if cfg == nil || cfg.Name == "" {
		return nil, xerrors.New("registry: dependency name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.guards[cfg.Name]; ok {
		return existing, nil
	}

	guard, err := newGuard(cfg, r.logger, r.meter)
	if err != nil {
		return nil, err
	}
	r.guards[cfg.Name] = guard

	if r.logger != nil {
		r.logger.Info("dependency registered",
			clog.String("dependency", cfg.Name),
			clog.Bool("ratelimit", cfg.RateLimit != nil),
			clog.Bool("breaker", cfg.Breaker != nil),
			clog.Bool("retry", cfg.Retry != nil))
	}
	return guard, nil
}

// Get 查找依赖的 Guard
func (r *Registry) Get(name string) (*Guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	guard, ok := r.guards[name]
	return guard, ok
}

// Names 返回已注册的依赖名，按字典序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats 返回所有依赖的统计快照
func (r *Registry) Stats() map[string]GuardStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]GuardStats, len(r.guards))
	for name, guard := range r.guards {
		stats[name] = guard.Stats()
	}
	return stats
}

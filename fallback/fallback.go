// Package fallback 提供了优雅降级组件，将主操作与降级链和结果缓存组合。
//
// fallback 是 Bulwark 弹性层的核心组件，它提供了：
// - 主操作 + 按优先级排序的降级链 + 可选结果缓存的统一编排
// - 三种策略：快速失败、优雅降级、缓存优先
// - 降级处理器的激活条件：根据主操作的失败原因决定是否启用
// - 缓存兜底：所有降级都失败后读缓存作为最后手段
// - 精确的调用计数（total_calls、primary_success、fallback_used、
//   cache_used、failures），便于监控与测试断言
//
// 缓存基于 otter 实现，降级结果使用比主结果更短的 TTL。
//
// ## 基本使用
//
//	mgr, _ := fallback.NewManager(&fallback.Config{
//	    Name:     "llm_service",
//	    Strategy: fallback.StrategyGraceful,
//	}, fallback.WithLogger(logger))
//
//	mgr.SetPrimary(func(ctx context.Context) (any, error) {
//	    return llm.Analyze(ctx, transcript)
//	})
//	mgr.AddFallback("simplified", simplifiedExtraction, fallback.WithPriority(10))
//	mgr.AddFallback("template", templateOnly, fallback.WithPriority(5))
//
//	result, err := mgr.Execute(ctx, cacheKey)
//	if fallback.IsExhausted(err) {
//	    // 主操作、所有降级和缓存全部失败
//	}
package fallback

import (
	"time"

	"github.com/ceyewan/bulwark/clog"
)

// ========================================
// 类型定义 (Type Definitions)
// ========================================

// Strategy 降级策略
type Strategy string

const (
	// StrategyFailFast 快速失败：主操作失败后立即返回原始错误
	StrategyFailFast Strategy = "fail_fast"
	// StrategyGraceful 优雅降级：主操作失败后依次尝试降级链
	StrategyGraceful Strategy = "graceful"
	// StrategyCacheFirst 缓存优先：有缓存命中时直接返回，不调用主操作
	StrategyCacheFirst Strategy = "cache_first"
)

// Stats 降级管理器统计信息快照
type Stats struct {
	Name               string  `json:"name"`
	Strategy           string  `json:"strategy"`
	TotalCalls         uint64  `json:"total_calls"`
	PrimarySuccess     uint64  `json:"primary_success"`
	PrimarySuccessRate float64 `json:"primary_success_rate"`
	FallbackUsed       uint64  `json:"fallback_used"`
	FallbackRate       float64 `json:"fallback_rate"`
	CacheUsed          uint64  `json:"cache_used"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	Failures           uint64  `json:"failures"`
	FailureRate        float64 `json:"failure_rate"`
	FallbackOptions    int     `json:"fallback_options"`
	CacheSize          int     `json:"cache_size"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 降级管理器配置
type Config struct {
	// Name 管理器名称，通常为被保护的服务名（如 "llm_service"）
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Strategy 降级策略（默认：StrategyGraceful）
	Strategy Strategy `json:"strategy" yaml:"strategy" mapstructure:"strategy"`

	// CacheCapacity 结果缓存容量（默认：1024）
	CacheCapacity int `json:"cache_capacity" yaml:"cache_capacity" mapstructure:"cache_capacity"`

	// CacheTTL 主结果的缓存时长（默认：30m，0 表示不过期）
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// FallbackCacheTTL 降级结果的缓存时长，应短于 CacheTTL（默认：5m）
	FallbackCacheTTL time.Duration `json:"fallback_cache_ttl" yaml:"fallback_cache_ttl" mapstructure:"fallback_cache_ttl"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Strategy == "" {
		c.Strategy = StrategyGraceful
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 1024
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.FallbackCacheTTL <= 0 {
		c.FallbackCacheTTL = 5 * time.Minute
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewManager 创建降级管理器
//
// 参数:
//   - cfg: 管理器配置，nil 时使用默认配置
//   - opts: 可选参数 (Logger, Meter)
func NewManager(cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(
			clog.String("component", "fallback"),
			clog.String("manager", c.Name),
		)
	}

	return newManager(&c, logger, opt.meter)
}

// Package breaker 提供了熔断器组件，保护应用免受依赖故障的级联影响。
//
// breaker 是 Bulwark 弹性层的核心组件，它提供了：
// - 经典三态状态机：Closed / Open / HalfOpen
// - 连续失败计数触发熔断，恢复超时后惰性进入半开探测
// - 半开状态严格限制并发试探调用数量
// - 可配置的单次调用超时，超时计为失败
// - 快照式统计信息，便于监控与测试断言
// - 开箱即用的 gRPC 客户端拦截器
// - 与基础组件（日志、指标）的深度集成
//
// ## 基本使用
//
//	cb, _ := breaker.New(&breaker.Config{
//	    Name:             "openai",
//	    FailureThreshold: 5,
//	    RecoveryTimeout:  60 * time.Second,
//	    SuccessThreshold: 3,
//	    CallTimeout:      30 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	err := cb.Do(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
//	if breaker.IsOpen(err) {
//	    // 熔断器打开，请求未被执行
//	}
//
// ## 可观测性
//
// 通过注入 Logger 和 Meter 实现统一的日志和指标收集：
//
//	cb, _ := breaker.New(cfg,
//	    breaker.WithLogger(logger),
//	    breaker.WithMeter(meter),
//	)
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// State 熔断器状态
type State int

const (
	// StateClosed 正常状态，请求照常通过
	StateClosed State = iota
	// StateOpen 熔断状态，所有请求被快速拒绝
	StateOpen
	// StateHalfOpen 半开状态，放行有限的试探请求
	StateHalfOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Operation 被熔断器保护的操作
type Operation func(ctx context.Context) error

// Breaker 熔断器核心接口
type Breaker interface {
	// Do 通过熔断器执行操作
	// 熔断器打开时返回 *OpenError，此时 op 不会被调用
	// 其余情况下透传 op 的错误，不做任何包装
	//
	// 使用示例:
	//
	//	err := cb.Do(ctx, func(ctx context.Context) error {
	//	    return client.Call(ctx)
	//	})
	Do(ctx context.Context, op Operation) error

	// State 返回当前状态（会惰性评估 Open -> HalfOpen 转换）
	State() State

	// Stats 返回统计信息快照
	Stats() Stats

	// Reset 强制恢复到 Closed 状态并清空计数器
	// 管理操作，不用于正常流量
	Reset()
}

// Stats 熔断器统计信息快照
type Stats struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	TotalRequests        uint64    `json:"total_requests"`
	SuccessfulRequests   uint64    `json:"successful_requests"`
	FailedRequests       uint64    `json:"failed_requests"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	FailureRate          float64   `json:"failure_rate"`
	StateChanges         uint64    `json:"state_changes"`
	LastFailureTime      time.Time `json:"last_failure_time"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// Name 熔断器名称，通常为被保护的依赖名（如 "openai"）
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// FailureThreshold 连续失败多少次后熔断（默认：5）
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// RecoveryTimeout 熔断后多久尝试恢复（默认：60s）
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" mapstructure:"recovery_timeout"`

	// SuccessThreshold 半开状态下连续成功多少次后关闭（默认：3）
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold" mapstructure:"success_threshold"`

	// CallTimeout 单次调用的超时时间，超时计为失败（0 表示不限制）
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`

	// HalfOpenMaxCalls 半开状态下允许的最大并发试探数（默认：1）
	HalfOpenMaxCalls int `json:"half_open_max_calls" yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.CallTimeout < 0 {
		c.CallTimeout = 0
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
//
// 参数:
//   - cfg: 熔断器配置，nil 时使用默认配置
//   - opts: 可选参数 (Logger, Meter, Observer)
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	// 派生 Logger（添加 component 字段）
	logger := opt.logger
	if logger != nil {
		logger = logger.With(
			clog.String("component", "breaker"),
			clog.String("breaker", cfg.Name),
		)
	}

	return newCircuitBreaker(cfg, logger, opt.meter, opt.observers, opt.isFailure)
}

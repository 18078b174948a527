// Package retry 提供了带指数退避的重试组件。
//
// retry 是 Bulwark 弹性层的核心组件，它提供了：
// - 指数退避延迟：base_delay × multiplier^(attempt-1)，上限 max_delay
// - 抖动：延迟乘以 [0.5, 1.0) 的均匀随机因子，避免惊群
// - 基于错误类别的重试判定：永久错误与配额耗尽绝不重试
// - 耗尽后原样返回最后一次的错误，不做任何包装
// - 与基础组件（日志、指标）的深度集成
//
// ## 基本使用
//
//	executor, _ := retry.New(&retry.Policy{
//	    MaxAttempts: 3,
//	    BaseDelay:   time.Second,
//	    MaxDelay:    30 * time.Second,
//	    Multiplier:  2.0,
//	    Jitter:      true,
//	}, retry.WithLogger(logger))
//
//	err := executor.Do(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
//
// ## 重试判定
//
// 默认判定规则基于 xerrors 的错误类别：
//   - KindPermanent 与 ErrQuotaExhausted：立即放弃
//   - context.Canceled：调用方已放弃，不再重试
//   - KindThrottled：携带 retry-after 提示，交由限流/洪控处理，不做指数退避
//   - 其余（KindTransient、KindUnknown）：重试
//
// 可通过 Policy.Retryable 覆盖。
package retry

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/xerrors"
)

// Operation 被重试的操作
type Operation func(ctx context.Context) error

// Executor 重试执行器接口
type Executor interface {
	// Do 按策略重试执行操作
	// 成功返回 nil；不可重试或尝试耗尽时返回最后一次观察到的原始错误
	Do(ctx context.Context, op Operation) error
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Policy 重试策略
type Policy struct {
	// MaxAttempts 最大尝试次数，含首次调用（默认：3）
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay 首次重试前的基础延迟（默认：1s）
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay 延迟上限（默认：60s）
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`

	// Multiplier 指数退避倍率（默认：2.0）
	Multiplier float64 `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`

	// Jitter 是否启用抖动，延迟乘以 [0.5, 1.0) 的随机因子（默认：true）
	Jitter bool `json:"jitter" yaml:"jitter" mapstructure:"jitter"`

	// Retryable 自定义重试判定，nil 时使用 DefaultRetryable
	Retryable func(err error) bool `json:"-" yaml:"-" mapstructure:"-"`
}

// setDefaults 设置默认值
func (p *Policy) setDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
}

// DefaultRetryable 默认重试判定
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if xerrors.Is(err, xerrors.ErrQuotaExhausted) {
		return false
	}
	if xerrors.Is(err, context.Canceled) {
		return false
	}
	switch xerrors.KindOf(err) {
	case xerrors.KindPermanent, xerrors.KindThrottled:
		return false
	default:
		return true
	}
}

// ========================================
// 预设策略 (Presets)
// ========================================

// APIRetryPolicy 通用外部 API 调用的重试策略
func APIRetryPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// TranscriptionRetryPolicy 转写类长任务的重试策略
// 任务本身昂贵，只多试一次
func TranscriptionRetryPolicy() *Policy {
	return &Policy{
		MaxAttempts: 2,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// LLMRetryPolicy LLM 调用的重试策略
func LLMRetryPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    45 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建重试执行器
//
// 参数:
//   - policy: 重试策略，nil 时使用默认策略
//   - opts: 可选参数 (Logger, Meter)
func New(policy *Policy, opts ...Option) (Executor, error) {
	if policy == nil {
		policy = &Policy{}
	}
	p := *policy
	p.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger != nil {
		logger = logger.With(clog.String("component", "retry"))
	}

	return newExecutor(&p, logger, opt.meter)
}

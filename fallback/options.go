package fallback

import (
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger clog.Logger
	meter  metrics.Meter
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// ========================================
// 降级选项 (Fallback Registration Options)
// ========================================

// Predicate 降级激活条件
// 入参为主操作的失败原因，返回 false 时跳过该降级选项
type Predicate func(err error) bool

// FallbackOption 注册降级选项时的配置函数
type FallbackOption func(*candidate)

// WithPriority 设置降级选项的优先级，数值越大越先被尝试（默认：0）
func WithPriority(priority int) FallbackOption {
	return func(c *candidate) {
		c.priority = priority
	}
}

// WithCondition 设置降级选项的激活条件
func WithCondition(condition Predicate) FallbackOption {
	return func(c *candidate) {
		c.condition = condition
	}
}

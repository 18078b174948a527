package health

import (
	"time"

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
// 探针注册选项 (Probe Registration Options)
// ========================================

// ProbeOption 注册探针时的配置函数
type ProbeOption func(*registration)

// WithTimeout 设置该探针的独立超时，覆盖 Config.ProbeTimeout
func WithTimeout(timeout time.Duration) ProbeOption {
	return func(r *registration) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

package breaker

import (
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// Observer 状态变更观察者
// 在状态转换后被同步调用，panic 会被捕获并记录日志
type Observer func(name string, from, to State)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	observers []Observer
	isFailure func(err error) bool
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

// WithObserver 注册状态变更观察者
// 可多次调用，观察者按注册顺序执行
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithFailureClassifier 自定义失败判定
// 默认任何非 nil 且非 context.Canceled 的错误都计为失败
func WithFailureClassifier(isFailure func(err error) bool) Option {
	return func(o *options) {
		o.isFailure = isFailure
	}
}

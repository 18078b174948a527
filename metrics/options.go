package metrics

import "github.com/ceyewan/bulwark/clog"

// Option 配置 Meter 实例的选项函数类型
type Option func(*options)

// options 内部选项结构，存储 Meter 的配置信息
type options struct {
	// logger 日志记录器，用于记录指标系统的内部事件
	// 如果未设置，将使用 clog.Discard()
	logger clog.Logger
}

// WithLogger 注入日志记录器
// 组件会自动为 logger 添加 "metrics" 命名空间
//
// 使用示例：
//
//	logger, _ := clog.New(&clog.Config{Level: "info"})
//	meter, err := metrics.New(cfg, metrics.WithLogger(logger))
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			// 自动添加 metrics 命名空间，保持日志的可追踪性
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

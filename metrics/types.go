// Package metrics 为 Bulwark 提供统一的指标收集能力。
// 基于 OpenTelemetry 标准构建，提供简洁的 Counter、Gauge、Histogram 指标接口。
//
// 架构说明：
//   - 完全扁平化设计，无 types/ 子包
//   - 基于 OpenTelemetry 标准，确保与云原生生态兼容
//   - 内置 Prometheus HTTP 服务器，支持指标自动暴露
//   - 各弹性组件通过 WithMeter 选项注入，未注入时不产生任何开销
//
// 快速开始：
//
//	cfg := &metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "my-service",
//	    Version:     "v1.0.0",
//	    Port:        9090,
//	    Path:        "/metrics",
//	}
//
//	meter, err := metrics.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meter.Shutdown(ctx)
//
//	// 创建指标
//	counter, _ := meter.Counter("breaker_calls_total", "熔断器调用总数")
//	histogram, _ := meter.Histogram("call_duration_seconds", "调用耗时（秒）")
//
// 使用示例：
//
//	// 带标签增加计数器
//	counter.Inc(ctx, metrics.L("dependency", "openai"), metrics.L("outcome", "success"))
//
//	// 记录直方图值
//	histogram.Record(ctx, 0.123, metrics.L("dependency", "openai"))
package metrics

import "context"

// Counter 计数器接口
// 用于记录只能增加的累计值，例如调用次数、熔断拒绝数、重试次数等
//
// 使用示例：
//
//	counter, _ := meter.Counter("breaker_rejected_total", "熔断拒绝总数")
//	counter.Inc(ctx, metrics.L("dependency", "openai"))
//	counter.Add(ctx, 5, metrics.L("dependency", "telegram"))
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值
	// 注意：如果传入负数，大部分监控系统会忽略或报错
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘接口
// 用于记录可以任意增减的瞬时值，例如熔断器状态、限流器可用令牌数、队列长度等
//
// 使用示例：
//
//	gauge, _ := meter.Gauge("flood_queue_size", "洪控队列长度")
//	gauge.Set(ctx, 42, metrics.L("chat", "123"))
//	gauge.Inc(ctx)
//	gauge.Dec(ctx)
type Gauge interface {
	// Set 将 gauge 设置为给定的值，会覆盖之前的值
	Set(ctx context.Context, val float64, labels ...Label)

	// Inc 将 gauge 增加 1
	Inc(ctx context.Context, labels ...Label)

	// Dec 将 gauge 减少 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图接口
// 用于记录值的分布情况，例如调用耗时、重试延迟、探测延迟等
// 直方图会自动计算分位数（如 P95、P99）和总计数值
//
// 使用示例：
//
//	histogram, _ := meter.Histogram(
//	    "probe_duration_seconds",
//	    "健康探测耗时",
//	    metrics.WithUnit("s"),
//	)
//	histogram.Record(ctx, 0.123, metrics.L("probe", "database"))
type Histogram interface {
	// Record 在直方图中记录一个值
	// 该值会被自动归类到相应的桶中，用于计算分位数
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂接口
// 是所有指标类型的创建入口，负责管理指标的生命周期
//
// 一个 Meter 实例通常对应一个服务，通过 Meter 创建的指标会自动关联到该服务
// Meter 创建的指标是线程安全的，可以在多个 goroutine 中并发使用
type Meter interface {
	// Counter 创建计数器实例
	//
	// 参数：
	//   name - 指标名称，应该符合 Prometheus 命名规范（如：breaker_calls_total）
	//   desc - 指标描述，用于说明指标的用途和含义
	//   opts - 指标选项，支持 WithUnit 设置单位、WithBuckets 设置直方图桶
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)

	// Gauge 创建仪表盘实例
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)

	// Histogram 创建直方图实例
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 关闭 Meter，刷新所有指标
	// 调用此方法后，Meter 将不再接受新的指标记录请求
	// 通常在应用程序退出时调用
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项函数类型
// 用于在创建指标时进行额外配置，例如设置单位、直方图桶等
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项结构体
type MetricOptions struct {
	// Unit 指标的单位，例如 "bytes"、"s"、"requests"
	// 建议使用 UCUM 单位代码：https://unitsofmeasure.org/ucum.html
	Unit string

	// Buckets 直方图的显式桶边界，仅对 Histogram 生效
	// 为空时使用 OpenTelemetry 的默认桶
	Buckets []float64
}

// WithUnit 设置指标的单位
//
// 使用示例：
//
//	histogram, _ := meter.Histogram(
//	    "call_duration_seconds",
//	    "调用耗时",
//	    metrics.WithUnit("s"),
//	)
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图的显式桶边界
// 桶边界应按升序排列，仅对 Histogram 生效
//
// 使用示例：
//
//	histogram, _ := meter.Histogram(
//	    "call_duration_seconds",
//	    "调用耗时",
//	    metrics.WithBuckets([]float64{0.01, 0.05, 0.1, 0.5, 1, 5}),
//	)
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = buckets
	}
}

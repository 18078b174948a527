// Package health 提供了健康检查组件，聚合多个探针的检查结果。
//
// health 是 Bulwark 弹性层的可观测性组件，它提供了：
// - Prober 探针接口与 ProbeFunc 适配器，内置 HTTP 与磁盘探针
// - 并发执行所有探针，单个探针有独立超时
// - worst-wins 聚合：任一探针不健康则整体不健康
// - 每个探针的统计（连续失败次数、失败率、EWMA 响应延迟）
// - 有界的状态变迁历史与可取消的后台监控循环
// - Gin 端点：整体不健康时返回 503
//
// ## 基本使用
//
//	checker, _ := health.New(&health.Config{CheckInterval: 30 * time.Second},
//	    health.WithLogger(logger))
//
//	checker.Register(health.NewHTTPProber("openai", "https://api.openai.com/v1/models"))
//	checker.Register(health.NewDiskProber("disk", "/var/data"))
//	checker.Register(health.NewProbe("db", func(ctx context.Context) health.Result {
//	    if err := db.PingContext(ctx); err != nil {
//	        return health.Unhealthy("database unreachable", err)
//	    }
//	    return health.Healthy("database reachable")
//	}))
//
//	go checker.Start(ctx)
//	summary := checker.Summary()
package health

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/clog"
)

// ========================================
// 类型定义 (Type Definitions)
// ========================================

// Status 健康状态
type Status string

const (
	// StatusUnknown 未知：探针注册后尚未执行过检查
	StatusUnknown Status = "unknown"
	// StatusHealthy 健康
	StatusHealthy Status = "healthy"
	// StatusDegraded 降级：可用但表现异常
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 不健康
	StatusUnhealthy Status = "unhealthy"
)

// rank 用于 worst-wins 聚合，数值越大越差
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 2
	case StatusUnhealthy:
		return 3
	default:
		return 0
	}
}

// Result 单次探针检查的结果
type Result struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Latency   time.Duration  `json:"latency"`
	Timestamp time.Time      `json:"timestamp"`
}

// Healthy 构造健康结果
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded 构造降级结果
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy 构造不健康结果，err 可为 nil
func Unhealthy(message string, err error) Result {
	r := Result{Status: StatusUnhealthy, Message: message, Timestamp: time.Now()}
	if err != nil {
		r.Details = map[string]any{"error": err.Error()}
	}
	return r
}

// Record 单个探针的统计信息
type Record struct {
	Name                string         `json:"name"`
	Status              Status         `json:"status"`
	LastCheck           time.Time      `json:"last_check"`
	LastSuccess         time.Time      `json:"last_success"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	TotalChecks         uint64         `json:"total_checks"`
	TotalFailures       uint64         `json:"total_failures"`
	FailureRate         float64        `json:"failure_rate"`
	AvgLatency          time.Duration  `json:"avg_latency"`
	Details             map[string]any `json:"details,omitempty"`
}

// Transition 一次状态变迁
type Transition struct {
	Probe string    `json:"probe"`
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	At    time.Time `json:"at"`
}

// Summary 整体健康状态摘要
type Summary struct {
	Overall   Status            `json:"overall_status"`
	Probes    map[string]Record `json:"probes"`
	Timestamp time.Time         `json:"timestamp"`
}

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Checker 健康检查器
type Checker interface {
	// Register 注册探针，同名探针覆盖旧的
	Register(p Prober, opts ...ProbeOption)

	// Check 执行指定探针的检查并更新统计
	// 探针未注册时返回 StatusUnknown 结果
	Check(ctx context.Context, name string) Result

	// CheckAll 并发执行所有探针的检查
	CheckAll(ctx context.Context) map[string]Result

	// Overall 返回 worst-wins 聚合的整体状态
	Overall() Status

	// Summary 返回整体状态摘要快照
	Summary() Summary

	// History 返回最近的状态变迁，最新的在最后
	History() []Transition

	// Start 启动后台监控循环，阻塞直到 ctx 取消
	Start(ctx context.Context)
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 健康检查器配置
type Config struct {
	// CheckInterval 后台监控循环的检查间隔（默认：60s）
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval" mapstructure:"check_interval"`

	// ProbeTimeout 未单独指定超时的探针使用的默认超时（默认：10s）
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout" mapstructure:"probe_timeout"`

	// HistorySize 状态变迁历史的容量（默认：64）
	HistorySize int `json:"history_size" yaml:"history_size" mapstructure:"history_size"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 64
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建健康检查器
//
// 参数:
//   - cfg: 检查器配置，nil 时使用默认配置
//   - opts: 可选参数 (Logger, Meter)
func New(cfg *Config, opts ...Option) (Checker, error) {
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
		logger = logger.With(clog.String("component", "health"))
	}

	return newChecker(&c, logger, opt.meter), nil
}

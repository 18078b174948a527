// Package ratelimit 提供了限流组件，控制对外部依赖的请求速率。
//
// ratelimit 是 Bulwark 弹性层的核心组件，它提供了：
// - 统一的 Limiter 接口，阻塞等待与快速失败两种获取方式
// - 令牌桶主限额：基于 golang.org/x/time/rate，支持分数令牌平滑填充
// - 滑动窗口突发保护：短窗口内的请求数不超过突发上限
// - 针对常见外部服务（Telegram、OpenAI、Anthropic）的预设配置
// - 开箱即用的 Gin 中间件
// - 与基础组件（日志、指标）的深度集成
//
// 两道闸门相互独立，请求必须同时通过：令牌桶约束平均速率，
// 滑动窗口约束短时间内的突发。
//
// ## 基本使用
//
//	limiter, _ := ratelimit.New(ratelimit.TelegramAPILimit(),
//	    ratelimit.WithLogger(logger))
//
//	// 快速失败
//	if err := limiter.TryAcquire(1); err != nil {
//	    var exceeded *ratelimit.Exceeded
//	    if errors.As(err, &exceeded) {
//	        // 等待 exceeded.RetryAfter 后重试
//	    }
//	}
//
//	// 阻塞等待
//	if err := limiter.Acquire(ctx, 1); err != nil {
//	    // ctx 取消或超时
//	}
//
// ## Gin 中间件
//
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter))
//
// ## 可观测性
//
// 通过注入 Logger 和 Meter 实现统一的日志和指标收集：
//
//	limiter, _ := ratelimit.New(cfg,
//	    ratelimit.WithLogger(logger),
//	    ratelimit.WithMeter(meter),
//	)
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Limiter 限流器核心接口
type Limiter interface {
	// Acquire 获取 n 个令牌，必要时阻塞等待
	// 等待时间受令牌桶填充速率约束；ctx 取消或超时返回其错误
	Acquire(ctx context.Context, n int) error

	// TryAcquire 尝试获取 n 个令牌（非阻塞）
	// 被限流时返回 *Exceeded，携带建议的重试等待时间
	TryAcquire(n int) error

	// Stats 返回统计信息快照
	Stats() Stats
}

// Stats 限流器统计信息快照
type Stats struct {
	Name              string        `json:"name"`
	TotalRequests     uint64        `json:"total_requests"`
	BlockedRequests   uint64        `json:"blocked_requests"`
	BlockRate         float64       `json:"block_rate"`
	AvailableTokens   float64       `json:"available_tokens"`
	TokenCapacity     int           `json:"token_capacity"`
	RequestsPerWindow int           `json:"requests_per_window"`
	Window            time.Duration `json:"window"`
	BurstLimit        int           `json:"burst_limit"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 限流配置
type Config struct {
	// Name 限流器名称，通常为被保护的依赖名（如 "telegram"）
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// RequestsPerWindow 窗口内允许的请求数，同时是令牌桶容量
	RequestsPerWindow int `json:"requests_per_window" yaml:"requests_per_window" mapstructure:"requests_per_window"`

	// Window 限流窗口大小
	Window time.Duration `json:"window" yaml:"window" mapstructure:"window"`

	// BurstLimit 突发保护上限，0 表示关闭突发保护
	// 突发窗口取 min(Window, 10s)
	BurstLimit int `json:"burst_limit" yaml:"burst_limit" mapstructure:"burst_limit"`
}

// validate 校验配置
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.RequestsPerWindow <= 0 {
		return ErrInvalidLimit
	}
	if c.Window <= 0 {
		return ErrInvalidLimit
	}
	if c.BurstLimit < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// burstWindow 突发保护的滑动窗口大小
func (c *Config) burstWindow() time.Duration {
	const maxBurstWindow = 10 * time.Second
	if c.Window < maxBurstWindow {
		return c.Window
	}
	return maxBurstWindow
}

// ========================================
// 预设配置 (Presets)
// ========================================

// TelegramAPILimit Telegram Bot API 的保守限流配置
// 实际全局上限约 30 条/秒，保守取 20 条/秒，突发不超过 3 条
func TelegramAPILimit() *Config {
	return &Config{
		Name:              "telegram",
		RequestsPerWindow: 20,
		Window:            time.Second,
		BurstLimit:        3,
	}
}

// OpenAILimit OpenAI API 限流配置
func OpenAILimit() *Config {
	return &Config{
		Name:              "openai",
		RequestsPerWindow: 60,
		Window:            time.Minute,
		BurstLimit:        20,
	}
}

// AnthropicLimit Anthropic API 限流配置
func AnthropicLimit() *Config {
	return &Config{
		Name:              "anthropic",
		RequestsPerWindow: 100,
		Window:            time.Minute,
		BurstLimit:        30,
	}
}

// UserRequestLimit 单用户请求限流配置
func UserRequestLimit() *Config {
	return &Config{
		Name:              "user",
		RequestsPerWindow: 10,
		Window:            time.Minute,
		BurstLimit:        5,
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建限流器
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
//
// 参数:
//   - cfg: 限流配置
//   - opts: 可选参数 (Logger, Meter)
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	// 派生 Logger（添加 component 字段）
	logger := opt.logger
	if logger != nil {
		logger = logger.With(
			clog.String("component", "ratelimit"),
			clog.String("limiter", cfg.Name),
		)
	}

	return newLimiter(cfg, logger, opt.meter)
}

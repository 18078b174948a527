// Package flood 提供了出站消息的洪水控制组件，保护被调用方声明限流的通道。
//
// flood 是 Bulwark 弹性层面向出站消息的组件，它提供了：
// - 本地节流：每秒消息数上限 + 更紧的 100ms 突发子窗口
// - 响应式封锁：被调用方返回"retry after N"时注册全局与 per-chat 封锁
// - 短封锁（≤ ShortBlockThreshold）等待后重试一次，长封锁直接放弃
// - 封锁期间的有界消息队列，解封后批量冲刷
// - 统计：封锁次数、队列深度、最近一秒发送量
//
// 封锁期间的发送返回 *BlockedError，调用方可将其视为非致命的丢弃。
//
// ## 基本使用
//
//	gate, _ := flood.New(&flood.Config{}, flood.WithLogger(logger))
//
//	result, err := gate.Send(ctx, chatID, payload, func(ctx context.Context, chatID int64, payload any) (any, error) {
//	    return bot.SendMessage(ctx, chatID, payload)
//	})
//	if flood.IsBlocked(err) {
//	    gate.Enqueue(chatID, payload, 0)
//	}
package flood

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/clog"
)

// ========================================
// 类型定义 (Type Definitions)
// ========================================

// SendFunc 被保护的发送操作
// 被调用方声明限流时应返回 *xerrors.ThrottledError（或用 xerrors.Throttled 包装）
type SendFunc func(ctx context.Context, chatID int64, payload any) (any, error)

// QueuedMessage 队列中的一条待发送消息
type QueuedMessage struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Payload   any       `json:"-"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats 洪水控制统计信息快照
type Stats struct {
	BlockActive    bool          `json:"block_active"`
	BlockRemaining time.Duration `json:"block_remaining"`
	BlockedChats   int           `json:"blocked_chats"`
	TotalBlocks    uint64        `json:"total_blocks"`
	LastBlockTime  time.Time     `json:"last_block_time"`
	QueueDepth     int           `json:"queue_depth"`
	SentLastSecond int           `json:"sent_last_second"`
}

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Gate 洪水控制门
type Gate interface {
	// Send 经过节流与封锁检查后执行发送
	// 处于封锁期或发送被放弃时返回 *BlockedError，其余错误原样透传
	Send(ctx context.Context, chatID int64, payload any, send SendFunc) (any, error)

	// RegisterBlock 注册一次封锁
	// chatID 为 0 时仅注册全局封锁，否则同时注册 per-chat 封锁
	RegisterBlock(retryAfter time.Duration, chatID int64)

	// IsBlocked 检查是否处于封锁期，过期的封锁被惰性清除
	IsBlocked(chatID int64) (bool, time.Duration)

	// Enqueue 将消息放入队列等待解封后冲刷，返回消息 ID
	// 队列满时淘汰最低优先级中最旧的一条
	Enqueue(chatID int64, payload any, priority int) string

	// DrainReady 取出当前可发送的队列消息
	// 全局封锁期间返回空，per-chat 封锁的消息留在队列中
	DrainReady() []QueuedMessage

	// Stats 返回统计信息快照
	Stats() Stats
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 洪水控制配置
type Config struct {
	// Name 门名称（默认："default"）
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// MessagesPerSecond 滚动一秒内的发送上限（默认：20）
	MessagesPerSecond int `json:"messages_per_second" yaml:"messages_per_second" mapstructure:"messages_per_second"`

	// BurstLimit 突发子窗口内的发送上限（默认：3）
	BurstLimit int `json:"burst_limit" yaml:"burst_limit" mapstructure:"burst_limit"`

	// BurstWindow 突发子窗口长度（默认：100ms）
	BurstWindow time.Duration `json:"burst_window" yaml:"burst_window" mapstructure:"burst_window"`

	// ShortBlockThreshold 可等待重试的封锁时长上限（默认：5s）
	// 超过该时长的封锁直接放弃发送
	ShortBlockThreshold time.Duration `json:"short_block_threshold" yaml:"short_block_threshold" mapstructure:"short_block_threshold"`

	// MaxQueue 待冲刷队列容量（默认：100）
	MaxQueue int `json:"max_queue" yaml:"max_queue" mapstructure:"max_queue"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 20
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = 3
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = 100 * time.Millisecond
	}
	if c.ShortBlockThreshold <= 0 {
		c.ShortBlockThreshold = 5 * time.Second
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 100
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建洪水控制门
//
// 参数:
//   - cfg: 门配置，nil 时使用默认配置
//   - opts: 可选参数 (Logger, Meter)
func New(cfg *Config, opts ...Option) (Gate, error) {
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
			clog.String("component", "flood"),
			clog.String("gate", c.Name),
		)
	}

	return newGate(&c, logger, opt.meter), nil
}

package flood

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/ratelimit"
	"github.com/ceyewan/bulwark/xerrors"
)

// ========================================
// 内部实现 (Internal Implementation)
// ========================================

// gate Gate 的默认实现
type gate struct {
	cfg    *Config
	logger clog.Logger

	// 本地节流：滚动一秒窗口 + 突发子窗口
	perSecond *ratelimit.SlidingWindow
	burst     *ratelimit.SlidingWindow

	mu           sync.Mutex
	blockedUntil time.Time
	blockedChats map[int64]time.Time
	totalBlocks  uint64
	lastBlock    time.Time
	queue        []QueuedMessage

	sendsTotal  metrics.Counter
	blocksTotal metrics.Counter
}

func newGate(cfg *Config, logger clog.Logger, meter metrics.Meter) *gate {
	g := &gate{
		cfg:          cfg,
		logger:       logger,
		perSecond:    ratelimit.NewSlidingWindow(cfg.MessagesPerSecond, time.Second),
		burst:        ratelimit.NewSlidingWindow(cfg.BurstLimit, cfg.BurstWindow),
		blockedChats: make(map[int64]time.Time),
	}
	if meter != nil {
		g.sendsTotal, _ = meter.Counter(MetricSendsTotal, "洪水控制门发送总数")
		g.blocksTotal, _ = meter.Counter(MetricBlocksTotal, "洪水控制封锁注册总数")
	}
	return g
}

// Send 经过节流与封锁检查后执行发送
func (g *gate) Send(ctx context.Context, chatID int64, payload any, send SendFunc) (any, error) {
	if blocked, remaining := g.IsBlocked(chatID); blocked {
		if g.logger != nil {
			g.logger.Warn("send dropped, flood control active",
				clog.Int64("chat_id", chatID),
				clog.Duration("remaining", remaining))
		}
		g.countSend(ctx, "blocked")
		return nil, &BlockedError{Name: g.cfg.Name, ChatID: chatID, Remaining: remaining}
	}

	if err := g.pace(ctx); err != nil {
		return nil, err
	}

	result, err := send(ctx, chatID, payload)
	if err == nil {
		g.countSend(ctx, metrics.OutcomeSuccess)
		return result, nil
	}

	retryAfter := xerrors.RetryAfterOf(err)
	if retryAfter <= 0 {
		// 非限流错误原样透传
		g.countSend(ctx, metrics.OutcomeError)
		return nil, err
	}

	g.RegisterBlock(retryAfter, chatID)

	// 短封锁等待后重试一次，长封锁直接放弃
	if retryAfter > g.cfg.ShortBlockThreshold {
		if g.logger != nil {
			g.logger.Error("send abandoned, long flood control block",
				clog.Int64("chat_id", chatID),
				clog.Duration("retry_after", retryAfter))
		}
		g.countSend(ctx, "abandoned")
		return nil, &BlockedError{Name: g.cfg.Name, ChatID: chatID, Remaining: retryAfter}
	}

	if g.logger != nil {
		g.logger.Warn("short flood control block, waiting before retry",
			clog.Int64("chat_id", chatID),
			clog.Duration("retry_after", retryAfter))
	}
	if err := sleepCtx(ctx, retryAfter+100*time.Millisecond); err != nil {
		return nil, err
	}

	// 重试同样经过节流窗口计数
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	result, err = send(ctx, chatID, payload)
	if err == nil {
		g.countSend(ctx, metrics.OutcomeSuccess)
		return result, nil
	}
	if ra := xerrors.RetryAfterOf(err); ra > 0 {
		g.RegisterBlock(ra, chatID)
		if g.logger != nil {
			g.logger.Error("send abandoned, throttled again after retry",
				clog.Int64("chat_id", chatID),
				clog.Duration("retry_after", ra))
		}
		g.countSend(ctx, "abandoned")
		return nil, &BlockedError{Name: g.cfg.Name, ChatID: chatID, Remaining: ra}
	}
	g.countSend(ctx, metrics.OutcomeError)
	return nil, err
}

// pace 等待本地节流窗口放行
// 每个窗口的等待时长有界（不超过各自的窗口长度）
func (g *gate) pace(ctx context.Context) error {
	for {
		if ok, retryAfter := g.perSecond.Allow(); !ok {
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return err
			}
			continue
		}
		break
	}
	for {
		if ok, retryAfter := g.burst.Allow(); !ok {
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// RegisterBlock 注册一次封锁
func (g *gate) RegisterBlock(retryAfter time.Duration, chatID int64) {
	now := time.Now()
	until := now.Add(retryAfter)

	g.mu.Lock()
	if until.After(g.blockedUntil) {
		g.blockedUntil = until
	}
	if chatID != 0 {
		g.blockedChats[chatID] = until
	}
	g.totalBlocks++
	g.lastBlock = now
	g.mu.Unlock()

	if g.blocksTotal != nil {
		g.blocksTotal.Inc(context.Background(),
			metrics.L(metrics.LabelDependency, g.cfg.Name))
	}
	if g.logger != nil {
		g.logger.Error("flood control activated",
			clog.Int64("chat_id", chatID),
			clog.Duration("retry_after", retryAfter),
			clog.Time("blocked_until", until))
		// 超长封锁单独告警，通常意味着发送逻辑有问题
		if retryAfter > 5*time.Minute {
			g.logger.Error("critical flood control block",
				clog.Duration("retry_after", retryAfter))
		}
	}
}

// IsBlocked 检查是否处于封锁期
func (g *gate) IsBlocked(chatID int64) (bool, time.Duration) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.blockedUntil.IsZero() {
		if now.Before(g.blockedUntil) {
			return true, g.blockedUntil.Sub(now)
		}
		g.blockedUntil = time.Time{}
		if g.logger != nil {
			g.logger.Info("flood control lifted")
		}
	}

	if chatID != 0 {
		if until, ok := g.blockedChats[chatID]; ok {
			if now.Before(until) {
				return true, until.Sub(now)
			}
			delete(g.blockedChats, chatID)
		}
	}

	return false, 0
}

// Stats 返回统计信息快照
func (g *gate) Stats() Stats {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	var remaining time.Duration
	active := now.Before(g.blockedUntil)
	if active {
		remaining = g.blockedUntil.Sub(now)
	}

	return Stats{
		BlockActive:    active,
		BlockRemaining: remaining,
		BlockedChats:   len(g.blockedChats),
		TotalBlocks:    g.totalBlocks,
		LastBlockTime:  g.lastBlock,
		QueueDepth:     len(g.queue),
		SentLastSecond: g.perSecond.Len(),
	}
}

func (g *gate) countSend(ctx context.Context, outcome string) {
	if g.sendsTotal != nil {
		g.sendsTotal.Inc(ctx,
			metrics.L(metrics.LabelDependency, g.cfg.Name),
			metrics.L(metrics.LabelOutcome, outcome))
	}
}

// sleepCtx 可取消的睡眠
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

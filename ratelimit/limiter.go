package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/xerrors"
)

// tokenBucketLimiter 限流器实现（非导出）
// 令牌桶作为主限额，滑动窗口作为突发保护，两道闸门相互独立
type tokenBucketLimiter struct {
	cfg    *Config
	logger clog.Logger
	bucket *rate.Limiter
	burst  *SlidingWindow // BurstLimit 为 0 时为 nil

	totalRequests   atomic.Uint64
	blockedRequests atomic.Uint64

	allowedTotal metrics.Counter
	deniedTotal  metrics.Counter
}

// newLimiter 创建限流器（内部函数）
func newLimiter(cfg *Config, logger clog.Logger, meter metrics.Meter) (Limiter, error) {
	refillRate := float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()

	l := &tokenBucketLimiter{
		cfg:    cfg,
		logger: logger,
		bucket: rate.NewLimiter(rate.Limit(refillRate), cfg.RequestsPerWindow),
	}
	if cfg.BurstLimit > 0 {
		l.burst = NewSlidingWindow(cfg.BurstLimit, cfg.burstWindow())
	}

	if meter != nil {
		l.allowedTotal, _ = meter.Counter(MetricAllowedTotal, "限流放行的请求数")
		l.deniedTotal, _ = meter.Counter(MetricDeniedTotal, "限流拒绝的请求数")
	}

	if logger != nil {
		logger.Info("rate limiter created",
			clog.Int("requests_per_window", cfg.RequestsPerWindow),
			clog.Duration("window", cfg.Window),
			clog.Int("burst_limit", cfg.BurstLimit))
	}

	return l, nil
}

// TryAcquire 尝试获取 n 个令牌（非阻塞）
func (l *tokenBucketLimiter) TryAcquire(n int) error {
	if n <= 0 {
		return xerrors.Wrapf(ErrInvalidLimit, "n must be positive, got %d", n)
	}
	l.totalRequests.Add(1)

	// 第一道闸门：突发保护
	if l.burst != nil {
		allowed, retryAfter := l.burst.Allow()
		if !allowed {
			return l.reject(&Exceeded{
				Name:       l.cfg.Name,
				Limit:      l.cfg.BurstLimit,
				Window:     l.cfg.burstWindow(),
				RetryAfter: retryAfter,
			})
		}
	}

	// 第二道闸门：令牌桶
	r := l.bucket.ReserveN(time.Now(), n)
	if !r.OK() {
		// 请求量超过桶容量，永远无法满足
		return l.reject(&Exceeded{
			Name:       l.cfg.Name,
			Limit:      l.cfg.RequestsPerWindow,
			Window:     l.cfg.Window,
			RetryAfter: l.cfg.Window,
		})
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return l.reject(&Exceeded{
			Name:       l.cfg.Name,
			Limit:      l.cfg.RequestsPerWindow,
			Window:     l.cfg.Window,
			RetryAfter: delay,
		})
	}

	if l.allowedTotal != nil {
		l.allowedTotal.Inc(context.Background(),
			metrics.L(metrics.LabelDependency, l.cfg.Name))
	}
	if l.logger != nil {
		l.logger.Debug("request allowed", clog.Int("tokens", n))
	}
	return nil
}

// Acquire 获取 n 个令牌，必要时阻塞等待
func (l *tokenBucketLimiter) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return xerrors.Wrapf(ErrInvalidLimit, "n must be positive, got %d", n)
	}
	l.totalRequests.Add(1)

	// 第一道闸门：突发保护，被拒绝时等待空位后重试
	for l.burst != nil {
		allowed, retryAfter := l.burst.Allow()
		if allowed {
			break
		}
		if l.logger != nil {
			l.logger.Debug("burst limit reached, waiting",
				clog.Duration("retry_after", retryAfter))
		}
		if err := sleepCtx(ctx, retryAfter); err != nil {
			l.blockedRequests.Add(1)
			return err
		}
	}

	// 第二道闸门：令牌桶，等待受 ctx 约束
	r := l.bucket.ReserveN(time.Now(), n)
	if !r.OK() {
		// n 超过桶容量
		l.blockedRequests.Add(1)
		return &Exceeded{
			Name:       l.cfg.Name,
			Limit:      l.cfg.RequestsPerWindow,
			Window:     l.cfg.Window,
			RetryAfter: l.cfg.Window,
		}
	}
	delay := r.Delay()
	if deadline, ok := ctx.Deadline(); ok && delay > time.Until(deadline) {
		// 等待时长必然超过截止时间，归还预留并等到 ctx 到期
		r.Cancel()
		l.blockedRequests.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}
	if err := sleepCtx(ctx, delay); err != nil {
		r.Cancel()
		l.blockedRequests.Add(1)
		return err
	}

	if l.allowedTotal != nil {
		l.allowedTotal.Inc(ctx, metrics.L(metrics.LabelDependency, l.cfg.Name))
	}
	return nil
}

// reject 记录拒绝并返回错误
func (l *tokenBucketLimiter) reject(err *Exceeded) error {
	l.blockedRequests.Add(1)
	if l.deniedTotal != nil {
		l.deniedTotal.Inc(context.Background(),
			metrics.L(metrics.LabelDependency, l.cfg.Name))
	}
	if l.logger != nil {
		l.logger.Warn("request rate limited",
			clog.Int("limit", err.Limit),
			clog.Duration("window", err.Window),
			clog.Duration("retry_after", err.RetryAfter))
	}
	return err
}

// Stats 返回统计信息快照
func (l *tokenBucketLimiter) Stats() Stats {
	total := l.totalRequests.Load()
	blocked := l.blockedRequests.Load()

	var blockRate float64
	if total > 0 {
		blockRate = float64(blocked) / float64(total) * 100
	}

	return Stats{
		Name:              l.cfg.Name,
		TotalRequests:     total,
		BlockedRequests:   blocked,
		BlockRate:         blockRate,
		AvailableTokens:   l.bucket.Tokens(),
		TokenCapacity:     l.cfg.RequestsPerWindow,
		RequestsPerWindow: l.cfg.RequestsPerWindow,
		Window:            l.cfg.Window,
		BurstLimit:        l.cfg.BurstLimit,
	}
}

// sleepCtx 可取消的休眠
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package registry

import (
	"context"

	"github.com/ceyewan/bulwark/breaker"
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/ratelimit"
	"github.com/ceyewan/bulwark/retry"
)

// ========================================
// Guard 定义 (Guard Definitions)
// ========================================

// Operation 被保护的操作
type Operation func(ctx context.Context) error

// GuardStats 一个依赖的聚合统计
// 未配置的组件对应字段为 nil / 零值
type GuardStats struct {
	Name      string           `json:"name"`
	RateLimit *ratelimit.Stats `json:"ratelimit,omitempty"`
	Breaker   *breaker.Stats   `json:"breaker,omitempty"`
}

// Guard 一个外部依赖的弹性调用链
// 调用顺序：限流器准入 → 熔断器 → 重试器 → 操作本身
type Guard struct {
	name    string
	limiter ratelimit.Limiter
	breaker breaker.Breaker
	retrier retry.Executor
}

func newGuard(cfg *DependencyConfig, logger clog.Logger, meter metrics.Meter) (*Guard, error) {
	g := &Guard{name: cfg.Name}

	if cfg.RateLimit != nil {
		c := *cfg.RateLimit
		if c.Name == "" {
			c.Name = cfg.Name
		}
		limiter, err := ratelimit.New(&c, limiterOpts(logger, meter)...)
		if err != nil {
			return nil, err
		}
		g.limiter = limiter
	}

	if cfg.Breaker != nil {
		c := *cfg.Breaker
		if c.Name == "" {
			c.Name = cfg.Name
		}
		cb, err := breaker.New(&c, breakerOpts(logger, meter)...)
		if err != nil {
			return nil, err
		}
		g.breaker = cb
	}

	if cfg.Retry != nil {
		retrier, err := retry.New(cfg.Retry, retryOpts(logger, meter)...)
		if err != nil {
			return nil, err
		}
		g.retrier = retrier
	}

	return g, nil
}

func limiterOpts(logger clog.Logger, meter metrics.Meter) []ratelimit.Option {
	var opts []ratelimit.Option
	if logger != nil {
		opts = append(opts, ratelimit.WithLogger(logger))
	}
	if meter != nil {
		opts = append(opts, ratelimit.WithMeter(meter))
	}
	return opts
}

func breakerOpts(logger clog.Logger, meter metrics.Meter) []breaker.Option {
	var opts []breaker.Option
	if logger != nil {
		opts = append(opts, breaker.WithLogger(logger))
	}
	if meter != nil {
		opts = append(opts, breaker.WithMeter(meter))
	}
	return opts
}

func retryOpts(logger clog.Logger, meter metrics.Meter) []retry.Option {
	var opts []retry.Option
	if logger != nil {
		opts = append(opts, retry.WithLogger(logger))
	}
	if meter != nil {
		opts = append(opts, retry.WithMeter(meter))
	}
	return opts
}

// Name 返回依赖名称
func (g *Guard) Name() string {
	return g.name
}

// Do 经过完整调用链执行操作
// 限流器拒绝返回 *ratelimit.Exceeded，熔断器打开返回 *breaker.OpenError，
// 其余错误来自操作本身（重试耗尽后原样返回最后一次错误）
func (g *Guard) Do(ctx context.Context, op Operation) error {
	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	invoke := func(ctx context.Context) error {
		if g.retrier != nil {
			return g.retrier.Do(ctx, retry.Operation(op))
		}
		return op(ctx)
	}

	if g.breaker != nil {
		return g.breaker.Do(ctx, invoke)
	}
	return invoke(ctx)
}

// Stats 返回聚合统计快照
func (g *Guard) Stats() GuardStats {
	stats := GuardStats{Name: g.name}
	if g.limiter != nil {
		s := g.limiter.Stats()
		stats.RateLimit = &s
	}
	if g.breaker != nil {
		s := g.breaker.Stats()
		stats.Breaker = &s
	}
	return stats
}

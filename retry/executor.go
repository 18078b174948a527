package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// executor 重试执行器实现（非导出）
type executor struct {
	policy *Policy
	logger clog.Logger

	attemptsTotal  metrics.Counter
	exhaustedTotal metrics.Counter
}

// newExecutor 创建执行器（内部函数）
func newExecutor(policy *Policy, logger clog.Logger, meter metrics.Meter) (Executor, error) {
	e := &executor{
		policy: policy,
		logger: logger,
	}

	if meter != nil {
		e.attemptsTotal, _ = meter.Counter(MetricAttemptsTotal, "重试尝试总数")
		e.exhaustedTotal, _ = meter.Counter(MetricExhaustedTotal, "重试耗尽总数")
	}

	return e, nil
}

// Do 按策略重试执行操作
func (e *executor) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if e.attemptsTotal != nil {
			e.attemptsTotal.Inc(ctx)
		}
		if e.logger != nil {
			e.logger.Debug("executing attempt",
				clog.Int("attempt", attempt),
				clog.Int("max_attempts", e.policy.MaxAttempts))
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 && e.logger != nil {
				e.logger.Info("succeeded after retries", clog.Int("attempts", attempt))
			}
			return nil
		}
		lastErr = err

		if !e.policy.Retryable(err) {
			if e.logger != nil {
				e.logger.Warn("non-retryable error, giving up",
					clog.Int("attempt", attempt),
					clog.Error(err))
			}
			return err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		d := e.delay(attempt)
		if e.logger != nil {
			e.logger.Warn("attempt failed, backing off",
				clog.Int("attempt", attempt),
				clog.Duration("delay", d),
				clog.Error(err))
		}
		if sleepErr := sleepCtx(ctx, d); sleepErr != nil {
			return sleepErr
		}
	}

	if e.exhaustedTotal != nil {
		e.exhaustedTotal.Inc(ctx)
	}
	if e.logger != nil {
		e.logger.Error("all attempts exhausted",
			clog.Int("max_attempts", e.policy.MaxAttempts),
			clog.Error(lastErr))
	}

	// 原样返回最后一次的错误，不掩盖根因
	return lastErr
}

// delay 计算第 attempt 次失败后的退避延迟
// 指数退避 base × multiplier^(attempt-1)，上限 max_delay，
// 启用抖动时乘以 [0.5, 1.0) 的均匀随机因子
func (e *executor) delay(attempt int) time.Duration {
	d := float64(e.policy.BaseDelay) * math.Pow(e.policy.Multiplier, float64(attempt-1))
	if d > float64(e.policy.MaxDelay) {
		d = float64(e.policy.MaxDelay)
	}
	if e.policy.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
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

package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/xerrors"
)

// circuitBreaker 熔断器实现（非导出）
type circuitBreaker struct {
	cfg       *Config
	logger    clog.Logger
	observers []Observer
	isFailure func(err error) bool

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInflight     int
	lastFailureTime      time.Time
	totalRequests        uint64
	successfulRequests   uint64
	failedRequests       uint64
	stateChanges         uint64

	callsTotal    metrics.Counter
	rejectedTotal metrics.Counter
	transitions   metrics.Counter
	callDuration  metrics.Histogram
}

// transition 状态转换记录，在锁外通知观察者
type transition struct {
	from State
	to   State
}

// newCircuitBreaker 创建熔断器（内部函数）
func newCircuitBreaker(
	cfg *Config,
	logger clog.Logger,
	meter metrics.Meter,
	observers []Observer,
	isFailure func(err error) bool,
) (Breaker, error) {
	if isFailure == nil {
		isFailure = defaultIsFailure
	}

	cb := &circuitBreaker{
		cfg:       cfg,
		logger:    logger,
		observers: observers,
		isFailure: isFailure,
		state:     StateClosed,
	}

	if meter != nil {
		cb.callsTotal, _ = meter.Counter(MetricCallsTotal, "熔断器调用总数")
		cb.rejectedTotal, _ = meter.Counter(MetricRejectedTotal, "熔断器快速拒绝总数")
		cb.transitions, _ = meter.Counter(MetricTransitionsTotal, "熔断器状态转换总数")
		cb.callDuration, _ = meter.Histogram(MetricCallDurationSeconds, "熔断器调用耗时（秒）",
			metrics.WithUnit("s"))
	}

	if logger != nil {
		logger.Info("circuit breaker created",
			clog.Int("failure_threshold", cfg.FailureThreshold),
			clog.Duration("recovery_timeout", cfg.RecoveryTimeout),
			clog.Int("success_threshold", cfg.SuccessThreshold),
			clog.Duration("call_timeout", cfg.CallTimeout))
	}

	return cb, nil
}

// defaultIsFailure 默认失败判定
// 调用方主动取消不计为依赖故障
func defaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !xerrors.Is(err, context.Canceled)
}

// Do 通过熔断器执行操作
func (cb *circuitBreaker) Do(ctx context.Context, op Operation) error {
	if op == nil {
		return xerrors.New("breaker: operation is nil")
	}

	halfOpenTrial, err := cb.beforeCall()
	if err != nil {
		if cb.rejectedTotal != nil {
			cb.rejectedTotal.Inc(ctx, metrics.L(metrics.LabelDependency, cb.cfg.Name))
		}
		if cb.logger != nil {
			cb.logger.Debug("call rejected by circuit breaker", clog.Error(err))
		}
		return err
	}

	start := time.Now()
	opErr := cb.invoke(ctx, op)
	elapsed := time.Since(start)

	cb.afterCall(halfOpenTrial, opErr)

	if cb.callsTotal != nil {
		outcome := metrics.OutcomeSuccess
		if cb.isFailure(opErr) {
			outcome = metrics.OutcomeError
		}
		cb.callsTotal.Inc(ctx,
			metrics.L(metrics.LabelDependency, cb.cfg.Name),
			metrics.L(metrics.LabelOutcome, outcome))
	}
	if cb.callDuration != nil {
		cb.callDuration.Record(ctx, elapsed.Seconds(),
			metrics.L(metrics.LabelDependency, cb.cfg.Name))
	}

	return opErr
}

// invoke 在锁外执行被保护的操作，受 CallTimeout 约束
func (cb *circuitBreaker) invoke(ctx context.Context, op Operation) error {
	callCtx := ctx
	cancel := func() {}
	if cb.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cb.cfg.CallTimeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		ctxErr := callCtx.Err()
		if xerrors.Is(ctxErr, context.DeadlineExceeded) {
			// 超时计为瞬时故障
			return xerrors.Transient(
				xerrors.Wrapf(ctxErr, "breaker %s: call timed out after %v", cb.cfg.Name, cb.cfg.CallTimeout))
		}
		return xerrors.Wrapf(ctxErr, "breaker %s: call aborted", cb.cfg.Name)
	}
}

// beforeCall 准入检查
// 返回本次调用是否占用了半开试探名额
func (cb *circuitBreaker) beforeCall() (halfOpenTrial bool, err error) {
	var trans []transition

	cb.mu.Lock()
	trans = cb.evaluateLocked(trans)

	switch cb.state {
	case StateOpen:
		retryAfter := cb.cfg.RecoveryTimeout - time.Since(cb.lastFailureTime)
		if retryAfter < 0 {
			retryAfter = 0
		}
		cb.mu.Unlock()
		cb.notify(trans)
		return false, &OpenError{Name: cb.cfg.Name, State: StateOpen, RetryAfter: retryAfter}

	case StateHalfOpen:
		if cb.halfOpenInflight >= cb.cfg.HalfOpenMaxCalls {
			cb.mu.Unlock()
			cb.notify(trans)
			return false, xerrors.Wrapf(ErrTooManyCalls, "breaker %s", cb.cfg.Name)
		}
		cb.halfOpenInflight++
		cb.mu.Unlock()
		cb.notify(trans)
		return true, nil

	default:
		cb.mu.Unlock()
		cb.notify(trans)
		return false, nil
	}
}

// afterCall 记录调用结果并推进状态机
func (cb *circuitBreaker) afterCall(halfOpenTrial bool, err error) {
	failure := cb.isFailure(err)
	var trans []transition

	cb.mu.Lock()

	cb.totalRequests++
	if failure {
		cb.failedRequests++
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		cb.lastFailureTime = time.Now()
	} else {
		cb.successfulRequests++
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
	}

	if halfOpenTrial && cb.halfOpenInflight > 0 {
		cb.halfOpenInflight--
	}

	switch cb.state {
	case StateClosed:
		if failure && cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			trans = cb.transitionLocked(StateOpen, trans)
		}
	case StateHalfOpen:
		if failure {
			trans = cb.transitionLocked(StateOpen, trans)
		} else if cb.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
			trans = cb.transitionLocked(StateClosed, trans)
		}
	}

	cb.mu.Unlock()
	cb.notify(trans)
}

// evaluateLocked 惰性评估 Open -> HalfOpen 转换
// 必须在持有锁时调用
func (cb *circuitBreaker) evaluateLocked(trans []transition) []transition {
	if cb.state == StateOpen &&
		!cb.lastFailureTime.IsZero() &&
		time.Since(cb.lastFailureTime) >= cb.cfg.RecoveryTimeout {
		trans = cb.transitionLocked(StateHalfOpen, trans)
	}
	return trans
}

// transitionLocked 执行状态转换
// 必须在持有锁时调用
func (cb *circuitBreaker) transitionLocked(to State, trans []transition) []transition {
	if cb.state == to {
		return trans
	}
	from := cb.state
	cb.state = to
	cb.stateChanges++
	if to == StateHalfOpen {
		cb.halfOpenInflight = 0
		cb.consecutiveSuccesses = 0
	}
	return append(trans, transition{from: from, to: to})
}

// notify 在锁外通知观察者并记录日志/指标
func (cb *circuitBreaker) notify(trans []transition) {
	for _, t := range trans {
		if cb.logger != nil {
			cb.logger.Info("circuit breaker state changed",
				clog.String("from", t.from.String()),
				clog.String("to", t.to.String()))
		}
		if cb.transitions != nil {
			cb.transitions.Inc(context.Background(),
				metrics.L(metrics.LabelDependency, cb.cfg.Name),
				metrics.L(metrics.LabelState, t.to.String()))
		}
		for _, obs := range cb.observers {
			cb.safeObserve(obs, t)
		}
	}
}

// safeObserve 调用单个观察者，捕获 panic
func (cb *circuitBreaker) safeObserve(obs Observer, t transition) {
	defer func() {
		if r := recover(); r != nil && cb.logger != nil {
			cb.logger.Error("breaker observer panicked",
				clog.Any("panic", r),
				clog.String("from", t.from.String()),
				clog.String("to", t.to.String()))
		}
	}()
	obs(cb.cfg.Name, t.from, t.to)
}

// State 返回当前状态
func (cb *circuitBreaker) State() State {
	var trans []transition

	cb.mu.Lock()
	trans = cb.evaluateLocked(trans)
	state := cb.state
	cb.mu.Unlock()

	cb.notify(trans)
	return state
}

// Stats 返回统计信息快照
func (cb *circuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var failureRate float64
	if cb.totalRequests > 0 {
		failureRate = float64(cb.failedRequests) / float64(cb.totalRequests) * 100
	}

	return Stats{
		Name:                 cb.cfg.Name,
		State:                cb.state.String(),
		TotalRequests:        cb.totalRequests,
		SuccessfulRequests:   cb.successfulRequests,
		FailedRequests:       cb.failedRequests,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		FailureRate:          failureRate,
		StateChanges:         cb.stateChanges,
		LastFailureTime:      cb.lastFailureTime,
	}
}

// Reset 强制恢复到 Closed 状态并清空计数器
func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()

	old := cb.state
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInflight = 0
	cb.lastFailureTime = time.Time{}
	cb.totalRequests = 0
	cb.successfulRequests = 0
	cb.failedRequests = 0
	cb.stateChanges = 0

	cb.mu.Unlock()

	if cb.logger != nil {
		cb.logger.Info("circuit breaker reset", clog.String("from", old.String()))
	}
	if old != StateClosed {
		cb.notify([]transition{{from: old, to: StateClosed}})
	}
}

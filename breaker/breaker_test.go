package breaker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bulwark/xerrors"
)

var errBoom = xerrors.New("boom")

// failNTimes 返回一个先失败 n 次然后一直成功的操作，并记录调用次数
func failNTimes(n int, calls *atomic.Int64) Operation {
	return func(ctx context.Context) error {
		if calls.Add(1) <= int64(n) {
			return errBoom
		}
		return nil
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})
	require.NoError(t, err)

	var calls atomic.Int64
	op := failNTimes(100, &calls)

	// 连续三次失败后熔断
	for i := 0; i < 3; i++ {
		err := cb.Do(context.Background(), op)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	// 第 4 次调用被快速拒绝，操作不会被执行
	err = cb.Do(context.Background(), op)
	assert.True(t, IsOpen(err))
	assert.Equal(t, int64(3), calls.Load())

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test", openErr.Name)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
}

func TestRecoveryViaHalfOpen(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 1,
	})
	require.NoError(t, err)

	var calls atomic.Int64
	op := failNTimes(3, &calls)

	for i := 0; i < 3; i++ {
		_ = cb.Do(context.Background(), op)
	}
	require.Equal(t, StateOpen, cb.State())

	// 等待恢复超时
	time.Sleep(60 * time.Millisecond)

	// 下一次调用进入半开并真正执行操作
	err = cb.Do(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, int64(4), calls.Load())

	// success_threshold=1，一次成功即关闭
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  30 * time.Millisecond,
		SuccessThreshold: 1,
	})
	require.NoError(t, err)

	fail := func(ctx context.Context) error { return errBoom }

	_ = cb.Do(context.Background(), fail)
	_ = cb.Do(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)

	// 半开状态下失败立即重新熔断
	err = cb.Do(context.Background(), fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestSuccessThresholdMultiple(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		SuccessThreshold: 2,
	})
	require.NoError(t, err)

	_ = cb.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	ok := func(ctx context.Context) error { return nil }

	// 第一次成功还不足以关闭
	require.NoError(t, cb.Do(context.Background(), ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	// 第二次成功后关闭
	require.NoError(t, cb.Do(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenLimitsConcurrentTrials(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
	})
	require.NoError(t, err)

	_ = cb.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	time.Sleep(30 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)

	// 第一个试探调用占住半开名额
	go func() {
		done <- cb.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// 第二个并发调用被拒绝，不会执行操作
	var invoked atomic.Int64
	err = cb.Do(context.Background(), func(ctx context.Context) error {
		invoked.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, ErrTooManyCalls)
	assert.Equal(t, int64(0), invoked.Load())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCallTimeoutCountsAsFailure(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		CallTimeout:      20 * time.Millisecond,
	})
	require.NoError(t, err)

	err = cb.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, xerrors.KindTransient, xerrors.KindOf(err))

	// 超时计为失败，阈值 1 直接熔断
	assert.Equal(t, StateOpen, cb.State())
}

func TestCancellationNotCountedAsFailure(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cb.Do(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})

	// 调用方取消不触发熔断
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().ConsecutiveFailures)
}

func TestReset(t *testing.T) {
	cb, err := New(&Config{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})
	require.NoError(t, err)

	fail := func(ctx context.Context) error { return errBoom }
	_ = cb.Do(context.Background(), fail)
	_ = cb.Do(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	stats := cb.Stats()
	assert.Equal(t, uint64(0), stats.TotalRequests)
	assert.Equal(t, 0, stats.ConsecutiveFailures)

	// 重置后流量恢复正常
	require.NoError(t, cb.Do(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestStatsSnapshot(t *testing.T) {
	cb, err := New(&Config{
		Name:             "stats",
		FailureThreshold: 10,
		RecoveryTimeout:  time.Minute,
	})
	require.NoError(t, err)

	_ = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Do(context.Background(), func(ctx context.Context) error { return errBoom })

	stats := cb.Stats()
	assert.Equal(t, "stats", stats.Name)
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.SuccessfulRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
	assert.InDelta(t, 50.0, stats.FailureRate, 0.01)
	assert.False(t, stats.LastFailureTime.IsZero())
}

func TestObserver(t *testing.T) {
	var events []string
	cb, err := New(&Config{
		Name:             "obs",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	}, WithObserver(func(name string, from, to State) {
		events = append(events, from.String()+"->"+to.String())
	}))
	require.NoError(t, err)

	_ = cb.Do(context.Background(), func(ctx context.Context) error { return errBoom })

	require.Len(t, events, 1)
	assert.Equal(t, "closed->open", events[0])
}

func TestObserverPanicRecovered(t *testing.T) {
	cb, err := New(&Config{
		Name:             "panic",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	}, WithObserver(func(name string, from, to State) {
		panic("observer bug")
	}))
	require.NoError(t, err)

	// 观察者 panic 不影响调用方
	assert.NotPanics(t, func() {
		_ = cb.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestGroup(t *testing.T) {
	group := NewGroup(&Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	a := group.Get("service-a")
	b := group.Get("service-b")
	assert.NotNil(t, a)
	assert.NotNil(t, b)

	// 相同键返回同一实例
	assert.Same(t, a, group.Get("service-a"))

	// 不同键互不影响
	_ = a.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	_ = a.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	assert.Equal(t, StateOpen, a.State())
	assert.Equal(t, StateClosed, b.State())

	assert.ElementsMatch(t, []string{"service-a", "service-b"}, group.Names())

	stats := group.Stats()
	assert.Equal(t, "service-a", stats["service-a"].Name)

	group.ResetAll()
	assert.Equal(t, StateClosed, a.State())
}

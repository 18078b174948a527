package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg *Config) *Manager {
	t.Helper()
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	return mgr
}

func TestPrimarySuccess(t *testing.T) {
	mgr := newTestManager(t, &Config{Name: "svc"})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		return "primary-result", nil
	})

	result, err := mgr.Execute(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "primary-result", result)

	stats := mgr.Stats()
	assert.Equal(t, uint64(1), stats.TotalCalls)
	assert.Equal(t, uint64(1), stats.PrimarySuccess)
	assert.Equal(t, uint64(0), stats.FallbackUsed)
}

func TestFailFastReturnsOriginalError(t *testing.T) {
	sentinel := errors.New("upstream exploded")
	mgr := newTestManager(t, &Config{Name: "svc", Strategy: StrategyFailFast})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		return nil, sentinel
	})
	mgr.AddFallback("never", func(ctx context.Context) (any, error) {
		t.Fatal("fallback must not run under fail_fast")
		return nil, nil
	})

	_, err := mgr.Execute(context.Background(), "")
	// 快速失败不包装错误
	assert.Equal(t, sentinel, err)
	assert.False(t, IsExhausted(err))
	assert.Equal(t, uint64(1), mgr.Stats().Failures)
}

func TestFallbackPriorityAndCondition(t *testing.T) {
	rootErr := errors.New("primary down")
	var invoked []string

	mgr := newTestManager(t, &Config{Name: "svc", Strategy: StrategyGraceful})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		return nil, rootErr
	})
	// 高优先级但条件不满足，必须被跳过且不被调用
	mgr.AddFallback("high-but-disabled",
		func(ctx context.Context) (any, error) {
			invoked = append(invoked, "high-but-disabled")
			return "wrong", nil
		},
		WithPriority(10),
		WithCondition(func(err error) bool { return false }))
	mgr.AddFallback("low",
		func(ctx context.Context) (any, error) {
			invoked = append(invoked, "low")
			return "low-result", nil
		},
		WithPriority(1),
		WithCondition(func(err error) bool {
			assert.Equal(t, rootErr, err)
			return true
		}))

	result, err := mgr.Execute(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "low-result", result)
	assert.Equal(t, []string{"low"}, invoked)
	assert.Equal(t, uint64(1), mgr.Stats().FallbackUsed)
}

func TestFallbackDescendingOrder(t *testing.T) {
	var invoked []string
	mgr := newTestManager(t, &Config{Name: "svc"})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	mgr.AddFallback("low", func(ctx context.Context) (any, error) {
		invoked = append(invoked, "low")
		return "low", nil
	}, WithPriority(1))
	mgr.AddFallback("high", func(ctx context.Context) (any, error) {
		invoked = append(invoked, "high")
		return nil, errors.New("high failed too")
	}, WithPriority(10))

	result, err := mgr.Execute(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "low", result)
	// 高优先级先被尝试，失败后继续低优先级
	assert.Equal(t, []string{"high", "low"}, invoked)
}

func TestCacheFirstSkipsPrimary(t *testing.T) {
	calls := 0
	mgr := newTestManager(t, &Config{Name: "svc", Strategy: StrategyCacheFirst})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		calls++
		return "fresh", nil
	})

	// 第一次：缓存未命中，走主操作并写缓存
	result, err := mgr.Execute(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", result)
	assert.Equal(t, 1, calls)

	// 第二次：缓存命中，主操作不被调用
	result, err = mgr.Execute(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", result)
	assert.Equal(t, 1, calls)

	stats := mgr.Stats()
	assert.Equal(t, uint64(1), stats.PrimarySuccess)
	assert.Equal(t, uint64(1), stats.CacheUsed)
}

func TestCacheAsLastResort(t *testing.T) {
	healthy := true
	mgr := newTestManager(t, &Config{Name: "svc", Strategy: StrategyGraceful})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		if healthy {
			return "cached-value", nil
		}
		return nil, errors.New("down")
	})

	_, err := mgr.Execute(context.Background(), "k")
	require.NoError(t, err)

	// 主操作失败且没有降级选项时，回退到上次缓存的结果
	healthy = false
	result, err := mgr.Execute(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "cached-value", result)
	assert.Equal(t, uint64(1), mgr.Stats().CacheUsed)
}

func TestExhaustedWrapsRootCause(t *testing.T) {
	rootErr := errors.New("root cause")
	mgr := newTestManager(t, &Config{Name: "svc"})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		return nil, rootErr
	})
	mgr.AddFallback("also-broken", func(ctx context.Context) (any, error) {
		return nil, errors.New("fallback broken")
	})

	_, err := mgr.Execute(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	// 根因可通过 errors.Is 检出
	assert.True(t, errors.Is(err, rootErr))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "svc", exhausted.Name)
	assert.Equal(t, rootErr, exhausted.Cause)
}

func TestNoPrimaryNoFallback(t *testing.T) {
	mgr := newTestManager(t, &Config{Name: "svc"})

	_, err := mgr.Execute(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.True(t, errors.Is(err, ErrNoPrimary))
}

func TestCountersExactlyOnce(t *testing.T) {
	mgr := newTestManager(t, &Config{Name: "svc"})
	fail := false
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})
	mgr.AddFallback("backup", func(ctx context.Context) (any, error) {
		return "backup", nil
	})

	_, _ = mgr.Execute(context.Background(), "")
	fail = true
	_, _ = mgr.Execute(context.Background(), "")

	stats := mgr.Stats()
	assert.Equal(t, uint64(2), stats.TotalCalls)
	// 每次调用恰好落在一个结果计数上
	sum := stats.PrimarySuccess + stats.FallbackUsed + stats.CacheUsed + stats.Failures
	assert.Equal(t, stats.TotalCalls, sum)
}

func TestFallbackResultCachedWithShortTTL(t *testing.T) {
	mgr := newTestManager(t, &Config{
		Name:             "svc",
		FallbackCacheTTL: 50 * time.Millisecond,
	})
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	})
	calls := 0
	mgr.AddFallback("backup", func(ctx context.Context) (any, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("backup down too")
		}
		return "backup", nil
	})

	_, err := mgr.Execute(context.Background(), "k")
	require.NoError(t, err)

	// 降级结果已写入缓存，降级本身失效后缓存兜底
	result, err := mgr.Execute(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "backup", result)

	// TTL 过期后缓存不再兜底
	time.Sleep(80 * time.Millisecond)
	_, err = mgr.Execute(context.Background(), "k")
	assert.True(t, IsExhausted(err))
}

func TestClearCache(t *testing.T) {
	mgr := newTestManager(t, &Config{Name: "svc", Strategy: StrategyCacheFirst})
	calls := 0
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		calls++
		return "v", nil
	})

	_, _ = mgr.Execute(context.Background(), "k")
	mgr.ClearCache()
	_, _ = mgr.Execute(context.Background(), "k")
	assert.Equal(t, 2, calls)
}

func TestStatsRates(t *testing.T) {
	mgr := newTestManager(t, &Config{Name: "svc"})
	fail := false
	mgr.SetPrimary(func(ctx context.Context) (any, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	_, _ = mgr.Execute(context.Background(), "")
	fail = true
	_, _ = mgr.Execute(context.Background(), "")

	stats := mgr.Stats()
	assert.InDelta(t, 50.0, stats.PrimarySuccessRate, 0.01)
	assert.InDelta(t, 50.0, stats.FailureRate, 0.01)
}

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bulwark/breaker"
	"github.com/ceyewan/bulwark/config"
	"github.com/ceyewan/bulwark/ratelimit"
	"github.com/ceyewan/bulwark/retry"
	"github.com/ceyewan/bulwark/xerrors"
)

func TestRegisterAndGet(t *testing.T) {
	reg := New()

	guard, err := reg.Register(&DependencyConfig{Name: "openai"})
	require.NoError(t, err)
	require.NotNil(t, guard)

	got, ok := reg.Get("openai")
	assert.True(t, ok)
	assert.Same(t, guard, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	reg := New()

	_, err := reg.Register(nil)
	assert.Error(t, err)
	_, err = reg.Register(&DependencyConfig{})
	assert.Error(t, err)
}

func TestRegisterIdempotent(t *testing.T) {
	reg := New()

	first, err := reg.Register(&DependencyConfig{Name: "db"})
	require.NoError(t, err)
	second, err := reg.Register(&DependencyConfig{Name: "db"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestNames(t *testing.T) {
	reg := New()
	_, _ = reg.Register(&DependencyConfig{Name: "openai"})
	_, _ = reg.Register(&DependencyConfig{Name: "anthropic"})

	assert.Equal(t, []string{"anthropic", "openai"}, reg.Names())
}

func TestGuardPassThrough(t *testing.T) {
	reg := New()
	guard, err := reg.Register(&DependencyConfig{Name: "bare"})
	require.NoError(t, err)

	calls := 0
	require.NoError(t, guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)

	sentinel := errors.New("boom")
	err = guard.Do(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	assert.Equal(t, sentinel, err)
}

func TestGuardRetries(t *testing.T) {
	reg := New()
	guard, err := reg.Register(&DependencyConfig{
		Name: "flaky",
		Retry: &retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Jitter:      false,
		},
	})
	require.NoError(t, err)

	calls := 0
	err = guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return xerrors.Transient(errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGuardBreakerShortCircuits(t *testing.T) {
	reg := New()
	guard, err := reg.Register(&DependencyConfig{
		Name: "down",
		Breaker: &breaker.Config{
			FailureThreshold: 2,
			RecoveryTimeout:  time.Minute,
		},
	})
	require.NoError(t, err)

	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return errors.New("down")
	}
	for i := 0; i < 2; i++ {
		_ = guard.Do(context.Background(), op)
	}

	err = guard.Do(context.Background(), op)
	assert.True(t, breaker.IsOpen(err))
	assert.Equal(t, 2, calls, "熔断打开后不得调用操作")

	stats := guard.Stats()
	require.NotNil(t, stats.Breaker)
	assert.Equal(t, breaker.StateOpen.String(), stats.Breaker.State)
}

func TestGuardRateLimitRejects(t *testing.T) {
	reg := New()
	guard, err := reg.Register(&DependencyConfig{
		Name: "limited",
		RateLimit: &ratelimit.Config{
			RequestsPerWindow: 1,
			Window:            time.Minute,
		},
	})
	require.NoError(t, err)

	require.NoError(t, guard.Do(context.Background(), func(ctx context.Context) error {
		return nil
	}))

	// 第二次触发限流等待，用短超时断言被限流
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0
	err = guard.Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "限流期间不得调用操作")
}

func TestGuardComposition(t *testing.T) {
	// 限流 → 熔断 → 重试全链：重试消化瞬时错误，熔断不打开
	reg := New()
	guard, err := reg.Register(&DependencyConfig{
		Name: "full",
		RateLimit: &ratelimit.Config{
			RequestsPerWindow: 100,
			Window:            time.Second,
		},
		Breaker: &breaker.Config{FailureThreshold: 3},
		Retry: &retry.Policy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			Jitter:      false,
		},
	})
	require.NoError(t, err)

	calls := 0
	err = guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return xerrors.Transient(errors.New("blip"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	stats := guard.Stats()
	require.NotNil(t, stats.Breaker)
	assert.Equal(t, breaker.StateClosed.String(), stats.Breaker.State)
	assert.Equal(t, uint64(0), stats.Breaker.FailedRequests)
}

func TestStatsAggregation(t *testing.T) {
	reg := New()
	_, _ = reg.Register(&DependencyConfig{
		Name:    "a",
		Breaker: &breaker.Config{},
	})
	_, _ = reg.Register(&DependencyConfig{Name: "b"})

	stats := reg.Stats()
	require.Len(t, stats, 2)
	assert.NotNil(t, stats["a"].Breaker)
	assert.Nil(t, stats["b"].Breaker)
}

func TestFromLoader(t *testing.T) {
	dir := t.TempDir()
	content := `
dependencies:
  - name: openai
    ratelimit:
      requests_per_window: 60
      window: 60s
      burst_limit: 20
    breaker:
      failure_threshold: 5
      recovery_timeout: 60s
    retry:
      max_attempts: 3
      base_delay: 1s
  - name: telegram
    ratelimit:
      requests_per_window: 20
      window: 1s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	loader, err := config.New(config.WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	reg, err := FromLoader(loader)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "telegram"}, reg.Names())

	guard, ok := reg.Get("openai")
	require.True(t, ok)
	stats := guard.Stats()
	require.NotNil(t, stats.RateLimit)
	require.NotNil(t, stats.Breaker)
}

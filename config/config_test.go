package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile 写入临时配置文件并返回其所在目录
func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return dir
}

func TestNewDefaults(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestLoadAndGet(t *testing.T) {
	dir := writeConfigFile(t, "config.yaml", `
app:
  name: bulwark-test
  debug: true
breaker:
  failure_threshold: 5
`)

	l, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, "bulwark-test", l.Get("app.name"))
	assert.Equal(t, true, l.Get("app.debug"))
	assert.Equal(t, 5, l.Get("breaker.failure_threshold"))
}

func TestUnmarshalKey(t *testing.T) {
	dir := writeConfigFile(t, "config.yaml", `
ratelimit:
  name: telegram
  requests_per_window: 20
  burst_limit: 3
`)

	l, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	var cfg struct {
		Name              string `mapstructure:"name"`
		RequestsPerWindow int    `mapstructure:"requests_per_window"`
		BurstLimit        int    `mapstructure:"burst_limit"`
	}
	require.NoError(t, l.UnmarshalKey("ratelimit", &cfg))
	assert.Equal(t, "telegram", cfg.Name)
	assert.Equal(t, 20, cfg.RequestsPerWindow)
	assert.Equal(t, 3, cfg.BurstLimit)
}

func TestLoadEmptyConfigFails(t *testing.T) {
	// 空目录下没有任何配置来源，Load 应报验证失败
	l, err := New(WithConfigPaths(t.TempDir()), WithEnvPrefix("BULWARK_TEST_EMPTY"))
	require.NoError(t, err)

	err = l.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsValidationFailed(err))
}

func TestEnvOverride(t *testing.T) {
	dir := writeConfigFile(t, "config.yaml", `
app:
  name: from-file
`)

	t.Setenv("BULWARK_APP_NAME", "from-env")

	l, err := New(WithConfigPaths(dir), WithEnvPrefix("bulwark"))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	// 环境变量优先于配置文件
	assert.Equal(t, "from-env", l.Get("app.name"))
}

func TestWatchCancel(t *testing.T) {
	dir := writeConfigFile(t, "config.yaml", `
app:
  debug: false
`)

	l, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx, "app.debug")
	require.NoError(t, err)

	cancel()

	// 取消后通道应被关闭
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after context cancel")
	}
}

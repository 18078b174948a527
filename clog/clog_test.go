package clog

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// newBufferLogger 创建一个输出到缓冲区的 Logger，用于断言日志内容
func newBufferLogger(t *testing.T, cfg *Config, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	opts = append(opts, WithWriter(buf))
	logger, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New 不应返回错误: %v", err)
	}
	return logger, buf
}

func TestNewDefaults(t *testing.T) {
	logger, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) 不应返回错误: %v", err)
	}
	if logger == nil {
		t.Fatal("New(nil) 应返回有效的 Logger")
	}
}

func TestNewInvalidConfig(t *testing.T) {
	if _, err := New(&Config{Level: "verbose"}); err == nil {
		t.Error("非法级别应返回错误")
	}
	if _, err := New(&Config{Format: "xml"}); err == nil {
		t.Error("非法格式应返回错误")
	}
}

func TestLogOutput(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "debug", Format: "json"})

	logger.Info("hello", String("key", "value"), Int("count", 3))

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("日志应包含消息, got: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) || !strings.Contains(out, `"count":3`) {
		t.Errorf("日志应包含字段, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "warn", Format: "json"})

	logger.Debug("debug msg")
	logger.Info("info msg")
	if buf.Len() != 0 {
		t.Errorf("低于 warn 的日志应被过滤, got: %s", buf.String())
	}

	logger.Warn("warn msg")
	if !strings.Contains(buf.String(), "warn msg") {
		t.Error("warn 级别日志应被输出")
	}
}

func TestSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "error", Format: "json"})

	logger.Info("before")
	if buf.Len() != 0 {
		t.Fatal("info 日志应被过滤")
	}

	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Fatalf("SetLevel 不应返回错误: %v", err)
	}
	logger.Info("after")
	if !strings.Contains(buf.String(), "after") {
		t.Error("调整级别后 info 日志应被输出")
	}
}

func TestWithNamespace(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "info", Format: "json"},
		WithNamespace("bulwark"))

	logger.WithNamespace("breaker").Info("created")

	if !strings.Contains(buf.String(), `"namespace":"bulwark.breaker"`) {
		t.Errorf("日志应包含完整命名空间, got: %s", buf.String())
	}

	// 父 Logger 的命名空间不应被污染
	buf.Reset()
	logger.Info("parent")
	if !strings.Contains(buf.String(), `"namespace":"bulwark"`) {
		t.Errorf("父 Logger 命名空间应保持不变, got: %s", buf.String())
	}
}

func TestWith(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "info", Format: "json"})

	child := logger.With(String("dependency", "openai"))
	child.Info("request")

	if !strings.Contains(buf.String(), `"dependency":"openai"`) {
		t.Errorf("预设字段应出现在日志中, got: %s", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "info", Format: "json"},
		WithContextField("trace-key", "trace_id"))

	ctx := context.WithValue(context.Background(), "trace-key", "abc123")
	logger.InfoContext(ctx, "request processed")

	if !strings.Contains(buf.String(), `"trace_id":"abc123"`) {
		t.Errorf("Context 字段应被提取, got: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	// 所有调用都不应 panic
	logger.Info("ignored")
	logger.With(String("k", "v")).Error("ignored")
	logger.WithNamespace("ns").Debug("ignored")
}

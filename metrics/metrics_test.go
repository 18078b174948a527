package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/bulwark/clog"
)

// TestNew 测试创建 Meter 实例
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		opts    []Option
		wantErr bool
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name: "disabled returns noop",
			cfg: &Config{
				Enabled:     false,
				ServiceName: "test-service",
			},
			wantErr: false,
		},
		{
			name: "with logger option",
			cfg: &Config{
				ServiceName: "test-service",
				Version:     "v1.0.0",
			},
			opts: func() []Option {
				logger, _ := clog.New(&clog.Config{Level: "debug"})
				return []Option{WithLogger(logger)}
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter, err := New(tt.cfg, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if meter == nil {
					t.Error("New() returned nil meter")
					return
				}

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := meter.Shutdown(ctx); err != nil {
					t.Errorf("Shutdown() error = %v", err)
				}
			}
		})
	}
}

// TestEnabledMeter 测试启用状态下的指标创建与记录
func TestEnabledMeter(t *testing.T) {
	meter, err := New(&Config{
		Enabled:     true,
		ServiceName: "test-service",
		Version:     "v1.0.0",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer meter.Shutdown(context.Background())

	ctx := context.Background()

	counter, err := meter.Counter("test_calls_total", "测试调用总数")
	if err != nil {
		t.Fatalf("Counter() error = %v", err)
	}
	counter.Inc(ctx, L(LabelDependency, "openai"))
	counter.Add(ctx, 3, L(LabelDependency, "openai"), L(LabelOutcome, OutcomeSuccess))

	gauge, err := meter.Gauge("test_queue_size", "测试队列长度")
	if err != nil {
		t.Fatalf("Gauge() error = %v", err)
	}
	gauge.Set(ctx, 10)
	gauge.Inc(ctx)
	gauge.Dec(ctx)

	histogram, err := meter.Histogram("test_duration_seconds", "测试耗时",
		WithUnit("s"), WithBuckets([]float64{0.01, 0.1, 1}))
	if err != nil {
		t.Fatalf("Histogram() error = %v", err)
	}
	histogram.Record(ctx, 0.123, L(LabelDependency, "telegram"))
}

// TestDiscard 测试 Discard 函数
func TestDiscard(t *testing.T) {
	meter := Discard()
	if meter == nil {
		t.Fatal("Discard() returned nil")
	}

	ctx := context.Background()
	counter, err := meter.Counter("noop_total", "noop")
	if err != nil {
		t.Fatalf("Counter() error = %v", err)
	}
	counter.Inc(ctx)

	if err := meter.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

// TestLabelHelper 测试标签辅助函数
func TestLabelHelper(t *testing.T) {
	l := L("dependency", "anthropic")
	if l.Key != "dependency" || l.Value != "anthropic" {
		t.Errorf("L() = %+v", l)
	}

	if got := labelKey([]Label{L("a", "1"), L("b", "2")}); got != "a=1|b=2" {
		t.Errorf("labelKey() = %q", got)
	}
	if got := labelKey(nil); got != "" {
		t.Errorf("labelKey(nil) = %q", got)
	}
}

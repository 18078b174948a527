package xerrors

import (
	"errors"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"未标记", base, KindUnknown},
		{"瞬时", Transient(base), KindTransient},
		{"永久", Permanent(base), KindPermanent},
		{"限流", Throttled(base, time.Second), KindThrottled},
		{"包装后保留类别", Wrap(Transient(base), "outer"), KindTransient},
		{"配额耗尽为永久", ErrQuotaExhausted, KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v，期望 %v", got, tt.want)
			}
		})
	}
}

func TestKindPreservesChain(t *testing.T) {
	base := errors.New("boom")

	if !errors.Is(Transient(base), base) {
		t.Error("Transient 应保留错误链")
	}
	if !errors.Is(Throttled(base, time.Second), base) {
		t.Error("Throttled 应保留错误链")
	}
}

func TestRetryAfterOf(t *testing.T) {
	base := errors.New("flood")

	if got := RetryAfterOf(Throttled(base, 3*time.Second)); got != 3*time.Second {
		t.Errorf("RetryAfterOf = %v，期望 3s", got)
	}

	// 包装后仍能提取
	wrapped := Wrap(Throttled(base, 5*time.Second), "send failed")
	if got := RetryAfterOf(wrapped); got != 5*time.Second {
		t.Errorf("包装后 RetryAfterOf = %v，期望 5s", got)
	}

	if got := RetryAfterOf(base); got != 0 {
		t.Errorf("非限流错误 RetryAfterOf = %v，期望 0", got)
	}
}

func TestThrottledTakesPriorityOverKind(t *testing.T) {
	// 限流错误即使内部带有其他类别标记，也按限流处理
	err := Throttled(Transient(errors.New("boom")), time.Second)
	if KindOf(err) != KindThrottled {
		t.Errorf("KindOf = %v，期望 KindThrottled", KindOf(err))
	}
}

package xerrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind 错误类别，决定治理组件如何处理一个失败。
//
// 与按异常类型列表判断是否可重试不同，Kind 是一个封闭集合：
//   - KindTransient: 瞬时错误（网络抖动、超时），可以重试
//   - KindPermanent: 永久错误（鉴权失败、参数非法、配额耗尽），重试无意义
//   - KindThrottled: 对端限流，携带 retry-after 提示，交由限流/泛洪逻辑处理
//   - KindUnknown:   未分类错误，各组件按自身默认策略处理
type Kind int

const (
	// KindUnknown 未分类错误
	KindUnknown Kind = iota
	// KindTransient 瞬时错误，可重试
	KindTransient
	// KindPermanent 永久错误，不可重试
	KindPermanent
	// KindThrottled 对端限流错误，携带 retry-after 提示
	KindThrottled
)

// String 返回类别的字符串表示
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// ErrQuotaExhausted 配额/额度耗尽。
// 该错误永远被归为 KindPermanent，任何重试策略都必须立即放弃。
var ErrQuotaExhausted = Permanent(errors.New("resource quota exhausted"))

// kindError 为底层错误打上类别标签（非导出）
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// Transient 将 err 标记为瞬时错误。
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindTransient, cause: err}
}

// Permanent 将 err 标记为永久错误。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindPermanent, cause: err}
}

// ThrottledError 对端声明限流的错误，携带重试提示。
//
// 典型来源是消息通道返回的 "retry after N seconds"。泛洪控制与
// 限流组件依据 RetryAfter 登记封禁，指数退避不处理此类错误。
type ThrottledError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("throttled (retry after %s): %v", e.RetryAfter, e.Cause)
	}
	return fmt.Sprintf("throttled (retry after %s)", e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error {
	return e.Cause
}

// Throttled 构造一个携带 retry-after 提示的限流错误。
func Throttled(err error, retryAfter time.Duration) error {
	return &ThrottledError{RetryAfter: retryAfter, Cause: err}
}

// KindOf 从错误链中提取类别。
// ThrottledError 优先于 kindError，未标记的错误返回 KindUnknown。
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return KindThrottled
	}
	var kinded *kindError
	if errors.As(err, &kinded) {
		return kinded.kind
	}
	return KindUnknown
}

// RetryAfterOf 提取错误链中的 retry-after 提示。
// 非限流错误返回 0。
func RetryAfterOf(err error) time.Duration {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return throttled.RetryAfter
	}
	return 0
}

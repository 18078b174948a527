package ratelimit

import (
	"fmt"
	"time"

	"github.com/ceyewan/bulwark/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("ratelimit: config is nil")

	// ErrInvalidLimit 限流规则无效
	ErrInvalidLimit = xerrors.New("ratelimit: invalid limit")

	// ErrRateLimitExceeded 限流阈值超出
	ErrRateLimitExceeded = xerrors.New("ratelimit: rate limit exceeded")
)

// Exceeded 限流拒绝错误
// 携带触发的限额、窗口大小和建议的重试等待时间
type Exceeded struct {
	Name       string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *Exceeded) Error() string {
	return fmt.Sprintf("ratelimit %q: exceeded %d requests per %v, retry after %v",
		e.Name, e.Limit, e.Window, e.RetryAfter)
}

// Unwrap 支持 errors.Is(err, ErrRateLimitExceeded)
func (e *Exceeded) Unwrap() error {
	return ErrRateLimitExceeded
}

// IsExceeded 检查错误是否为限流拒绝
func IsExceeded(err error) bool {
	return xerrors.Is(err, ErrRateLimitExceeded)
}

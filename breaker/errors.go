package breaker

import (
	"fmt"
	"time"

	"github.com/ceyewan/bulwark/xerrors"
)

// 错误定义
var (
	// ErrCircuitOpen 熔断器打开，请求被快速拒绝
	ErrCircuitOpen = xerrors.New("breaker: circuit open")

	// ErrTooManyCalls 半开状态下试探名额已满
	ErrTooManyCalls = xerrors.New("breaker: too many calls in half-open state")
)

// OpenError 熔断拒绝错误
// 携带熔断器名称和距离下次允许试探的剩余冷却时间
type OpenError struct {
	Name       string
	State      State
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker %q is %s, retry after %v", e.Name, e.State, e.RetryAfter)
}

// Unwrap 支持 errors.Is(err, ErrCircuitOpen)
func (e *OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// IsOpen 检查错误是否为熔断拒绝
func IsOpen(err error) bool {
	return xerrors.Is(err, ErrCircuitOpen)
}

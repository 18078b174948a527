package fallback

import (
	"fmt"

	"github.com/ceyewan/bulwark/xerrors"
)

// 错误定义
var (
	// ErrAllFallbacksExhausted 主操作、所有降级选项和缓存全部失败
	ErrAllFallbacksExhausted = xerrors.New("fallback: all options exhausted")

	// ErrNoPrimary 未设置主操作且没有任何降级选项可用
	ErrNoPrimary = xerrors.New("fallback: no primary handler configured")
)

// ExhaustedError 降级耗尽错误
// 包装主操作最初的失败根因，不掩盖它
type ExhaustedError struct {
	Name  string
	Cause error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fallback %q: all options exhausted: %v", e.Name, e.Cause)
}

// Unwrap 返回根因，同时支持 errors.Is(err, ErrAllFallbacksExhausted)
func (e *ExhaustedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAllFallbacksExhausted}
	}
	return []error{ErrAllFallbacksExhausted, e.Cause}
}

// IsExhausted 检查错误是否为降级耗尽
func IsExhausted(err error) bool {
	return xerrors.Is(err, ErrAllFallbacksExhausted)
}

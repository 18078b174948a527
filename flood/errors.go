package flood

import (
	"fmt"
	"time"

	"github.com/ceyewan/bulwark/xerrors"
)

// 错误定义
var (
	// ErrBlocked 发送处于封锁期被丢弃
	// 调用方通常应将其视为非致命错误（丢弃或入队，而非向上抛出）
	ErrBlocked = xerrors.New("flood: send blocked")
)

// BlockedError 封锁错误，携带剩余封锁时长
type BlockedError struct {
	Name      string
	ChatID    int64
	Remaining time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("flood gate %q: send to chat %d blocked for %v", e.Name, e.ChatID, e.Remaining)
}

// Unwrap 支持 errors.Is(err, ErrBlocked)
func (e *BlockedError) Unwrap() error {
	return ErrBlocked
}

// IsBlocked 检查错误是否为封锁丢弃
func IsBlocked(err error) bool {
	return xerrors.Is(err, ErrBlocked)
}

package config

import "github.com/ceyewan/bulwark/xerrors"

// ErrValidationFailed 验证失败
var ErrValidationFailed = xerrors.New("configuration validation failed")

// IsValidationFailed 检查错误是否为配置验证失败
func IsValidationFailed(err error) bool {
	return xerrors.Is(err, ErrValidationFailed)
}

// WrapLoadError 包装加载错误
func WrapLoadError(err error, message string) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrapf(err, "failed to load config: %s", message)
}

package explorer

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	// ErrContractViolation 路径无法提供回溯或最近执行单元的地址
	ErrContractViolation = errors.New("path contract violation")
	// ErrAlreadyClassified 同一路径被第二次提交分类
	ErrAlreadyClassified = errors.New("path already classified")
	// ErrNotInFlight 路径不在步进中
	ErrNotInFlight = errors.New("path is not in flight")
)

// ConfigurationError 构造阶段的配置错误（无法识别的criterion形状或非法数值）
type ConfigurationError struct {
	Field string
	Value interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: unsupported value %v (%T)", e.Field, e.Value, e.Value)
}

func contractViolation(p Path, reason string) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrContractViolation, reason)
	}
	return fmt.Errorf("%w: path %s: %s", ErrContractViolation, p.ID(), reason)
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUntrainedModel 没有可用的模型制品时预测
	ErrUntrainedModel = errors.New("model is not trained or not loaded")
	// ErrFeatureMismatch 制品要求的特征列无法由特征引擎重建
	ErrFeatureMismatch = errors.New("feature columns cannot be reconstructed")
	// ErrEncoderFrozen 冻结后的编码器拒绝拟合新列
	ErrEncoderFrozen = errors.New("encoder state is frozen")
	// ErrInsufficientData 训练样本不足以完成时间序列交叉验证
	ErrInsufficientData = errors.New("not enough rows to train")
	// ErrForecastWeekOutOfRange 预测行的 forecast_week 超出预测周数
	ErrForecastWeekOutOfRange = errors.New("forecast_week outside the forecast horizon")
)

// FieldError 是单个字段的校验错误
type FieldError struct {
	Field   string
	Message string
}

// ValidationError 请求参数不合法，对应 HTTP 400
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

package knowledge

import (
	"errors"
	"fmt"
)

// ErrEmptyText 嵌入输入为空
var ErrEmptyText = errors.New("text is empty")

// ValidationError 请求参数不合法，在任何外部调用之前返回
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError 创建参数校验错误
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// EmbeddingError 嵌入能力调用失败，SectionID 为空表示问题向量
type EmbeddingError struct {
	SectionID string
	Err       error
}

func (e *EmbeddingError) Error() string {
	if e.SectionID == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed for section %s: %v", e.SectionID, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// GenerationError 文本生成能力调用失败
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError 候选向量与查询向量维度不一致
type DimensionMismatchError struct {
	ID       string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for %s: expected %d, got %d", e.ID, e.Expected, e.Actual)
}

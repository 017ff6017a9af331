package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrorTranslator 错误转换器
type ErrorTranslator struct{}

// NewErrorTranslator 创建错误转换器
func NewErrorTranslator() *ErrorTranslator {
	return &ErrorTranslator{}
}

// Translate 将各种类型的错误转换为AppError
func (t *ErrorTranslator) Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		validationErr *knowledge.ValidationError
		fieldErrs     validator.ValidationErrors
		embeddingErr  *knowledge.EmbeddingError
		generationErr *knowledge.GenerationError
		dimensionErr  *knowledge.DimensionMismatchError
		pqErr         *pq.Error
		netErr        *net.OpError
		migrateDirty  migrate.ErrDirty
	)

	switch {
	case errors.As(err, &validationErr):
		return NewInvalidInputError(validationErr.Field, validationErr.Reason).WithCause(err)
	case errors.As(err, &fieldErrs):
		return t.translateValidationErrors(fieldErrs)
	case errors.Is(err, knowledge.ErrEmptyText):
		return NewInvalidInputError("text", "must not be empty").WithCause(err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NewNotFoundError("Document").WithCause(err)
	case errors.As(err, &embeddingErr):
		return NewExternalError(ErrCodeEmbeddingFailed, "Embedding generation failed").WithCause(err)
	case errors.As(err, &generationErr):
		return NewExternalError(ErrCodeGenerationFailed, "Answer generation failed").WithCause(err)
	case errors.As(err, &dimensionErr):
		return NewSystemError(ErrCodeDimensionMismatch, "Embedding dimensions are inconsistent").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewBusinessError(ErrCodeTimeout, "Operation timed out").WithCause(err)
	case errors.As(err, &pqErr):
		return t.translatePostgresError(pqErr)
	case errors.As(err, &migrateDirty):
		return NewSystemError(ErrCodeDatabaseError, "Database migration in dirty state").WithCause(err)
	case errors.As(err, &netErr):
		return t.translateNetworkError(netErr)
	}

	if t.isDatabaseError(err) {
		return t.translateDatabaseError(err)
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// translateValidationErrors 转换验证错误
func (t *ErrorTranslator) translateValidationErrors(validationErrors validator.ValidationErrors) *AppError {
	details := make([]map[string]interface{}, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		details = append(details, map[string]interface{}{
			"field":   fieldError.Field(),
			"tag":     fieldError.Tag(),
			"message": t.getValidationErrorMessage(fieldError),
		})
	}

	return NewValidationError("Validation failed").
		WithDetails(map[string]interface{}{"errors": details}).
		WithCause(validationErrors)
}

// translateNetworkError 转换网络错误
func (t *ErrorTranslator) translateNetworkError(netErr *net.OpError) *AppError {
	if netErr.Timeout() {
		return NewBusinessError(ErrCodeTimeout, "Operation timed out").WithCause(netErr)
	}
	return NewExternalError(ErrCodeExternalService, "Network error").WithCause(netErr)
}

// translatePostgresError 按 SQLSTATE 转换
func (t *ErrorTranslator) translatePostgresError(pqErr *pq.Error) *AppError {
	switch pqErr.Code.Name() {
	case "unique_violation":
		return NewBusinessError(ErrCodeConflict, "Resource already exists").WithCause(pqErr)
	case "foreign_key_violation":
		return NewBusinessError(ErrCodeBadRequest, "Invalid reference").WithCause(pqErr)
	case "not_null_violation", "check_violation", "invalid_text_representation":
		return NewBusinessError(ErrCodeBadRequest, "Invalid data").WithCause(pqErr)
	default:
		return NewSystemError(ErrCodeDatabaseError, "Database operation failed").WithCause(pqErr)
	}
}

// translateDatabaseError 按消息转换数据库错误
func (t *ErrorTranslator) translateDatabaseError(err error) *AppError {
	errMsg := err.Error()

	if strings.Contains(errMsg, "duplicate key value") || strings.Contains(errMsg, "violates unique constraint") {
		return NewBusinessError(ErrCodeConflict, "Resource already exists").WithCause(err)
	}
	if strings.Contains(errMsg, "violates foreign key constraint") {
		return NewBusinessError(ErrCodeBadRequest, "Invalid reference").WithCause(err)
	}
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NewSystemError(ErrCodeDatabaseError, "Database connection failed").WithCause(err)
	}
	return NewSystemError(ErrCodeDatabaseError, "Database operation failed").WithCause(err)
}

// isDatabaseError 检查是否为数据库错误
func (t *ErrorTranslator) isDatabaseError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	for _, keyword := range []string{"pq:", "sqlstate", "postgresql", "relation", "constraint", "duplicate key"} {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}

// getValidationErrorMessage 获取验证错误消息
func (t *ErrorTranslator) getValidationErrorMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "uuid", "uuid4":
		return field + " must be a valid UUID"
	case "min":
		return field + " must be at least " + fieldError.Param()
	case "max":
		return field + " must be at most " + fieldError.Param()
	case "gte":
		return field + " must be greater than or equal to " + fieldError.Param()
	case "lte":
		return field + " must be less than or equal to " + fieldError.Param()
	case "required_without":
		return field + " is required when " + fieldError.Param() + " is empty"
	default:
		return field + " is invalid"
	}
}

// Wrap 包装错误为AppError
func (t *ErrorTranslator) Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return NewSystemError(code, message).WithCause(err)
}

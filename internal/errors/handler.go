package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// ErrorRecorder 错误计数
type ErrorRecorder interface {
	Error(code, errType string)
}

// ErrorHandler 错误处理器：翻译、记录并渲染错误响应
type ErrorHandler struct {
	translator *ErrorTranslator
	logger     *zap.Logger
	recorder   ErrorRecorder
}

// NewErrorHandler 创建错误处理器，recorder 可为空
func NewErrorHandler(translator *ErrorTranslator, logger *zap.Logger, recorder ErrorRecorder) *ErrorHandler {
	if translator == nil {
		translator = NewErrorTranslator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{translator: translator, logger: logger, recorder: recorder}
}

// Resolve 把任意错误转换为AppError，并记录日志与指标
func (h *ErrorHandler) Resolve(r *http.Request, err error) *AppError {
	appErr := h.translator.Translate(err)
	if appErr == nil {
		appErr = NewSystemError(ErrCodeInternalServer, "Internal server error")
	}
	if h.recorder != nil {
		h.recorder.Error(string(appErr.Code), appErr.Type.String())
	}
	h.logError(appErr, r)
	return appErr
}

// Body 错误响应体
func (h *ErrorHandler) Body(appErr *AppError) map[string]interface{} {
	body := map[string]interface{}{
		"code":    string(appErr.Code),
		"message": appErr.Message,
		"type":    appErr.Type.String(),
	}
	if appErr.Details != nil && shouldIncludeDetails(appErr) {
		body["details"] = appErr.Details
	}
	return map[string]interface{}{
		"success": false,
		"error":   body,
	}
}

// Handle 处理错误并写出HTTP响应
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	appErr := h.Resolve(r, err)

	payload, jsonErr := json.Marshal(h.Body(appErr))
	w.Header().Set("Content-Type", "application/json")
	if jsonErr != nil {
		h.logger.Error("Failed to marshal error response", zap.Error(jsonErr))
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"success":false,"error":{"code":"INTERNAL_SERVER_ERROR","message":"Failed to process error response"}}`)
		return
	}
	w.WriteHeader(appErr.HTTPCode)
	_, _ = w.Write(payload)
}

// HandlePanic 处理panic并转换为错误响应
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	err := fmt.Errorf("panic recovered: %v", recovered)
	h.logger.Error("Panic recovered",
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.ByteString("stack", debug.Stack()))
	h.Handle(w, r, NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err))
}

// Middleware 创建错误处理中间件
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				h.HandlePanic(w, r, recovered)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// logError 根据错误类型选择日志级别
func (h *ErrorHandler) logError(appErr *AppError, r *http.Request) {
	fields := []zap.Field{
		zap.String("error_code", string(appErr.Code)),
		zap.String("error_type", appErr.Type.String()),
		zap.Int("http_code", appErr.HTTPCode),
	}
	if r != nil {
		fields = append(fields,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", getClientIP(r)))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}

	switch appErr.Type {
	case ErrorTypeSystem:
		h.logger.Error("System error occurred", fields...)
	case ErrorTypeValidation:
		h.logger.Info("Validation error occurred", fields...)
	default:
		h.logger.Warn(appErr.Type.String()+" error occurred", fields...)
	}
}

// shouldIncludeDetails 系统错误和外部错误不暴露详情
func shouldIncludeDetails(appErr *AppError) bool {
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeBusiness:
		return true
	default:
		return false
	}
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx > 0 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

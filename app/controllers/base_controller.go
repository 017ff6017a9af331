package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/aihub/knowledge-rag/internal/errors"
	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes 请求体上限，内联文本写入需要较大的请求体
const maxBodyBytes = 32 << 20

var validate = newValidator()

// newValidator 校验错误使用 JSON 字段名
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// BaseController provides helpers for consistent JSON responses.
// 导出字段会被 beego 复制到每个请求的控制器实例
type BaseController struct {
	web.Controller

	Errors         *errors.ErrorHandler
	RequestTimeout time.Duration
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// Fail writes the error envelope for err.
func (c *BaseController) Fail(err error) {
	handler := c.errorHandler()
	appErr := handler.Resolve(c.Ctx.Request, err)
	c.JSON(appErr.HTTPCode, handler.Body(appErr))
}

// FailWithDetails 错误响应附带处理进度，不受错误类型的详情过滤
func (c *BaseController) FailWithDetails(err error, details interface{}) {
	handler := c.errorHandler()
	appErr := handler.Resolve(c.Ctx.Request, err)
	body := handler.Body(appErr)
	if inner, ok := body["error"].(map[string]interface{}); ok {
		inner["details"] = details
	}
	c.JSON(appErr.HTTPCode, body)
}

func (c *BaseController) errorHandler() *errors.ErrorHandler {
	if c.Errors == nil {
		return errors.NewErrorHandler(nil, nil, nil)
	}
	return c.Errors
}

// bindJSON 解码并校验请求体
func (c *BaseController) bindJSON(dst interface{}) error {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 && c.Ctx.Request.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(c.Ctx.Request.Body, maxBodyBytes))
		if err != nil {
			return errors.NewInvalidInputError("body", "could not be read")
		}
		body = raw
	}
	if len(body) == 0 {
		return errors.NewInvalidInputError("body", "is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewInvalidInputError("body", "must be valid JSON")
	}
	return validate.Struct(dst)
}

// requestContext 请求上下文，配置超时时附加截止时间
func (c *BaseController) requestContext() (context.Context, context.CancelFunc) {
	ctx := c.Ctx.Request.Context()
	if c.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

package controllers

import (
	"net/http"
	"time"

	"github.com/aihub/knowledge-rag/internal/database"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

// Index GET /
func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{"message": "Knowledge RAG Service API"})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController

	Checker *database.HealthChecker
}

// Health GET /health，任一依赖不可用时返回 503
func (c *HealthController) Health() {
	if c.Checker == nil {
		c.JSONSuccess(map[string]interface{}{"status": "healthy", "checkedAt": time.Now().UTC()})
		return
	}

	ctx, cancel := c.requestContext()
	defer cancel()

	report := c.Checker.CheckAll(ctx)
	status := "healthy"
	code := http.StatusOK
	if !report.Healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, map[string]interface{}{
		"success": report.Healthy,
		"data": map[string]interface{}{
			"status":     status,
			"components": report.Components,
			"checkedAt":  time.Now().UTC(),
		},
	})
}

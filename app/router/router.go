package router

import (
	"net/http"
	"time"

	"github.com/aihub/knowledge-rag/app/controllers"
	"github.com/aihub/knowledge-rag/app/middleware"
	"github.com/aihub/knowledge-rag/internal/database"
	"github.com/aihub/knowledge-rag/internal/errors"
	"github.com/aihub/knowledge-rag/internal/interfaces"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

// Dependencies 路由需要的组件
type Dependencies struct {
	Service        interfaces.RAGServiceInterface
	Errors         *errors.ErrorHandler
	Checker        *database.HealthChecker
	Metrics        http.Handler
	Logger         *zap.Logger
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Init registers all routes on the default beego application.
func Init(deps Dependencies) error {
	return Register(web.BeeApp.Handlers, deps)
}

// Register 在指定的路由表上注册全部路由与过滤器
func Register(handlers *web.ControllerRegister, deps Dependencies) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if err := handlers.InsertFilter("/*", web.BeforeRouter, middleware.RequestID); err != nil {
		return err
	}
	if err := handlers.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware(deps.AllowedOrigins)); err != nil {
		return err
	}
	if err := handlers.InsertFilter("/*", web.FinishRouter, middleware.AccessLog(deps.Logger.Named("access")),
		web.WithReturnOnOutput(false)); err != nil {
		return err
	}

	base := controllers.BaseController{Errors: deps.Errors, RequestTimeout: deps.RequestTimeout}

	root := &controllers.RootController{BaseController: base}
	handlers.Add("/", root, web.WithRouterMethods(root, "get:Index"))

	health := &controllers.HealthController{BaseController: base, Checker: deps.Checker}
	handlers.Add("/health", health, web.WithRouterMethods(health, "get:Health"))

	metrics := &controllers.MetricsController{Handler: deps.Metrics}
	handlers.Add("/metrics", metrics, web.WithRouterMethods(metrics, "get:Metrics"))

	// 具体路由必须在参数路由之前
	rag := controllers.NewRAGController(deps.Service, base, deps.Logger.Named("rag_api"))
	handlers.Add("/api/rag/query", rag, web.WithRouterMethods(rag, "post:Query"))
	handlers.Add("/api/rag/answer", rag, web.WithRouterMethods(rag, "post:Answer"))
	handlers.Add("/api/rag/embeddings/pending-count", rag, web.WithRouterMethods(rag, "get:PendingCount"))
	handlers.Add("/api/rag/documents/:id/embeddings", rag, web.WithRouterMethods(rag, "post:GenerateEmbeddings"))
	handlers.Add("/api/rag/documents/:id/embeddings-status", rag, web.WithRouterMethods(rag, "get:EmbeddingStatus"))
	handlers.Add("/api/rag/documents/:id/sections", rag, web.WithRouterMethods(rag, "post:IngestSections"))
	handlers.Add("/api/rag/documents/:id", rag, web.WithRouterMethods(rag, "delete:DeleteDocument"))

	return nil
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aihub/knowledge-rag/app/bootstrap"
	"github.com/aihub/knowledge-rag/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	// 配置Beego全局设置
	web.BConfig.AppName = "Knowledge RAG Service"
	web.BConfig.CopyRequestBody = true
	web.BConfig.RecoverPanic = false
	if app.Config.Server.Env == "production" {
		web.BConfig.RunMode = web.PROD
	}

	addr := ":" + app.Config.Server.Port
	go func() {
		logger.Info("Starting Knowledge RAG Service", zap.String("addr", addr))
		web.RunWithMiddleWares(addr, app.Errors.Middleware)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := web.BeeApp.Server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

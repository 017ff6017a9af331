package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/aihub/knowledge-rag/app/router"
	"github.com/aihub/knowledge-rag/internal/config"
	"github.com/aihub/knowledge-rag/internal/database"
	"github.com/aihub/knowledge-rag/internal/di"
	"github.com/aihub/knowledge-rag/internal/errors"
	"github.com/aihub/knowledge-rag/internal/kafka"
	"github.com/aihub/knowledge-rag/internal/logger"
	"github.com/aihub/knowledge-rag/internal/metrics"
	"github.com/aihub/knowledge-rag/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config *config.Config
	Errors *errors.ErrorHandler

	cancel       context.CancelFunc
	cleanupTasks []func() error
}

// components 启动阶段从容器取出的组件
type components struct {
	dig.In

	DB       *gorm.DB
	Redis    *redis.Client
	Producer *kafka.Producer
	Service  *services.RAGService
	Errors   *errors.ErrorHandler
	Checker  *database.HealthChecker
	Metrics  *metrics.Recorder
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	config.LoadDotEnv()

	// 先用环境变量初始化日志，配置加载后再按配置调整
	if err := logger.InitLogger(logger.OptionsFromEnv()); err != nil {
		return nil, err
	}

	loader := config.NewLoader("", logger.Named("config"))
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(logger.Options{Env: cfg.Server.Env, Level: cfg.Log.Level}); err != nil {
		return nil, err
	}

	container, err := di.InitContainer(cfg, logger.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("init container: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{Config: cfg, cancel: cancel}

	if cfg.Database.AutoMigrate {
		if err := container.Invoke(func(l *logrus.Logger) error {
			return runMigrations(cfg.Database, l)
		}); err != nil {
			cancel()
			return nil, err
		}
	}

	var c components
	if err := container.Invoke(func(p components) { c = p }); err != nil {
		cancel()
		return nil, fmt.Errorf("resolve components: %w", err)
	}
	app.Errors = c.Errors

	app.cleanupTasks = append(app.cleanupTasks, func() error {
		return database.Close(c.DB)
	})
	if c.Redis != nil {
		app.cleanupTasks = append(app.cleanupTasks, c.Redis.Close)
	}
	if c.Producer != nil {
		app.cleanupTasks = append(app.cleanupTasks, c.Producer.Close)
	}

	// 嵌入任务消费者，同时订阅重试主题
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topic, kafka.RetryTopic(cfg.Kafka.Topic)}
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics, logger.Named("kafka"))
		if err != nil {
			logger.Warn("Failed to initialize Kafka consumer", zap.Error(err))
		} else {
			handler := c.Service.EmbeddingJobHandler()
			for _, topic := range topics {
				consumer.RegisterHandler(topic, handler)
			}
			consumer.Start(ctx)
			app.cleanupTasks = append(app.cleanupTasks, consumer.Close)
			logger.Info("Kafka consumer started", zap.Strings("topics", topics))
		}
	}

	c.Checker.Start(ctx)
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		c.Checker.Stop()
		return nil
	})

	loader.RegisterCallback(func(oldConfig, newConfig *config.Config) error {
		if oldConfig == nil || oldConfig.Log.Level != newConfig.Log.Level {
			logger.SetLevel(newConfig.Log.Level)
			logger.Info("Log level updated", zap.String("level", newConfig.Log.Level))
		}
		return nil
	})
	if err := loader.StartWatching(); err != nil {
		logger.Debug("Config file watching disabled", zap.Error(err))
	}

	if err := router.Init(router.Dependencies{
		Service:        c.Service,
		Errors:         c.Errors,
		Checker:        c.Checker,
		Metrics:        c.Metrics.Handler(),
		Logger:         logger.GetLogger(),
		RequestTimeout: cfg.Knowledge.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("init router: %w", err)
	}

	return app, nil
}

// runMigrations 使用独立连接执行迁移，迁移器关闭时会关闭该连接
func runMigrations(cfg config.DatabaseConfig, l *logrus.Logger) error {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	manager, err := database.NewMigrationManager(db, cfg.MigrationsPath, l)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer manager.Close()

	return manager.Up()
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}

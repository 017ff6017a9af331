package di

import (
	"context"
	"os"
	"time"

	"github.com/aihub/knowledge-rag/internal/config"
	"github.com/aihub/knowledge-rag/internal/database"
	"github.com/aihub/knowledge-rag/internal/errors"
	"github.com/aihub/knowledge-rag/internal/interfaces"
	"github.com/aihub/knowledge-rag/internal/kafka"
	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/aihub/knowledge-rag/internal/metrics"
	"github.com/aihub/knowledge-rag/internal/repository"
	"github.com/aihub/knowledge-rag/internal/services"
	"github.com/aihub/knowledge-rag/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// RegisterInfrastructure 注册外部连接：数据库、Redis、MinIO、Kafka
func RegisterInfrastructure(container *dig.Container) error {
	// 注册数据库
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
		return database.OpenPostgres(cfg.Database, cfg.Server.Env, logger)
	}); err != nil {
		return err
	}

	// 注册Redis，未启用时为 nil
	if err := container.Provide(func(cfg *config.Config) (*redis.Client, error) {
		return database.OpenRedis(context.Background(), cfg.Redis)
	}); err != nil {
		return err
	}

	// 注册MinIO文本存储，未启用时为 nil
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*storage.MinIOTextStore, error) {
		if !cfg.Storage.Enabled {
			return nil, nil
		}
		store, err := storage.NewMinIOTextStore(cfg.Storage, logger.Named("storage"))
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}); err != nil {
		return err
	}

	// 注册Kafka生产者，未启用时为 nil
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*kafka.Producer, error) {
		if !cfg.Kafka.Enabled {
			return nil, nil
		}
		return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("kafka"))
	}); err != nil {
		return err
	}

	return nil
}

// embedders 段落嵌入与问题嵌入分开注入，问题嵌入带缓存
type embedders struct {
	dig.Out

	Sections  knowledge.Embedder `name:"sections"`
	Questions knowledge.Embedder `name:"questions"`
}

type sectionEmbedderParams struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Repo     repository.SectionRepository
	Embedder knowledge.Embedder `name:"sections"`
}

type retrieverParams struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Repo     repository.SectionRepository
	Embedder knowledge.Embedder `name:"questions"`
}

type embedderParams struct {
	dig.In

	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Limiter *rate.Limiter
	Redis   *redis.Client `optional:"true"`
}

type ragServiceParams struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Repo      repository.SectionRepository
	Chunker   *knowledge.Chunker
	Embedder  *knowledge.SectionEmbedder
	Retriever *knowledge.Retriever
	Assembler *knowledge.ContextAssembler
	Answerer  *knowledge.Answerer
	Metrics   *metrics.Recorder
	Texts     *storage.MinIOTextStore `optional:"true"`
	Producer  *kafka.Producer         `optional:"true"`
}

type healthParams struct {
	dig.In

	DB     *gorm.DB
	Logger *logrus.Logger
	Redis  *redis.Client           `optional:"true"`
	Texts  *storage.MinIOTextStore `optional:"true"`
}

// RegisterProviders 注册指标、存储、检索问答组件与RAG服务
func RegisterProviders(container *dig.Container) error {
	providers := []interface{}{
		newLogrusLogger,
		newMetricsRecorder,
		func(cfg *config.Config) *rate.Limiter {
			return knowledge.NewLimiter(cfg.AI.RateLimit.RequestsPerSecond, cfg.AI.RateLimit.Burst)
		},
		repository.NewSectionRepository,
		newEmbedders,
		newGenerator,
		func(cfg *config.Config) *knowledge.Chunker {
			return knowledge.NewChunker(cfg.Knowledge.ChunkSize)
		},
		func(cfg *config.Config) *knowledge.ContextAssembler {
			return knowledge.NewContextAssembler(cfg.Knowledge.ContextBudget)
		},
		func(p sectionEmbedderParams) *knowledge.SectionEmbedder {
			return knowledge.NewSectionEmbedder(p.Embedder, p.Repo, knowledge.SectionEmbedderConfig{
				MaxParallel: p.Config.Knowledge.MaxParallel,
				BatchSize:   p.Config.Knowledge.EmbedBatchSize,
			}, p.Logger.Named("embedder"))
		},
		func(p retrieverParams) *knowledge.Retriever {
			r := p.Config.Knowledge.Retrieval
			return knowledge.NewRetriever(p.Repo, p.Embedder, knowledge.RetrieverConfig{
				DefaultTopK: r.DefaultTopK,
				MaxTopK:     r.MaxTopK,
				MinScore:    r.MinScore,
			}, p.Logger.Named("retriever"))
		},
		func(gen knowledge.Generator, logger *zap.Logger) *knowledge.Answerer {
			return knowledge.NewAnswerer(gen, logger.Named("answerer"))
		},
		newRAGService,
		func(s *services.RAGService) interfaces.RAGServiceInterface { return s },
		newHealthChecker,
		errors.NewErrorTranslator,
		func(t *errors.ErrorTranslator, logger *zap.Logger, recorder *metrics.Recorder) *errors.ErrorHandler {
			return errors.NewErrorHandler(t, logger.Named("http"), recorder)
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}

// newLogrusLogger 数据库基础设施使用的 logrus 日志
func newLogrusLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func newMetricsRecorder(db *gorm.DB) (*metrics.Recorder, error) {
	recorder := metrics.New()
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := recorder.RegisterDB(sqlDB, "knowledge"); err != nil {
		return nil, err
	}
	return recorder, nil
}

func newEmbedders(p embedderParams) embedders {
	ai := p.Config.AI
	base := knowledge.NewOpenAIEmbedder(knowledge.OpenAIConfig{
		APIKey:  ai.OpenAIAPIKey,
		BaseURL: ai.BaseURL,
		Model:   ai.EmbeddingModel,
	})
	if _, ok := base.(*knowledge.NoopEmbedder); ok {
		p.Logger.Warn("OpenAI API key not configured, embedding requests will fail")
	} else {
		base = knowledge.NewGuardedEmbedder(base, newGuard("embedding", ai, p.Limiter, p.Logger))
	}

	out := embedders{Sections: base, Questions: base}
	if p.Redis != nil {
		cached := knowledge.NewCachedEmbedder(base, p.Redis, ai.EmbeddingModel, p.Config.Redis.TTL, p.Logger.Named("embedding_cache"))
		if c, ok := cached.(*knowledge.CachedEmbedder); ok {
			c.SetObserver(p.Metrics)
		}
		out.Questions = cached
	}
	return out
}

func newGenerator(cfg *config.Config, limiter *rate.Limiter, logger *zap.Logger) knowledge.Generator {
	gen := knowledge.NewOpenAIGenerator(knowledge.OpenAIConfig{
		APIKey:  cfg.AI.OpenAIAPIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.ChatModel,
	}, knowledge.GeneratorOptions{
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if _, ok := gen.(*knowledge.NoopGenerator); ok {
		return gen
	}
	return knowledge.NewGuardedGenerator(gen, newGuard("generation", cfg.AI, limiter, logger))
}

// newGuard 嵌入与生成各自熔断，共享限流
func newGuard(name string, ai config.AIConfig, limiter *rate.Limiter, logger *zap.Logger) *knowledge.ProviderGuard {
	breaker := knowledge.NewCircuitBreaker(name, knowledge.BreakerConfig{
		FailureThreshold: ai.Breaker.FailureThreshold,
		SuccessThreshold: ai.Breaker.SuccessThreshold,
		OpenTimeout:      ai.Breaker.OpenTimeout,
	}, logger.Named("breaker"))
	return knowledge.NewProviderGuard(breaker, limiter)
}

func newRAGService(p ragServiceParams) *services.RAGService {
	deps := services.RAGServiceDeps{
		Repo:       p.Repo,
		Chunker:    p.Chunker,
		Embedder:   p.Embedder,
		Retriever:  p.Retriever,
		Assembler:  p.Assembler,
		Answerer:   p.Answerer,
		Metrics:    p.Metrics,
		Logger:     p.Logger.Named("rag"),
		JobTimeout: p.Config.Knowledge.RequestTimeout,
	}
	// nil 指针不能直接赋给接口
	if p.Texts != nil {
		deps.Texts = p.Texts
	}
	if p.Producer != nil {
		deps.Jobs = p.Producer
	}
	return services.NewRAGService(deps)
}

func newHealthChecker(p healthParams) (*database.HealthChecker, error) {
	checker := database.NewHealthChecker(p.Logger)
	sqlDB, err := p.DB.DB()
	if err != nil {
		return nil, err
	}
	checker.Register("postgres", database.SQLProbe(sqlDB))
	if p.Redis != nil {
		checker.Register("redis", database.RedisProbe(p.Redis))
	}
	if p.Texts != nil {
		checker.Register("minio", p.Texts.HealthCheck)
	}
	return checker, nil
}

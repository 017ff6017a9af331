package interfaces

import (
	"context"
	"time"

	"github.com/aihub/knowledge-rag/internal/kafka"
	"github.com/aihub/knowledge-rag/internal/knowledge"
)

// IngestRequest 写入文档文本；Text 与 ObjectKey 二选一
type IngestRequest struct {
	DocumentID string
	UserID     string
	FileName   string
	Text       string
	ObjectKey  string
}

// IngestResult 写入结果
type IngestResult struct {
	DocumentID  string
	Sections    int
	JobEnqueued bool
}

// EmbeddingResult 一次嵌入处理的结果
type EmbeddingResult struct {
	DocumentID        string
	ProcessedSections int
	SkippedSections   int
	// FailedSections 部分失败时未写入的段落
	FailedSections []string
	ProcessedAt    time.Time
}

// AnswerRequest 问答请求
type AnswerRequest struct {
	UserID      string
	Question    string
	DocumentIDs []string
}

// RAGServiceInterface 检索增强问答服务
type RAGServiceInterface interface {
	IngestDocument(ctx context.Context, req IngestRequest) (*IngestResult, error)
	// GenerateEmbeddings 部分段落失败时同时返回已处理结果与错误
	GenerateEmbeddings(ctx context.Context, documentID string) (*EmbeddingResult, error)
	Query(ctx context.Context, req knowledge.RetrievalRequest) ([]knowledge.ScoredSection, error)
	Answer(ctx context.Context, req AnswerRequest) (knowledge.AnswerResult, error)
	HasEmbeddings(ctx context.Context, documentID string) (bool, error)
	PendingCount(ctx context.Context) (int64, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// TextStore 抽取后文本的对象存储
type TextStore interface {
	GetText(ctx context.Context, objectKey string) (string, error)
	PutText(ctx context.Context, objectKey, text string) error
}

// JobPublisher 异步嵌入任务发布
type JobPublisher interface {
	PublishEmbeddingJob(msg *kafka.EmbeddingJobMessage) error
	PublishRetry(msg *kafka.EmbeddingJobMessage, lastErr error) error
}

// MetricsInterface 服务使用的指标
type MetricsInterface interface {
	EmbeddingsProcessed(generated, skipped, failed int)
	Retrieval(elapsed time.Duration, found int)
	Answer(outcome string)
	Job(status string)
}


package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/knowledge-rag/internal/errors"
	"github.com/aihub/knowledge-rag/internal/interfaces"
	"github.com/aihub/knowledge-rag/internal/kafka"
	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/aihub/knowledge-rag/internal/models"
	"github.com/aihub/knowledge-rag/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxJobRetries 嵌入任务最大重试次数
const MaxJobRetries = 3

// ObjectKeyPrefix 内联文本归档到对象存储时的前缀
const ObjectKeyPrefix = "documents/"

// RAGServiceDeps RAG服务依赖；Texts 与 Jobs 可为空
type RAGServiceDeps struct {
	Repo      repository.SectionRepository
	Chunker   *knowledge.Chunker
	Embedder  *knowledge.SectionEmbedder
	Retriever *knowledge.Retriever
	Assembler *knowledge.ContextAssembler
	Answerer  *knowledge.Answerer
	Texts     interfaces.TextStore
	Jobs      interfaces.JobPublisher
	Metrics   interfaces.MetricsInterface
	Logger    *zap.Logger
	// JobTimeout 单个异步嵌入任务的超时，0 表示不限制
	JobTimeout time.Duration
}

// RAGService 文档段落嵌入、检索与问答
type RAGService struct {
	repo       repository.SectionRepository
	chunker    *knowledge.Chunker
	embedder   *knowledge.SectionEmbedder
	retriever  *knowledge.Retriever
	assembler  *knowledge.ContextAssembler
	answerer   *knowledge.Answerer
	texts      interfaces.TextStore
	jobs       interfaces.JobPublisher
	metrics    interfaces.MetricsInterface
	logger     *zap.Logger
	jobTimeout time.Duration

	newID func() string
	now   func() time.Time
}

var _ interfaces.RAGServiceInterface = (*RAGService)(nil)

// NewRAGService 创建RAG服务
func NewRAGService(deps RAGServiceDeps) *RAGService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Chunker == nil {
		deps.Chunker = knowledge.NewChunker(knowledge.DefaultChunkSize)
	}
	if deps.Assembler == nil {
		deps.Assembler = knowledge.NewContextAssembler(knowledge.DefaultContextBudget)
	}
	return &RAGService{
		repo:       deps.Repo,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		retriever:  deps.Retriever,
		assembler:  deps.Assembler,
		answerer:   deps.Answerer,
		texts:      deps.Texts,
		jobs:       deps.Jobs,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		jobTimeout: deps.JobTimeout,
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
	}
}

// IngestDocument 切分文档文本并替换其全部段落，之后投递嵌入任务
func (s *RAGService) IngestDocument(ctx context.Context, req interfaces.IngestRequest) (*interfaces.IngestResult, error) {
	documentID, err := normalizeID("documentId", req.DocumentID)
	if err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(req.UserID)
	if userID != "" {
		if userID, err = normalizeID("userId", userID); err != nil {
			return nil, err
		}
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, knowledge.NewValidationError("fileName", "is required")
	}

	text, objectKey, err := s.resolveText(ctx, documentID, req)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, knowledge.ErrEmptyText
	}

	doc := &models.Document{
		DocumentID: documentID,
		UserID:     userID,
		FileName:   fileName,
		ObjectKey:  objectKey,
	}
	sections := make([]models.DocumentSection, len(chunks))
	for i, chunk := range chunks {
		sections[i] = models.DocumentSection{
			SectionID:    s.newID(),
			DocumentID:   documentID,
			SectionOrder: chunk.Order,
			Content:      chunk.Content,
		}
	}

	if err := s.repo.ReplaceSections(ctx, doc, sections); err != nil {
		s.logger.Error("Failed to store document sections", zap.String("document_id", documentID), zap.Error(err))
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "Failed to store document sections").WithCause(err)
	}

	s.logger.Info("Document ingested",
		zap.String("document_id", documentID),
		zap.String("file_name", fileName),
		zap.Int("sections", len(sections)))

	return &interfaces.IngestResult{
		DocumentID:  documentID,
		Sections:    len(sections),
		JobEnqueued: s.enqueue(documentID, userID),
	}, nil
}

// resolveText 取内联文本或对象存储中的文本；内联文本在配置存储时归档
func (s *RAGService) resolveText(ctx context.Context, documentID string, req interfaces.IngestRequest) (string, string, error) {
	objectKey := strings.TrimSpace(req.ObjectKey)

	if strings.TrimSpace(req.Text) != "" {
		if s.texts == nil {
			return req.Text, objectKey, nil
		}
		if objectKey == "" {
			objectKey = ObjectKeyPrefix + documentID + ".txt"
		}
		if err := s.texts.PutText(ctx, objectKey, req.Text); err != nil {
			s.logger.Warn("Failed to archive document text", zap.String("object_key", objectKey), zap.Error(err))
			objectKey = ""
		}
		return req.Text, objectKey, nil
	}

	if objectKey == "" {
		return "", "", knowledge.NewValidationError("text", "text or objectKey is required")
	}
	if s.texts == nil {
		return "", "", knowledge.NewValidationError("objectKey", "object storage is not configured")
	}
	text, err := s.texts.GetText(ctx, objectKey)
	if err != nil {
		return "", "", errors.NewExternalError(errors.ErrCodeStorageError, "Failed to read document text").WithCause(err)
	}
	return text, objectKey, nil
}

// enqueue 投递嵌入任务，失败只记录日志，调用方可手动触发嵌入
func (s *RAGService) enqueue(documentID, userID string) bool {
	if s.jobs == nil {
		return false
	}
	err := s.jobs.PublishEmbeddingJob(&kafka.EmbeddingJobMessage{
		DocumentID: documentID,
		UserID:     userID,
		Action:     kafka.ActionEmbedDocument,
		Timestamp:  s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to enqueue embedding job", zap.String("document_id", documentID), zap.Error(err))
		s.metrics.Job("publish_failed")
		return false
	}
	s.metrics.Job("enqueued")
	return true
}

// GenerateEmbeddings 为文档所有未嵌入的段落生成嵌入，已嵌入的段落不会重复处理
func (s *RAGService) GenerateEmbeddings(ctx context.Context, documentID string) (*interfaces.EmbeddingResult, error) {
	documentID, err := normalizeID("documentId", documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	pending, err := s.repo.ListPendingSections(ctx, documentID)
	if err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeDatabaseError, "Failed to list pending sections").WithCause(err)
	}

	result := &interfaces.EmbeddingResult{DocumentID: documentID}
	if len(pending) == 0 {
		result.ProcessedAt = s.now()
		s.logger.Info("All sections already have embeddings", zap.String("document_id", documentID))
		return result, nil
	}

	report, err := s.embedder.EmbedSections(ctx, pending)
	s.metrics.EmbeddingsProcessed(report.Processed, report.Skipped, len(report.Failures))
	if err != nil {
		return nil, fmt.Errorf("embed sections of %s: %w", documentID, err)
	}

	result.ProcessedSections = report.Processed
	result.SkippedSections = report.Skipped
	result.ProcessedAt = s.now()
	if err := report.Err(); err != nil {
		result.FailedSections = report.FailedSectionIDs()
		s.logger.Error("Embedding generation incomplete",
			zap.String("document_id", documentID),
			zap.Int("processed", report.Processed),
			zap.Strings("failed_sections", result.FailedSections))
		return result, err
	}
	s.logger.Info("Generated section embeddings",
		zap.String("document_id", documentID),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped))
	return result, nil
}

// Query 检索与问题最相关的段落，嵌入失败直接返回错误
func (s *RAGService) Query(ctx context.Context, req knowledge.RetrievalRequest) ([]knowledge.ScoredSection, error) {
	started := s.now()
	results, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.Retrieval(s.now().Sub(started), len(results))
	return results, nil
}

// Answer 检索上下文并生成回答；仅参数错误返回 error，其余失败降级为兜底回复
func (s *RAGService) Answer(ctx context.Context, req interfaces.AnswerRequest) (knowledge.AnswerResult, error) {
	retrieval := knowledge.RetrievalRequest{Question: req.Question, DocumentIDs: req.DocumentIDs}
	if _, err := s.retriever.Validate(retrieval); err != nil {
		return knowledge.AnswerResult{}, err
	}

	started := s.now()
	sections, err := s.retriever.Retrieve(ctx, retrieval)
	if err != nil {
		s.logger.Error("Retrieval failed while answering",
			zap.String("user_id", req.UserID),
			zap.String("question", req.Question),
			zap.Error(err))
		s.metrics.Answer(string(knowledge.OutcomeFallback))
		return knowledge.AnswerResult{Text: knowledge.FallbackAnswer, Outcome: knowledge.OutcomeFallback}, nil
	}
	s.metrics.Retrieval(s.now().Sub(started), len(sections))

	matched := make([]knowledge.Section, len(sections))
	for i, scored := range sections {
		matched[i] = scored.Section
	}

	result := s.answerer.Answer(ctx, knowledge.AnswerInput{
		UserID:   req.UserID,
		Question: req.Question,
		Context:  s.assembler.Assemble(matched),
	})
	s.metrics.Answer(string(result.Outcome))
	return result, nil
}

// HasEmbeddings 文档是否已有段落完成嵌入
func (s *RAGService) HasEmbeddings(ctx context.Context, documentID string) (bool, error) {
	documentID, err := normalizeID("documentId", documentID)
	if err != nil {
		return false, err
	}
	ok, err := s.repo.HasEmbeddings(ctx, documentID)
	if err != nil {
		return false, errors.NewSystemError(errors.ErrCodeDatabaseError, "Failed to check embedding status").WithCause(err)
	}
	return ok, nil
}

// PendingCount 尚未嵌入的段落总数
func (s *RAGService) PendingCount(ctx context.Context) (int64, error) {
	count, err := s.repo.CountPending(ctx)
	if err != nil {
		return 0, errors.NewSystemError(errors.ErrCodeDatabaseError, "Failed to count pending sections").WithCause(err)
	}
	return count, nil
}

// DeleteDocument 删除文档及其段落
func (s *RAGService) DeleteDocument(ctx context.Context, documentID string) error {
	documentID, err := normalizeID("documentId", documentID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteDocument(ctx, documentID)
	if err != nil {
		return errors.NewSystemError(errors.ErrCodeDatabaseError, "Failed to delete document").WithCause(err)
	}
	if !deleted {
		return errors.NewNotFoundError("Document")
	}
	s.logger.Info("Document deleted", zap.String("document_id", documentID))
	return nil
}

// EmbeddingJobHandler 处理嵌入任务消息，失败时投递重试，超过上限后丢弃
func (s *RAGService) EmbeddingJobHandler() kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		job, err := kafka.ParseEmbeddingJobMessage(message.Value)
		if err != nil {
			s.logger.Error("Dropping malformed embedding job", zap.Int64("offset", message.Offset), zap.Error(err))
			s.metrics.Job("malformed")
			return nil
		}
		if job.Action != "" && job.Action != kafka.ActionEmbedDocument {
			s.logger.Warn("Ignoring unknown job action", zap.String("action", job.Action))
			return nil
		}

		if s.jobTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
			defer cancel()
		}

		result, err := s.GenerateEmbeddings(ctx, job.DocumentID)
		if err == nil {
			s.metrics.Job("succeeded")
			s.logger.Info("Embedding job completed",
				zap.String("document_id", job.DocumentID),
				zap.Int("processed", result.ProcessedSections))
			return nil
		}

		var validation *knowledge.ValidationError
		if stderrors.Is(err, gorm.ErrRecordNotFound) || stderrors.As(err, &validation) {
			s.logger.Warn("Dropping embedding job for unknown document",
				zap.String("document_id", job.DocumentID),
				zap.Error(err))
			s.metrics.Job("dropped")
			return nil
		}

		if job.RetryCount >= MaxJobRetries || s.jobs == nil {
			s.logger.Error("Embedding job failed permanently",
				zap.String("document_id", job.DocumentID),
				zap.Int("retry_count", job.RetryCount),
				zap.Error(err))
			s.metrics.Job("failed")
			return nil
		}
		if perr := s.jobs.PublishRetry(job, err); perr != nil {
			return fmt.Errorf("republish embedding job %s: %w", job.DocumentID, perr)
		}
		s.metrics.Job("retried")
		return nil
	}
}

// normalizeID 校验并规范化UUID
func normalizeID(field, raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", knowledge.NewValidationError(field, fmt.Sprintf("%q is not a valid id", raw))
	}
	return parsed.String(), nil
}

// noopMetrics 未配置指标时使用
type noopMetrics struct{}

func (noopMetrics) EmbeddingsProcessed(generated, skipped, failed int) {}
func (noopMetrics) Retrieval(elapsed time.Duration, found int)         {}
func (noopMetrics) Answer(outcome string)                              {}
func (noopMetrics) Job(status string)                                  {}

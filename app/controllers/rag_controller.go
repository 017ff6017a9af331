package controllers

import (
	"strings"
	"time"

	"github.com/aihub/knowledge-rag/internal/interfaces"
	"github.com/aihub/knowledge-rag/internal/knowledge"
	"go.uber.org/zap"
)

// 嵌入接口返回的提示信息
const (
	MessageEmbeddingsGenerated = "Embeddings generated for document sections."
	MessageAlreadyEmbedded     = "All sections already have embeddings."
)

// QueryRequest 检索请求
type QueryRequest struct {
	Question string `json:"question" validate:"required_without=Query"`
	// Query 兼容旧字段名
	Query       string   `json:"query,omitempty"`
	DocumentIDs []string `json:"documentIds" validate:"omitempty,max=100"`
	TopK        int      `json:"topK" validate:"gte=0"`
}

// AnswerRequest 问答请求
type AnswerRequest struct {
	UserID      string   `json:"userId" validate:"required,uuid"`
	Question    string   `json:"question" validate:"required"`
	DocumentIDs []string `json:"documentIds" validate:"omitempty,max=100"`
}

// IngestRequest 写入文档文本请求
type IngestRequest struct {
	UserID    string `json:"userId" validate:"omitempty,uuid"`
	FileName  string `json:"fileName" validate:"required,max=255"`
	Text      string `json:"text" validate:"required_without=ObjectKey"`
	ObjectKey string `json:"objectKey" validate:"omitempty,max=500"`
}

// SectionResult 检索结果中的段落
type SectionResult struct {
	ID              string  `json:"id"`
	Content         string  `json:"content"`
	DocumentID      string  `json:"documentId"`
	DocumentName    string  `json:"documentName"`
	SimilarityScore float64 `json:"similarityScore"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Sections   []SectionResult `json:"sections"`
	TotalFound int             `json:"totalFound"`
	SearchedAt time.Time       `json:"searchedAt"`
}

// AnswerResponse 问答响应
type AnswerResponse struct {
	Answer      string    `json:"answer"`
	ProcessedAt time.Time `json:"processedAt"`
}

// EmbeddingResponse 嵌入生成响应
type EmbeddingResponse struct {
	Message           string    `json:"message"`
	DocumentID        string    `json:"documentId"`
	ProcessedSections int       `json:"processedSections"`
	ProcessedAt       time.Time `json:"processedAt"`
}

// EmbeddingStatusResponse 嵌入状态响应
type EmbeddingStatusResponse struct {
	DocumentID    string    `json:"documentId"`
	HasEmbeddings bool      `json:"hasEmbeddings"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// PendingCountResponse 待嵌入数量响应
type PendingCountResponse struct {
	PendingCount int64     `json:"pendingCount"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// IngestResponse 写入响应
type IngestResponse struct {
	DocumentID  string `json:"documentId"`
	Sections    int    `json:"sections"`
	JobEnqueued bool   `json:"jobEnqueued"`
}

// RAGController 检索增强问答控制器
type RAGController struct {
	BaseController

	Service interfaces.RAGServiceInterface
	Logger  *zap.Logger
}

// NewRAGController 创建控制器
func NewRAGController(service interfaces.RAGServiceInterface, base BaseController, logger *zap.Logger) *RAGController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGController{BaseController: base, Service: service, Logger: logger}
}

// Query POST /api/rag/query
func (c *RAGController) Query() {
	var req QueryRequest
	if err := c.bindJSON(&req); err != nil {
		c.Fail(err)
		return
	}
	question := req.Question
	if question == "" {
		question = req.Query
	}

	ctx, cancel := c.requestContext()
	defer cancel()

	results, err := c.Service.Query(ctx, knowledge.RetrievalRequest{
		Question:    question,
		DocumentIDs: req.DocumentIDs,
		TopK:        req.TopK,
	})
	if err != nil {
		c.Logger.Error("Error searching sections", zap.String("question", question), zap.Error(err))
		c.Fail(err)
		return
	}

	sections := make([]SectionResult, len(results))
	for i, r := range results {
		sections[i] = SectionResult{
			ID:              r.Section.ID,
			Content:         r.Section.Content,
			DocumentID:      r.Section.DocumentID,
			DocumentName:    r.Section.DocumentName,
			SimilarityScore: r.Score,
		}
	}
	c.JSONSuccess(SearchResponse{
		Sections:   sections,
		TotalFound: len(sections),
		SearchedAt: time.Now().UTC(),
	})
}

// Answer POST /api/rag/answer
func (c *RAGController) Answer() {
	var req AnswerRequest
	if err := c.bindJSON(&req); err != nil {
		c.Fail(err)
		return
	}

	ctx, cancel := c.requestContext()
	defer cancel()

	result, err := c.Service.Answer(ctx, interfaces.AnswerRequest{
		UserID:      req.UserID,
		Question:    req.Question,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		c.Fail(err)
		return
	}

	c.Logger.Info("Processed question",
		zap.String("user_id", req.UserID),
		zap.String("outcome", string(result.Outcome)))
	c.JSONSuccess(AnswerResponse{Answer: result.Text, ProcessedAt: time.Now().UTC()})
}

// GenerateEmbeddings POST /api/rag/documents/:id/embeddings
func (c *RAGController) GenerateEmbeddings() {
	documentID := c.Ctx.Input.Param(":id")

	ctx, cancel := c.requestContext()
	defer cancel()

	result, err := c.Service.GenerateEmbeddings(ctx, documentID)
	if err != nil {
		c.Logger.Error("Error generating embeddings", zap.String("document_id", documentID), zap.Error(err))
		if result != nil {
			c.FailWithDetails(err, map[string]interface{}{
				"documentId":        result.DocumentID,
				"processedSections": result.ProcessedSections,
				"failedSections":    result.FailedSections,
			})
			return
		}
		c.Fail(err)
		return
	}

	message := MessageEmbeddingsGenerated
	if result.ProcessedSections == 0 {
		message = MessageAlreadyEmbedded
	}
	c.JSONSuccess(EmbeddingResponse{
		Message:           message,
		DocumentID:        result.DocumentID,
		ProcessedSections: result.ProcessedSections,
		ProcessedAt:       result.ProcessedAt.UTC(),
	})
}

// EmbeddingStatus GET /api/rag/documents/:id/embeddings-status
func (c *RAGController) EmbeddingStatus() {
	documentID := strings.ToLower(strings.TrimSpace(c.Ctx.Input.Param(":id")))

	ctx, cancel := c.requestContext()
	defer cancel()

	ok, err := c.Service.HasEmbeddings(ctx, documentID)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(EmbeddingStatusResponse{
		DocumentID:    documentID,
		HasEmbeddings: ok,
		CheckedAt:     time.Now().UTC(),
	})
}

// PendingCount GET /api/rag/embeddings/pending-count
func (c *RAGController) PendingCount() {
	ctx, cancel := c.requestContext()
	defer cancel()

	count, err := c.Service.PendingCount(ctx)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(PendingCountResponse{PendingCount: count, CheckedAt: time.Now().UTC()})
}

// IngestSections POST /api/rag/documents/:id/sections
func (c *RAGController) IngestSections() {
	var req IngestRequest
	if err := c.bindJSON(&req); err != nil {
		c.Fail(err)
		return
	}

	ctx, cancel := c.requestContext()
	defer cancel()

	result, err := c.Service.IngestDocument(ctx, interfaces.IngestRequest{
		DocumentID: c.Ctx.Input.Param(":id"),
		UserID:     req.UserID,
		FileName:   req.FileName,
		Text:       req.Text,
		ObjectKey:  req.ObjectKey,
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(IngestResponse{
		DocumentID:  result.DocumentID,
		Sections:    result.Sections,
		JobEnqueued: result.JobEnqueued,
	})
}

// DeleteDocument DELETE /api/rag/documents/:id
func (c *RAGController) DeleteDocument() {
	documentID := c.Ctx.Input.Param(":id")

	ctx, cancel := c.requestContext()
	defer cancel()

	if err := c.Service.DeleteDocument(ctx, documentID); err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"documentId": documentID, "deleted": true})
}

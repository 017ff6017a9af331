package router

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aihub/knowledge-rag/app/controllers"
	"github.com/aihub/knowledge-rag/internal/errors"
	"github.com/aihub/knowledge-rag/internal/interfaces"
	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const docID = "6f1c2b0e-8a4d-4c1e-9b7a-2d5e3f4a1b2c"

// MockRAGService 模拟RAG服务
type MockRAGService struct {
	mock.Mock
}

func (m *MockRAGService) IngestDocument(ctx context.Context, req interfaces.IngestRequest) (*interfaces.IngestResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.IngestResult), args.Error(1)
}

func (m *MockRAGService) GenerateEmbeddings(ctx context.Context, documentID string) (*interfaces.EmbeddingResult, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.EmbeddingResult), args.Error(1)
}

func (m *MockRAGService) Query(ctx context.Context, req knowledge.RetrievalRequest) ([]knowledge.ScoredSection, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]knowledge.ScoredSection), args.Error(1)
}

func (m *MockRAGService) Answer(ctx context.Context, req interfaces.AnswerRequest) (knowledge.AnswerResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(knowledge.AnswerResult), args.Error(1)
}

func (m *MockRAGService) HasEmbeddings(ctx context.Context, documentID string) (bool, error) {
	args := m.Called(ctx, documentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRAGService) PendingCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRAGService) DeleteDocument(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    json.RawMessage        `json:"data"`
	Error   map[string]interface{} `json:"error"`
}

func newTestServer(t *testing.T) (*web.ControllerRegister, *MockRAGService) {
	t.Helper()
	svc := new(MockRAGService)
	t.Cleanup(func() { svc.AssertExpectations(t) })

	handlers := web.NewControllerRegister()
	require.NoError(t, Register(handlers, Dependencies{
		Service:        svc,
		Errors:         errors.NewErrorHandler(nil, zap.NewNop(), nil),
		Metrics:        http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("rag_up 1\n")) }),
		RequestTimeout: time.Second,
	}))
	return handlers, svc
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(rec.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestQuery(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("Query", mock.Anything, knowledge.RetrievalRequest{
		Question:    "what is rag?",
		DocumentIDs: []string{docID},
		TopK:        2,
	}).Return([]knowledge.ScoredSection{{
		Section: knowledge.Section{ID: "s1", DocumentID: docID, DocumentName: "rag.pdf", Content: "RAG combines retrieval."},
		Score:   0.91,
	}}, nil).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/query", map[string]interface{}{
		"question":    "what is rag?",
		"documentIds": []string{docID},
		"topK":        2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var data controllers.SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.TotalFound)
	assert.Equal(t, "rag.pdf", data.Sections[0].DocumentName)
	assert.InDelta(t, 0.91, data.Sections[0].SimilarityScore, 1e-9)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestQuery_LegacyFieldName(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("Query", mock.Anything, mock.MatchedBy(func(req knowledge.RetrievalRequest) bool {
		return req.Question == "legacy"
	})).Return([]knowledge.ScoredSection{}, nil).Once()

	rec, _ := do(t, h, http.MethodPost, "/api/rag/query", map[string]interface{}{"query": "legacy"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQuery_ValidationErrors(t *testing.T) {
	h, svc := newTestServer(t)

	rec, env := do(t, h, http.MethodPost, "/api/rag/query", map[string]interface{}{"topK": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_FAILED", env.Error["code"])

	svc.On("Query", mock.Anything, mock.Anything).
		Return(nil, knowledge.NewValidationError("topK", "must be between 1 and 50")).Once()
	rec, env = do(t, h, http.MethodPost, "/api/rag/query", map[string]interface{}{"question": "q", "topK": 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error["code"])
}

func TestQuery_MalformedBody(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/query", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_EmbeddingFailure(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("Query", mock.Anything, mock.Anything).
		Return(nil, &knowledge.EmbeddingError{Err: stderrors.New("429")}).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/query", map[string]interface{}{"question": "q"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EMBEDDING_FAILED", env.Error["code"])
}

func TestAnswer(t *testing.T) {
	h, svc := newTestServer(t)
	userID := "11111111-2222-4333-8444-555555555555"
	svc.On("Answer", mock.Anything, interfaces.AnswerRequest{UserID: userID, Question: "why?"}).
		Return(knowledge.AnswerResult{Text: "Because.", Outcome: knowledge.OutcomeAnswered}, nil).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/answer", map[string]interface{}{
		"userId":   userID,
		"question": "why?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var data controllers.AnswerResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Because.", data.Answer)
	assert.False(t, data.ProcessedAt.IsZero())
}

func TestAnswer_RequiresUser(t *testing.T) {
	h, _ := newTestServer(t)
	rec, env := do(t, h, http.MethodPost, "/api/rag/answer", map[string]interface{}{"question": "why?", "userId": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error["code"])
}

func TestGenerateEmbeddings(t *testing.T) {
	h, svc := newTestServer(t)
	processedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.On("GenerateEmbeddings", mock.Anything, docID).
		Return(&interfaces.EmbeddingResult{DocumentID: docID, ProcessedSections: 3, ProcessedAt: processedAt}, nil).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/documents/"+docID+"/embeddings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data controllers.EmbeddingResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, controllers.MessageEmbeddingsGenerated, data.Message)
	assert.Equal(t, 3, data.ProcessedSections)
	assert.Equal(t, processedAt, data.ProcessedAt)
}

func TestGenerateEmbeddings_NothingPending(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("GenerateEmbeddings", mock.Anything, docID).
		Return(&interfaces.EmbeddingResult{DocumentID: docID}, nil).Once()

	_, env := do(t, h, http.MethodPost, "/api/rag/documents/"+docID+"/embeddings", nil)
	var data controllers.EmbeddingResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, controllers.MessageAlreadyEmbedded, data.Message)
}

func TestGenerateEmbeddings_UnknownDocument(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("GenerateEmbeddings", mock.Anything, docID).Return(nil, gorm.ErrRecordNotFound).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/documents/"+docID+"/embeddings", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", env.Error["code"])
}

func TestGenerateEmbeddings_PartialFailureReportsProgress(t *testing.T) {
	h, svc := newTestServer(t)
	result := &interfaces.EmbeddingResult{DocumentID: docID, ProcessedSections: 2, FailedSections: []string{"s3"}}
	svc.On("GenerateEmbeddings", mock.Anything, docID).
		Return(result, &knowledge.EmbeddingError{SectionID: "s3", Err: context.DeadlineExceeded}).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/documents/"+docID+"/embeddings", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EMBEDDING_FAILED", env.Error["code"])

	details, ok := env.Error["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), details["processedSections"])
	assert.Equal(t, []interface{}{"s3"}, details["failedSections"])
}

func TestEmbeddingStatusAndPendingCount(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("HasEmbeddings", mock.Anything, docID).Return(true, nil).Once()
	svc.On("PendingCount", mock.Anything).Return(int64(12), nil).Once()

	rec, env := do(t, h, http.MethodGet, "/api/rag/documents/"+docID+"/embeddings-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status controllers.EmbeddingStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, docID, status.DocumentID)
	assert.True(t, status.HasEmbeddings)

	rec, env = do(t, h, http.MethodGet, "/api/rag/embeddings/pending-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending controllers.PendingCountResponse
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Equal(t, int64(12), pending.PendingCount)
}

func TestIngestSections(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("IngestDocument", mock.Anything, interfaces.IngestRequest{
		DocumentID: docID,
		FileName:   "guide.pdf",
		Text:       "Hello world.",
	}).Return(&interfaces.IngestResult{DocumentID: docID, Sections: 1, JobEnqueued: true}, nil).Once()

	rec, env := do(t, h, http.MethodPost, "/api/rag/documents/"+docID+"/sections", map[string]interface{}{
		"fileName": "guide.pdf",
		"text":     "Hello world.",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var data controllers.IngestResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.JobEnqueued)

	rec, _ = do(t, h, http.MethodPost, "/api/rag/documents/"+docID+"/sections", map[string]interface{}{"fileName": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	h, svc := newTestServer(t)
	svc.On("DeleteDocument", mock.Anything, docID).Return(nil).Once()
	svc.On("DeleteDocument", mock.Anything, "missing").Return(errors.NewNotFoundError("Document")).Once()

	rec, _ := do(t, h, http.MethodDelete, "/api/rag/documents/"+docID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/rag/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)

	rec, env := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rag_up 1")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/rag/query", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

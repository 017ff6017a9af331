package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRecorder struct {
	codes []string
}

func (c *countingRecorder) Error(code, errType string) {
	c.codes = append(c.codes, code+"/"+errType)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_Handle(t *testing.T) {
	recorder := &countingRecorder{}
	h := NewErrorHandler(nil, zap.NewNop(), recorder)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rag/query", nil)
	h.Handle(rec, req, knowledge.NewValidationError("topK", "must be between 1 and 50"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "INVALID_INPUT", errBody["code"])
	assert.Equal(t, "validation", errBody["type"])
	assert.Equal(t, []string{"INVALID_INPUT/validation"}, recorder.codes)
}

func TestErrorHandler_HidesSystemDetails(t *testing.T) {
	h := NewErrorHandler(nil, nil, nil)
	appErr := NewSystemError(ErrCodeDatabaseError, "db failed").WithDetails("dsn=secret")

	body := h.Body(appErr)
	errBody := body["error"].(map[string]interface{})
	assert.NotContains(t, errBody, "details")

	validation := NewValidationError("bad").WithDetails(map[string]string{"field": "question"})
	assert.Contains(t, h.Body(validation)["error"], "details")
}

func TestErrorHandler_Middleware(t *testing.T) {
	h := NewErrorHandler(nil, zap.NewNop(), nil)
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", decodeBody(t, rec)["error"].(map[string]interface{})["code"])
}

func TestErrorHandler_ResolveUnknown(t *testing.T) {
	h := NewErrorHandler(nil, nil, nil)
	appErr := h.Resolve(nil, stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", getClientIP(req))
}

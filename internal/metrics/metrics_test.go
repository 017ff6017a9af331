package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ knowledge.CacheObserver = (*Recorder)(nil)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.EmbeddingsProcessed(3, 1, 2)
	r.EmbeddingsProcessed(1, 0, 0)
	assert.Equal(t, 4.0, testutil.ToFloat64(r.embeddingsGenerated))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.embeddingsSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.embeddingsFailed))

	r.Answer("answered")
	r.Answer("answered")
	r.Answer("no_context")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.answers.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.answers.WithLabelValues("no_context")))

	r.CacheHit()
	r.CacheMiss()
	r.CacheMiss()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("miss")))

	r.Error("VALIDATION_FAILED", "validation")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errors.WithLabelValues("VALIDATION_FAILED", "validation")))

	r.Job("succeeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobs.WithLabelValues("succeeded")))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.Retrieval(120*time.Millisecond, 3)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, r.RegisterDB(db, "knowledge"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rag_retrieval_duration_seconds_count 1")
	assert.Contains(t, string(body), "rag_retrieved_sections_sum 3")
	assert.Contains(t, string(body), `go_sql_open_connections{db_name="knowledge"}`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotSame(t, New().Registry(), New().Registry())
}

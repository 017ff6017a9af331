package metrics

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

// Recorder 知识库服务指标
type Recorder struct {
	registry *prometheus.Registry

	embeddingsGenerated prometheus.Counter
	embeddingsFailed    prometheus.Counter
	embeddingsSkipped   prometheus.Counter
	retrievalDuration   prometheus.Histogram
	retrievedSections   prometheus.Histogram
	answers             *prometheus.CounterVec
	cacheRequests       *prometheus.CounterVec
	errors              *prometheus.CounterVec
	jobs                *prometheus.CounterVec
}

// New 创建独立 registry 的指标记录器
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.embeddingsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embeddings_generated_total",
		Help:      "Section embeddings generated and stored",
	})
	r.embeddingsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embeddings_failed_total",
		Help:      "Section embeddings that failed to generate or store",
	})
	r.embeddingsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embeddings_skipped_total",
		Help:      "Sections skipped because they were already embedded or empty",
	})
	r.retrievalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Duration of section retrieval including question embedding",
		Buckets:   prometheus.DefBuckets,
	})
	r.retrievedSections = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieved_sections",
		Help:      "Number of sections returned per retrieval",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})
	r.answers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_total",
		Help:      "Answers produced by outcome",
	}, []string{"outcome"})
	r.cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_requests_total",
		Help:      "Question embedding cache lookups by result",
	}, []string{"result"})
	r.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "API errors by code and type",
	}, []string{"code", "type"})
	r.jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_jobs_total",
		Help:      "Asynchronous embedding jobs by status",
	}, []string{"status"})

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.embeddingsGenerated,
		r.embeddingsFailed,
		r.embeddingsSkipped,
		r.retrievalDuration,
		r.retrievedSections,
		r.answers,
		r.cacheRequests,
		r.errors,
		r.jobs,
	)
	return r
}

// Registry 底层 registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RegisterDB 导出连接池指标
func (r *Recorder) RegisterDB(db *sql.DB, name string) error {
	return r.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler Prometheus 抓取接口
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// EmbeddingsProcessed 记录一次文档嵌入的结果
func (r *Recorder) EmbeddingsProcessed(generated, skipped, failed int) {
	r.embeddingsGenerated.Add(float64(generated))
	r.embeddingsSkipped.Add(float64(skipped))
	r.embeddingsFailed.Add(float64(failed))
}

// Retrieval 记录检索耗时与命中数
func (r *Recorder) Retrieval(elapsed time.Duration, found int) {
	r.retrievalDuration.Observe(elapsed.Seconds())
	r.retrievedSections.Observe(float64(found))
}

// Answer 记录回答结果
func (r *Recorder) Answer(outcome string) {
	r.answers.WithLabelValues(outcome).Inc()
}

// CacheHit 问题向量缓存命中
func (r *Recorder) CacheHit() {
	r.cacheRequests.WithLabelValues("hit").Inc()
}

// CacheMiss 问题向量缓存未命中
func (r *Recorder) CacheMiss() {
	r.cacheRequests.WithLabelValues("miss").Inc()
}

// Error 记录接口错误
func (r *Recorder) Error(code, errType string) {
	r.errors.WithLabelValues(code, errType).Inc()
}

// Job 记录异步任务状态
func (r *Recorder) Job(status string) {
	r.jobs.WithLabelValues(status).Inc()
}

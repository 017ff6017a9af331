package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// SectionSource 段落存储的只读视图
type SectionSource interface {
	// ListEmbeddedSections 返回带嵌入数据的段落；documentIDs 为空表示不限文档
	ListEmbeddedSections(ctx context.Context, documentIDs []string) ([]Section, error)
}

// RetrieverConfig 检索参数
type RetrieverConfig struct {
	DefaultTopK int
	MaxTopK     int
	// MinScore 分数必须严格大于该值才会返回
	MinScore float64
}

// Retriever 按问题检索相关段落
type Retriever struct {
	source   SectionSource
	embedder Embedder
	cfg      RetrieverConfig
	logger   *zap.Logger
}

// NewRetriever 创建检索器
func NewRetriever(source SectionSource, embedder Embedder, cfg RetrieverConfig, logger *zap.Logger) *Retriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if cfg.DefaultTopK > cfg.MaxTopK {
		cfg.DefaultTopK = cfg.MaxTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{source: source, embedder: embedder, cfg: cfg, logger: logger}
}

// Validate 在任何外部调用之前校验请求，返回规范化后的请求
func (r *Retriever) Validate(req RetrievalRequest) (RetrievalRequest, error) {
	if req.TopK == 0 {
		req.TopK = r.cfg.DefaultTopK
	}
	if req.TopK < 1 || req.TopK > r.cfg.MaxTopK {
		return req, NewValidationError("topK", fmt.Sprintf("must be between 1 and %d", r.cfg.MaxTopK))
	}

	scope := make([]string, 0, len(req.DocumentIDs))
	seen := make(map[string]struct{}, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		parsed, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			return req, NewValidationError("documentIds", fmt.Sprintf("%q is not a valid id", id))
		}
		key := parsed.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		scope = append(scope, key)
	}
	req.DocumentIDs = scope
	return req, nil
}

// Retrieve 返回按相似度排序的段落
// 空问题返回空结果；候选为空时不会调用嵌入能力
func (r *Retriever) Retrieve(ctx context.Context, req RetrievalRequest) ([]ScoredSection, error) {
	req, err := r.Validate(req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Question) == "" {
		r.logger.Warn("Empty question provided for retrieval")
		return []ScoredSection{}, nil
	}

	sections, err := r.source.ListEmbeddedSections(ctx, req.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("list candidate sections: %w", err)
	}
	sections = r.usable(sections)
	if len(sections) == 0 {
		r.logger.Info("No embedded sections available for retrieval",
			zap.Int("scope_size", len(req.DocumentIDs)))
		return []ScoredSection{}, nil
	}

	query, err := r.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}

	byID := make(map[string]Section, len(sections))
	candidates := make([]Candidate, 0, len(sections))
	for _, section := range sections {
		vec, _ := section.Embedding.Vector()
		if len(vec) != len(query) {
			mismatch := &DimensionMismatchError{ID: section.ID, Expected: len(query), Actual: len(vec)}
			r.logger.Error("Excluding section from ranking", zap.Error(mismatch))
			continue
		}
		byID[section.ID] = section
		candidates = append(candidates, Candidate{ID: section.ID, Vector: vec})
	}

	ranked, err := Rank(query, candidates, len(candidates))
	if err != nil {
		return nil, err
	}

	results := make([]ScoredSection, 0, req.TopK)
	for _, item := range ranked {
		if item.Score <= r.cfg.MinScore {
			continue
		}
		results = append(results, ScoredSection{Section: byID[item.ID], Score: item.Score})
		if len(results) == req.TopK {
			break
		}
	}

	r.logger.Info("Retrieved relevant sections",
		zap.Int("count", len(results)),
		zap.Int("candidates", len(candidates)),
		zap.String("scores", formatScores(results)))

	return results, nil
}

// usable 过滤未嵌入与数据损坏的段落
func (r *Retriever) usable(sections []Section) []Section {
	out := sections[:0:0]
	for _, section := range sections {
		switch section.Embedding.Status() {
		case EmbeddingEmbedded:
			out = append(out, section)
		case EmbeddingCorrupt:
			r.logger.Warn("Skipping section with unreadable embedding",
				zap.String("section_id", section.ID),
				zap.Error(section.Embedding.Err()))
		}
	}
	return out
}

func formatScores(results []ScoredSection) string {
	parts := make([]string, len(results))
	for i, result := range results {
		parts[i] = fmt.Sprintf("%.3f", result.Score)
	}
	return strings.Join(parts, ", ")
}

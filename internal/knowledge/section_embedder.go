package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmbeddingWriter 持久化段落嵌入
type EmbeddingWriter interface {
	// SaveEmbedding 原子地为尚未嵌入的段落写入向量；段落已嵌入时 stored 为 false
	SaveEmbedding(ctx context.Context, sectionID string, vector Vector) (stored bool, err error)
}

// EmbedReport 一次批量嵌入的结果
type EmbedReport struct {
	Processed int
	Skipped   int
	Failures  []*EmbeddingError
}

// Err 合并所有失败
func (r EmbedReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, failure := range r.Failures {
		errs[i] = failure
	}
	return errors.Join(errs...)
}

// FailedSectionIDs 失败段落ID
func (r EmbedReport) FailedSectionIDs() []string {
	ids := make([]string, len(r.Failures))
	for i, failure := range r.Failures {
		ids[i] = failure.SectionID
	}
	return ids
}

// SectionEmbedderConfig 并发与批量参数
type SectionEmbedderConfig struct {
	MaxParallel int
	// BatchSize 大于1且嵌入器支持批量时按批请求
	BatchSize int
}

// SectionEmbedder 为段落生成并保存嵌入
type SectionEmbedder struct {
	embedder Embedder
	writer   EmbeddingWriter
	cfg      SectionEmbedderConfig
	logger   *zap.Logger
}

// NewSectionEmbedder 创建段落嵌入器
func NewSectionEmbedder(embedder Embedder, writer EmbeddingWriter, cfg SectionEmbedderConfig, logger *zap.Logger) *SectionEmbedder {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionEmbedder{embedder: embedder, writer: writer, cfg: cfg, logger: logger}
}

// EmbedSections 并发嵌入未生成向量的段落
// 空内容与已嵌入段落被跳过；单个段落失败不影响其他段落，失败信息汇总在报告中
func (s *SectionEmbedder) EmbedSections(ctx context.Context, sections []Section) (EmbedReport, error) {
	var report EmbedReport
	pending := make([]Section, 0, len(sections))
	for _, section := range sections {
		if section.Embedding.IsEmbedded() {
			report.Skipped++
			continue
		}
		if strings.TrimSpace(section.Content) == "" {
			s.logger.Warn("Skipping section with empty content", zap.String("section_id", section.ID))
			report.Skipped++
			continue
		}
		pending = append(pending, section)
	}
	if len(pending) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	record := func(processed, skipped int, failures ...*EmbeddingError) {
		mu.Lock()
		defer mu.Unlock()
		report.Processed += processed
		report.Skipped += skipped
		report.Failures = append(report.Failures, failures...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)

	for _, batch := range s.batches(pending) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			processed, skipped, failures := s.embedBatch(gctx, batch)
			record(processed, skipped, failures...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, failure := range report.Failures {
		s.logger.Error("Failed to embed section", zap.String("section_id", failure.SectionID), zap.Error(failure.Err))
	}
	return report, nil
}

func (s *SectionEmbedder) batches(sections []Section) [][]Section {
	size := s.cfg.BatchSize
	if _, ok := s.embedder.(BatchEmbedder); !ok {
		size = 1
	}
	var out [][]Section
	for start := 0; start < len(sections); start += size {
		end := start + size
		if end > len(sections) {
			end = len(sections)
		}
		out = append(out, sections[start:end])
	}
	return out
}

func (s *SectionEmbedder) embedBatch(ctx context.Context, batch []Section) (processed, skipped int, failures []*EmbeddingError) {
	vectors, err := s.vectorsFor(ctx, batch)
	if err != nil {
		for _, section := range batch {
			failures = append(failures, &EmbeddingError{SectionID: section.ID, Err: err})
		}
		return 0, 0, failures
	}

	for i, section := range batch {
		stored, err := s.writer.SaveEmbedding(ctx, section.ID, vectors[i])
		if err != nil {
			failures = append(failures, &EmbeddingError{SectionID: section.ID, Err: err})
			continue
		}
		if !stored {
			skipped++
			continue
		}
		processed++
	}
	return processed, skipped, failures
}

func (s *SectionEmbedder) vectorsFor(ctx context.Context, batch []Section) ([]Vector, error) {
	if batcher, ok := s.embedder.(BatchEmbedder); ok && len(batch) > 1 {
		texts := make([]string, len(batch))
		for i, section := range batch {
			texts[i] = section.Content
		}
		vectors, err := batcher.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("batch embedding returned %d vectors for %d sections", len(vectors), len(batch))
		}
		return vectors, nil
	}

	vec, err := s.embedder.Embed(ctx, batch[0].Content)
	if err != nil {
		return nil, err
	}
	return []Vector{vec}, nil
}

package knowledge

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockEmbedder 模拟嵌入能力
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Vector), args.Error(1)
}

// MockBatchEmbedder 模拟批量嵌入能力
type MockBatchEmbedder struct {
	MockEmbedder
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Vector), args.Error(1)
}

// MockGenerator 模拟生成能力
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

// fakeSource 内存段落源
type fakeSource struct {
	sections []Section
	err      error
	scopes   [][]string
}

func (f *fakeSource) ListEmbeddedSections(ctx context.Context, documentIDs []string) ([]Section, error) {
	f.scopes = append(f.scopes, documentIDs)
	if f.err != nil {
		return nil, f.err
	}
	if len(documentIDs) == 0 {
		return f.sections, nil
	}
	allowed := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}
	var out []Section
	for _, s := range f.sections {
		if allowed[s.DocumentID] {
			out = append(out, s)
		}
	}
	return out, nil
}

// memoryWriter 内存嵌入写入器，模拟仅对未嵌入段落生效的条件更新
type memoryWriter struct {
	mu      sync.Mutex
	stored  map[string]Vector
	failFor map[string]error
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{stored: map[string]Vector{}, failFor: map[string]error{}}
}

func (w *memoryWriter) SaveEmbedding(ctx context.Context, sectionID string, vector Vector) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.failFor[sectionID]; ok {
		return false, err
	}
	if _, ok := w.stored[sectionID]; ok {
		return false, nil
	}
	w.stored[sectionID] = vector
	return true, nil
}

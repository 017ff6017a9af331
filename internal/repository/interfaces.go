package repository

import (
	"context"

	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/aihub/knowledge-rag/internal/models"
	"gorm.io/gorm"
)

// SectionRepository 文档与段落存储
type SectionRepository interface {
	knowledge.SectionSource
	knowledge.EmbeddingWriter

	GetDB() *gorm.DB

	// SaveDocument 创建或更新文档元数据
	SaveDocument(ctx context.Context, doc *models.Document) error
	// GetDocument 获取文档，不存在时返回 gorm.ErrRecordNotFound
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	// ReplaceSections 在一个事务中替换文档的全部段落
	ReplaceSections(ctx context.Context, doc *models.Document, sections []models.DocumentSection) error
	// ListPendingSections 文档中尚未嵌入的段落，按顺序返回
	ListPendingSections(ctx context.Context, documentID string) ([]knowledge.Section, error)
	// HasEmbeddings 文档是否至少有一个段落已嵌入
	HasEmbeddings(ctx context.Context, documentID string) (bool, error)
	// CountPending 全部未嵌入段落数量
	CountPending(ctx context.Context) (int64, error)
	// DeleteDocument 删除文档及其段落，返回是否存在
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
}

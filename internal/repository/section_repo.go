package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aihub/knowledge-rag/internal/knowledge"
	"github.com/aihub/knowledge-rag/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sectionBatchSize = 200

// 空串与 NULL 同样视为未嵌入，与 knowledge.DecodeEmbeddingState 一致
const (
	pendingPredicate  = "(embedding IS NULL OR btrim(embedding) = '')"
	embeddedPredicate = "(embedding IS NOT NULL AND btrim(embedding) <> '')"

	sectionPendingPredicate  = "(s.embedding IS NULL OR btrim(s.embedding) = '')"
	sectionEmbeddedPredicate = "(s.embedding IS NOT NULL AND btrim(s.embedding) <> '')"
)

// sectionRepository 段落仓库实现
type sectionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSectionRepository 创建段落仓库
func NewSectionRepository(db *gorm.DB) SectionRepository {
	return &sectionRepository{db: db, now: time.Now}
}

// GetDB 获取数据库连接
func (r *sectionRepository) GetDB() *gorm.DB {
	return r.db
}

// SaveDocument 按主键 upsert 文档
func (r *sectionRepository) SaveDocument(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "file_name", "object_key", "update_time"}),
	}).Create(doc).Error
}

// GetDocument 获取文档
func (r *sectionRepository) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReplaceSections 删除旧段落并批量写入新段落
func (r *sectionRepository) ReplaceSections(ctx context.Context, doc *models.Document, sections []models.DocumentSection) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "file_name", "object_key", "update_time"}),
		}).Create(doc).Error; err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		if err := tx.Where("document_id = ?", doc.DocumentID).Delete(&models.DocumentSection{}).Error; err != nil {
			return fmt.Errorf("delete old sections: %w", err)
		}
		if len(sections) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(sections, sectionBatchSize).Error; err != nil {
			return fmt.Errorf("create sections: %w", err)
		}
		return nil
	})
}

// sectionRow 段落与文档名联合查询结果
type sectionRow struct {
	SectionID    string
	DocumentID   string
	SectionOrder int
	Content      string
	Embedding    *string
	FileName     string
}

func (row sectionRow) toSection() knowledge.Section {
	return knowledge.Section{
		ID:           row.SectionID,
		DocumentID:   row.DocumentID,
		DocumentName: row.FileName,
		Order:        row.SectionOrder,
		Content:      row.Content,
		Embedding:    knowledge.DecodeEmbeddingState(row.Embedding),
	}
}

func (r *sectionRepository) sectionQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("document_sections AS s").
		Select("s.section_id, s.document_id, s.section_order, s.content, s.embedding, d.file_name").
		Joins("JOIN documents AS d ON d.document_id = s.document_id")
}

// ListEmbeddedSections 已嵌入的候选段落，顺序稳定
func (r *sectionRepository) ListEmbeddedSections(ctx context.Context, documentIDs []string) ([]knowledge.Section, error) {
	query := r.sectionQuery(ctx).Where(sectionEmbeddedPredicate)
	if len(documentIDs) > 0 {
		query = query.Where("s.document_id IN ?", documentIDs)
	}

	var rows []sectionRow
	if err := query.Order("s.document_id, s.section_order").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toSections(rows), nil
}

// ListPendingSections 未嵌入段落
func (r *sectionRepository) ListPendingSections(ctx context.Context, documentID string) ([]knowledge.Section, error) {
	var rows []sectionRow
	err := r.sectionQuery(ctx).
		Where("s.document_id = ? AND "+sectionPendingPredicate, documentID).
		Order("s.section_order").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toSections(rows), nil
}

func toSections(rows []sectionRow) []knowledge.Section {
	sections := make([]knowledge.Section, len(rows))
	for i, row := range rows {
		sections[i] = row.toSection()
	}
	return sections
}

// SaveEmbedding 单条 UPDATE 写入向量，仅对尚未嵌入的段落生效
func (r *sectionRepository) SaveEmbedding(ctx context.Context, sectionID string, vector knowledge.Vector) (bool, error) {
	encoded, err := knowledge.EncodeVector(vector)
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Model(&models.DocumentSection{}).
		Where("section_id = ? AND "+pendingPredicate, sectionID).
		Updates(map[string]interface{}{
			"embedding":   encoded,
			"embedded_at": r.now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// HasEmbeddings 文档是否存在已嵌入段落
func (r *sectionRepository) HasEmbeddings(ctx context.Context, documentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DocumentSection{}).
		Where("document_id = ? AND "+embeddedPredicate, documentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountPending 未嵌入段落总数
func (r *sectionRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DocumentSection{}).
		Where(pendingPredicate).
		Count(&count).Error
	return count, err
}

// DeleteDocument 删除段落与文档
func (r *sectionRepository) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentSection{}).Error; err != nil {
			return err
		}
		result := tx.Where("document_id = ?", documentID).Delete(&models.Document{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

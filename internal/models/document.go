package models

import (
	"time"
)

// Document 文档，段落的拥有者
type Document struct {
	DocumentID string            `gorm:"primaryKey;column:document_id;type:uuid" json:"document_id"`
	UserID     string            `gorm:"column:user_id;size:64;index" json:"user_id"`
	FileName   string            `gorm:"column:file_name;size:255;not null" json:"file_name"`
	ObjectKey  string            `gorm:"column:object_key;size:500" json:"object_key,omitempty"`
	Sections   []DocumentSection `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	CreateTime time.Time         `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime time.Time         `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

// TableName 表名
func (Document) TableName() string {
	return "documents"
}

// DocumentSection 文档段落，检索单元
type DocumentSection struct {
	SectionID  string `gorm:"primaryKey;column:section_id;type:uuid" json:"section_id"`
	DocumentID string `gorm:"column:document_id;type:uuid;not null;index;uniqueIndex:idx_section_document_order,priority:1" json:"document_id"`
	// SectionOrder 从1开始，文档内连续
	SectionOrder int    `gorm:"column:section_order;not null;uniqueIndex:idx_section_document_order,priority:2" json:"order"`
	Content      string `gorm:"column:content;type:text;not null" json:"content"`
	// Embedding JSON编码的向量，NULL 表示尚未生成
	Embedding  *string    `gorm:"column:embedding;type:text" json:"-"`
	EmbeddedAt *time.Time `gorm:"column:embedded_at" json:"embedded_at,omitempty"`
	CreateTime time.Time  `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	Document   *Document  `gorm:"foreignKey:DocumentID;references:DocumentID" json:"-"`
}

// TableName 表名
func (DocumentSection) TableName() string {
	return "document_sections"
}

// HasEmbedding 是否已生成嵌入
func (s *DocumentSection) HasEmbedding() bool {
	return s.Embedding != nil && *s.Embedding != ""
}

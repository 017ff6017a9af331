package knowledge

// Section 检索单元，文档的一个有序片段
type Section struct {
	ID           string
	DocumentID   string
	DocumentName string
	Order        int
	Content      string
	Embedding    EmbeddingState
}

// ScoredSection 单次检索中段落与查询向量的相似度
type ScoredSection struct {
	Section Section
	Score   float64
}

// RetrievalRequest 检索请求
type RetrievalRequest struct {
	Question    string
	DocumentIDs []string
	// TopK 为0时使用默认值
	TopK int
}

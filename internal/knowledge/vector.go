package knowledge

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Vector 嵌入向量
type Vector []float32

// Dimensions 向量维度
func (v Vector) Dimensions() int {
	return len(v)
}

// Norm 向量模长
func (v Vector) Norm() float64 {
	var sum float64
	for _, value := range v {
		f := float64(value)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// EmbeddingStatus 段落嵌入状态
type EmbeddingStatus int

const (
	EmbeddingPending EmbeddingStatus = iota
	EmbeddingEmbedded
	// EmbeddingCorrupt 存储的数据无法解码，不参与检索
	EmbeddingCorrupt
)

func (s EmbeddingStatus) String() string {
	switch s {
	case EmbeddingEmbedded:
		return "embedded"
	case EmbeddingCorrupt:
		return "corrupt"
	default:
		return "pending"
	}
}

// EmbeddingState 段落的嵌入状态：Pending | Embedded(vector) | Corrupt(err)
type EmbeddingState struct {
	status EmbeddingStatus
	vector Vector
	err    error
}

// Pending 未生成嵌入
func Pending() EmbeddingState {
	return EmbeddingState{status: EmbeddingPending}
}

// Embedded 已生成嵌入
func Embedded(v Vector) EmbeddingState {
	return EmbeddingState{status: EmbeddingEmbedded, vector: v}
}

// Corrupt 存储的嵌入无法解析
func Corrupt(err error) EmbeddingState {
	return EmbeddingState{status: EmbeddingCorrupt, err: err}
}

func (s EmbeddingState) Status() EmbeddingStatus {
	return s.status
}

func (s EmbeddingState) IsEmbedded() bool {
	return s.status == EmbeddingEmbedded
}

// Vector 返回向量，仅在 Embedded 状态下 ok 为 true
func (s EmbeddingState) Vector() (Vector, bool) {
	if s.status != EmbeddingEmbedded {
		return nil, false
	}
	return s.vector, true
}

// Err 返回 Corrupt 状态的解码错误
func (s EmbeddingState) Err() error {
	return s.err
}

// EncodeVector 将向量编码为JSON文本（持久化边界）
func EncodeVector(v Vector) (string, error) {
	if len(v) == 0 {
		return "", fmt.Errorf("cannot encode empty vector")
	}
	for i, value := range v {
		f := float64(value)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("vector component %d is not finite", i)
		}
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return "", fmt.Errorf("marshal vector: %w", err)
	}
	return string(data), nil
}

// DecodeEmbeddingState 将存储列还原为嵌入状态
// nil 或空串表示 Pending，解析失败返回 Corrupt
func DecodeEmbeddingState(raw *string) EmbeddingState {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return Pending()
	}
	var values []float32
	if err := json.Unmarshal([]byte(*raw), &values); err != nil {
		return Corrupt(fmt.Errorf("decode embedding: %w", err))
	}
	if len(values) == 0 {
		return Corrupt(fmt.Errorf("decode embedding: empty vector"))
	}
	return Embedded(Vector(values))
}

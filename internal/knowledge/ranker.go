package knowledge

import (
	"math"
	"sort"
)

// Candidate 待排序的向量
type Candidate struct {
	ID     string
	Vector Vector
}

// RankedResult 排序结果
type RankedResult struct {
	ID    string
	Score float64
}

// CosineSimilarity 余弦相似度；任一向量模长为0时返回0
func CosineSimilarity(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank 按余弦相似度降序返回前 topK 个候选
// 分数相同的候选保持输入顺序；topK 被裁剪到 [0, len(candidates)]
func Rank(query Vector, candidates []Candidate, topK int) ([]RankedResult, error) {
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			return nil, &DimensionMismatchError{ID: c.ID, Expected: len(query), Actual: len(c.Vector)}
		}
	}

	if topK < 0 {
		topK = 0
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	if topK == 0 {
		return []RankedResult{}, nil
	}

	results := make([]RankedResult, 0, len(candidates))
	for _, c := range candidates {
		score, err := CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, &DimensionMismatchError{ID: c.ID, Expected: len(query), Actual: len(c.Vector)}
		}
		results = append(results, RankedResult{ID: c.ID, Score: clampScore(score)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results[:topK], nil
}

// clampScore 消除浮点误差导致的越界
func clampScore(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

package arbitration

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput 表示调用方给出的输入不合法（空向量、维度不一致等），
// 在发起任何外部调用之前即被拒绝。
var ErrInvalidInput = errors.New("invalid input")

// 范数低于该值的向量视为零向量，相似度按 0 处理（即最大分歧），不做除法。
const normEpsilon = 1e-12

// ComputeDivergence 计算两个嵌入向量的分歧度：1 − 余弦相似度，收敛到 [0,1]。
// 0 表示语义一致，1 表示完全无关。
func ComputeDivergence(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: embedding cannot be empty", ErrInvalidInput)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: embedding dimensions mismatch (%d vs %d)", ErrInvalidInput, len(a), len(b))
	}
	sim := cosineSimilarity(a, b)
	return clamp01(1 - sim), nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)
	if normA < normEpsilon || normB < normEpsilon {
		return 0
	}
	return dot / (normA * normB)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

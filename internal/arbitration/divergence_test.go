package arbitration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDivergenceIdenticalVectors(t *testing.T) {
	v := []float64{0.3, -1.2, 4.5, 0.01}
	d, err := ComputeDivergence(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestComputeDivergenceOrthogonalVectors(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	d, err := ComputeDivergence(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)
}

func TestComputeDivergenceOppositeVectorsClamped(t *testing.T) {
	// 余弦为 -1 时 1-cos=2，必须收敛到 1。
	a := []float64{1, 1}
	b := []float64{-1, -1}
	d, err := ComputeDivergence(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestComputeDivergenceZeroNormVector(t *testing.T) {
	a := []float64{0, 0, 0}
	b := []float64{1, 2, 3}
	d, err := ComputeDivergence(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d, "零向量按最大分歧处理，不允许除零")
}

func TestComputeDivergenceDimensionMismatch(t *testing.T) {
	_, err := ComputeDivergence([]float64{1, 2}, []float64{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestComputeDivergenceEmptyInput(t *testing.T) {
	_, err := ComputeDivergence(nil, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScoreCoherenceMonotonicAndSaturating(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"no connectives here", 0},
		{"A because B", 1.0 / 3.0},
		{"A because B, therefore C", 2.0 / 3.0},
		{"A because B, therefore C, however D", 1.0},
		{"because therefore however thus consequently", 1.0},
	}
	prev := -1.0
	for _, c := range cases {
		got := ScoreCoherence(c.text)
		assert.InDelta(t, c.want, got, 1e-9, "text=%q", c.text)
		assert.GreaterOrEqual(t, got, prev, "非递减")
		prev = got
	}
}

func TestScoreCoherenceCaseInsensitive(t *testing.T) {
	assert.Equal(t, ScoreCoherence("THEREFORE Because HoWeVeR"), 1.0)
}

func TestCompositeScoreDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 1.0, cfg.CompositeScore(1, 1, 1), 1e-9)
	// 0.5*0.4 + 1.0*0.4 + 0.5*0.2 = 0.65
	assert.InDelta(t, 0.65, cfg.CompositeScore(0.5, 1.0, 0.5), 1e-9)
	assert.InDelta(t, 0.0, cfg.CompositeScore(0, 0, 0), 1e-9)
}

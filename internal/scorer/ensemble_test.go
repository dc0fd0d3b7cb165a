package scorer

import (
	"math"
	"testing"

	"talent-match-go/internal/types"

	"github.com/stretchr/testify/require"
)

func TestCombineCoarseScheme(t *testing.T) {
	components := types.ComponentScores{
		Similarity: 80,
		Skills:     66.7,
		Title:      50,
		Experience: 100,
	}
	// 0.1×80 + 0.3×66.7 + 0.3×50 + 0.3×100 = 73.01 → 73
	require.Equal(t, 73, Combine(components, CoarseScheme))
}

func TestCombineFullEnsembleScheme(t *testing.T) {
	components := types.ComponentScores{
		Similarity: 80,
		Skills:     66.7,
		Title:      50,
		Experience: 100,
	}
	// 0.2×80 + 0.4×66.7 + 0.15×50 + 0.25×100 = 75.18 → 75
	require.Equal(t, 75, Combine(components, FullEnsembleScheme))
}

func TestCombineMalformedComponents(t *testing.T) {
	// NaN/Inf 用中性值50替代，越界值裁剪而不是报错
	components := types.ComponentScores{
		Similarity: math.NaN(),
		Skills:     150,
		Title:      -20,
		Experience: math.Inf(1),
	}
	// coarse: 0.1×50 + 0.3×100 + 0.3×0 + 0.3×50 = 50
	require.Equal(t, 50, Combine(components, CoarseScheme))
}

func TestCombineDeterministic(t *testing.T) {
	components := types.ComponentScores{Similarity: 63.7, Skills: 81.2, Title: 44.4, Experience: 92.1}
	first := Combine(components, FullEnsembleScheme)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Combine(components, FullEnsembleScheme), "同输入必须同输出")
	}
}

func TestCombineRange(t *testing.T) {
	require.Equal(t, 100, Combine(types.ComponentScores{Similarity: 100, Skills: 100, Title: 100, Experience: 100, Stability: 100}, CoarseScheme))
	require.Equal(t, 0, Combine(types.ComponentScores{}, WeightScheme{}))
}

func TestRankStableOnTies(t *testing.T) {
	breakdowns := []types.ScoreBreakdown{
		{CandidateID: "c", FinalScore: 70},
		{CandidateID: "a", FinalScore: 85},
		{CandidateID: "b", FinalScore: 85},
		{CandidateID: "d", FinalScore: 90},
	}
	Rank(breakdowns)

	var order []string
	for _, b := range breakdowns {
		order = append(order, b.CandidateID)
	}
	// 同分的 a、b 保持输入先后顺序
	require.Equal(t, []string{"d", "a", "b", "c"}, order)
}

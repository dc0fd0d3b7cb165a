package scorer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreExperienceBands(t *testing.T) {
	cases := []struct {
		name               string
		candidate, required float64
		want                float64
	}{
		{"严重不足按比例", 2, 5, 0.4},
		{"接近要求起爬", 4, 5, 0.75},
		{"爬升区间中点", 4.5, 5, 0.875},
		{"恰好达标", 5, 5, 1.0},
		{"甜区上限", 10, 5, 1.0},
		{"轻度超配", 12.5, 5, 0.85},
		{"超配2-3倍下限", 15, 5, 0.7},
		{"大幅超配缓慢衰减", 20, 5, 0.65},
		{"衰减下限", 100, 5, 0.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.InDelta(t, c.want, ScoreExperience(c.candidate, c.required), 0.001)
		})
	}
}

func TestScoreExperienceNoRequirement(t *testing.T) {
	// 不设年限要求时，有经验即满分，零经验给中性值
	require.Equal(t, 1.0, ScoreExperience(3, 0))
	require.Equal(t, 0.5, ScoreExperience(0, 0))
	require.Equal(t, 0.5, ScoreExperience(-1, 0), "负年限按零经验处理")
}

func TestScoreExperienceNotMonotonic(t *testing.T) {
	// 超配降分是刻意设计：15年经验申请2年岗位应低于甜区分数
	require.Less(t, ScoreExperience(15, 5), ScoreExperience(8, 5))
	// 但永远不会低于0.5的地板
	require.GreaterOrEqual(t, ScoreExperience(1000, 1), 0.5)
}

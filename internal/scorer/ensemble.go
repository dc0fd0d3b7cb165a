package scorer

import (
	"math"
	"sort"

	"talent-match-go/internal/types"
)

// neutralComponentScore 信号缺失或畸形时的中性替代值
const neutralComponentScore = 50.0

// WeightScheme 各维度分量的加权方案。权重直接使用配置值，不做归一化，
// 配置权重和不为1时最终分会整体偏移，属于配置错误而不是代码要兜底的情况。
type WeightScheme struct {
	Name       string  `yaml:"name"`
	Similarity float64 `yaml:"similarity"`
	Skills     float64 `yaml:"skills"`
	Title      float64 `yaml:"title"`
	Experience float64 `yaml:"experience"`
	Stability  float64 `yaml:"stability"`
}

// CoarseScheme 粗排权重：召回后全量候选人的第一轮排序
var CoarseScheme = WeightScheme{
	Name:       "coarse",
	Title:      0.30,
	Skills:     0.30,
	Experience: 0.30,
	Similarity: 0.10,
}

// FullEnsembleScheme 精排权重：技能占比最高，职位名降权
var FullEnsembleScheme = WeightScheme{
	Name:       "full_ensemble",
	Skills:     0.40,
	Experience: 0.25,
	Similarity: 0.20,
	Title:      0.15,
}

// sanitizeComponent 把分量规整到 [0,100]。
// NaN 和 Inf 视作信号畸形，用中性值替代而不是让坏数据传播。
func sanitizeComponent(val float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return neutralComponentScore
	}
	if val < 0 {
		return 0
	}
	if val > 100 {
		return 100
	}
	return val
}

// Combine 按权重方案合成最终分，四舍五入为 [0,100] 的整数。
// 同样的输入永远得到同样的输出，排序的确定性依赖这一点。
func Combine(components types.ComponentScores, scheme WeightScheme) int {
	sum := sanitizeComponent(components.Similarity)*scheme.Similarity +
		sanitizeComponent(components.Skills)*scheme.Skills +
		sanitizeComponent(components.Title)*scheme.Title +
		sanitizeComponent(components.Experience)*scheme.Experience +
		sanitizeComponent(components.Stability)*scheme.Stability

	final := int(math.Round(sum))
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	return final
}

// Rank 按最终分从高到低稳定排序。同分时保持输入中的先后顺序，
// 这保证同一批候选人多次排序的结果完全一致。
func Rank(breakdowns []types.ScoreBreakdown) {
	sort.SliceStable(breakdowns, func(i, j int) bool {
		return breakdowns[i].FinalScore > breakdowns[j].FinalScore
	})
}

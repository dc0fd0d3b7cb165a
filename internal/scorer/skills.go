package scorer

import (
	"strings"

	"talent-match-go/internal/types"
)

// SkillsResult 技能匹配的评分结果，附带可解释性所需的命中/缺失清单
type SkillsResult struct {
	Score         float64  // [0,100]
	Matched       []string // 命中的必备技能（按需求顺序）
	Missing       []string // 缺失的必备技能
	MatchedNice   []string // 命中的加分技能
	NiceBonus     float64  // 实际生效的加分（已封顶）
	MatchedWeight float64  // 命中必备技能的权重合计
}

// normalizeSkillName 技能名归一化：小写、去首尾空白、压缩内部空白。
// 只做精确名称匹配，不做模糊匹配。
func normalizeSkillName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ScoreSkills 计算技能匹配分。
// 基础分 = 命中必备技能权重之和 / 必备技能数 × 100；
// 加分 = 命中加分技能各贡献 weight×0.5，按加分技能数缩放，上限10分。
// 必备技能为空时定义为满分（空集的全称命题为真），而不是未定义。
func ScoreSkills(skills []types.SkillEntry, required, niceToHave []string) SkillsResult {
	// 同名技能保留权重最高的条目
	byName := make(map[string]float64, len(skills))
	for _, s := range skills {
		key := normalizeSkillName(s.Name)
		if key == "" {
			continue
		}
		if w, ok := byName[key]; !ok || s.Weight > w {
			byName[key] = s.Weight
		}
	}

	result := SkillsResult{}

	if len(required) == 0 {
		result.Score = 100
	} else {
		for _, name := range required {
			key := normalizeSkillName(name)
			if w, ok := byName[key]; ok {
				result.Matched = append(result.Matched, name)
				result.MatchedWeight += w
			} else {
				result.Missing = append(result.Missing, name)
			}
		}
		result.Score = result.MatchedWeight / float64(len(required)) * 100
	}

	if len(niceToHave) > 0 {
		var niceSum float64
		for _, name := range niceToHave {
			key := normalizeSkillName(name)
			if w, ok := byName[key]; ok {
				result.MatchedNice = append(result.MatchedNice, name)
				niceSum += w * 0.5
			}
		}
		// 全部以权重1.0命中时 niceSum = 0.5×n，缩放后恰好到满额10分
		bonus := niceSum / (0.5 * float64(len(niceToHave))) * 10
		if bonus > 10 {
			bonus = 10
		}
		result.NiceBonus = bonus
		result.Score += bonus
	}

	if result.Score > 100 {
		result.Score = 100
	}
	if result.Score < 0 {
		result.Score = 0
	}
	return result
}

package scorer

import (
	"strings"
	"unicode"

	"talent-match-go/internal/types"
)

// maxRecentRolesForTitle 参与职位名比对的最近任职数
const maxRecentRolesForTitle = 3

// TitleResult 职位名匹配结果
type TitleResult struct {
	Score       float64 // [0,100]
	MatchedRole string  // 得分最高的那段任职的职位名
}

// tokenizeTitle 把职位名切成归一化的词集合。
// 中英混排的职位名按非字母数字字符切分，CJK字符单独成词。
func tokenizeTitle(title string) map[string]bool {
	tokens := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens[b.String()] = true
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens[string(r)] = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// jaccard 两个词集合的Jaccard相似度
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// ScoreTitle 计算岗位名与候选人最近三段任职职位名的最佳Jaccard相似度。
// 任一侧职位名为空时得0分而非报错。
func ScoreTitle(requirementTitle string, roles []types.RoleEntry) TitleResult {
	reqTokens := tokenizeTitle(requirementTitle)
	if len(reqTokens) == 0 {
		return TitleResult{Score: 0}
	}

	limit := len(roles)
	if limit > maxRecentRolesForTitle {
		limit = maxRecentRolesForTitle
	}

	best := TitleResult{}
	for _, role := range roles[:limit] {
		roleTokens := tokenizeTitle(role.Title)
		if len(roleTokens) == 0 {
			continue
		}
		score := jaccard(reqTokens, roleTokens) * 100
		if score > best.Score {
			best.Score = score
			best.MatchedRole = role.Title
		}
	}
	return best
}

package scorer

import (
	"fmt"
	"time"

	"talent-match-go/internal/types"
)

// StabilityVerdict 稳定性判定档位，从好到差共六档
type StabilityVerdict string

const (
	StabilityExcellent       StabilityVerdict = "excellent"
	StabilityGood            StabilityVerdict = "good"
	StabilityFair            StabilityVerdict = "fair"
	StabilityMinorConcerns   StabilityVerdict = "minor_concerns"
	StabilityNotableConcerns StabilityVerdict = "notable_concerns"
	StabilitySevereIssues    StabilityVerdict = "severe_issues"
)

// 资历档位按技术经验总年限划分，决定"期望平均任期"基线
const (
	midTierMinYears    = 2.0
	seniorTierMinYears = 5.0

	juniorExpectedTenure = 2.0
	midExpectedTenure    = 3.0
	seniorExpectedTenure = 4.0
)

const (
	shortStintYears     = 1.5
	veryShortStintYears = 0.5
	longTenureYears     = 4.0
	idealBandMinYears   = 2.0
	idealBandMaxYears   = 4.0
)

// StabilityResult 稳定性评分结果
type StabilityResult struct {
	Score          float64 // [0,1]
	Verdict        StabilityVerdict
	TechnicalYears float64
	AvgTenureYears float64
	ShortStints    int
	Notes          []string // 生效的加减分项，用于解释
}

// StabilityScorer 雇佣稳定性评分器。与岗位需求无关，只看候选人的任职时长历史。
// 当前时刻通过构造选项注入，保证测试下的确定性。
type StabilityScorer struct {
	now   func() time.Time
	chain *ClassifierChain
}

// StabilityOption 稳定性评分器的配置选项
type StabilityOption func(*StabilityScorer)

// WithClock 注入时钟，用于解析"至今"类开放区间
func WithClock(now func() time.Time) StabilityOption {
	return func(s *StabilityScorer) {
		s.now = now
	}
}

// WithClassifierChain 替换默认的岗位分类链
func WithClassifierChain(chain *ClassifierChain) StabilityOption {
	return func(s *StabilityScorer) {
		s.chain = chain
	}
}

// NewStabilityScorer 创建稳定性评分器
func NewStabilityScorer(opts ...StabilityOption) *StabilityScorer {
	s := &StabilityScorer{
		now:   time.Now,
		chain: NewDefaultClassifierChain(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// expectedTenure 按技术年限给出期望平均任期基线
func expectedTenure(technicalYears float64) float64 {
	switch {
	case technicalYears >= seniorTierMinYears:
		return seniorExpectedTenure
	case technicalYears >= midTierMinYears:
		return midExpectedTenure
	default:
		return juniorExpectedTenure
	}
}

// technicalDurations 提取技术岗任职的时长序列（按简历顺序，最近的在前）。
// 分类链对所有任职都无法判定时退化为使用全部任职。
func (s *StabilityScorer) technicalDurations(profile *types.CandidateProfile) []float64 {
	now := s.now()
	var technical, all []float64
	anyConfident := false
	for _, role := range profile.Roles {
		dur, ok := roleDurationYears(role.Start, role.End, role.DurationYears, now)
		if !ok {
			// 日期无法解析的任职记录跳过，不让坏数据拖垮整个信号
			continue
		}
		all = append(all, dur)
		if isTech, confident := s.chain.Classify(role); confident {
			anyConfident = true
			if isTech {
				technical = append(technical, dur)
			}
		}
	}
	if !anyConfident || len(technical) == 0 {
		return all
	}
	return technical
}

// Score 计算稳定性分数。基线1.0，按跳槽、短任期、平均任期不足等施加惩罚，
// 对长任期、任期递增、理想区间任期施加奖励，最终裁剪到 [0,1]。
func (s *StabilityScorer) Score(profile *types.CandidateProfile) StabilityResult {
	durations := s.technicalDurations(profile)
	if len(durations) == 0 {
		// 没有可用的任职历史：给中性分而不是排除
		return StabilityResult{
			Score:   0.5,
			Verdict: verdictForStability(0.5),
			Notes:   []string{"无可用任职历史，给予中性分"},
		}
	}

	var total float64
	for _, d := range durations {
		total += d
	}
	avg := total / float64(len(durations))
	expected := expectedTenure(total)

	score := 1.0
	result := StabilityResult{
		TechnicalYears: total,
		AvgTenureYears: avg,
	}

	// 惩罚1：频繁跳槽——总共不超过2年却换了3份以上工作
	if len(durations) >= 3 && total <= 2.0 {
		score -= 0.30
		result.Notes = append(result.Notes, "频繁跳槽：2年内3段以上任职 -0.30")
	}

	// 惩罚2：短任期（<1.5年），随数量递增
	shortStints := 0
	veryShortStints := 0
	for _, d := range durations {
		if d < shortStintYears {
			shortStints++
		}
		if d < veryShortStintYears {
			veryShortStints++
		}
	}
	result.ShortStints = shortStints
	if p := shortStintPenalty(shortStints); p > 0 {
		score -= p
		result.Notes = append(result.Notes, fmt.Sprintf("%d段短任期(<%.1f年) -%.2f", shortStints, shortStintYears, p))
	}

	// 惩罚3：极短任期（<0.5年）额外扣分，封顶0.15
	if veryShortStints > 0 {
		p := 0.05 * float64(veryShortStints)
		if p > 0.15 {
			p = 0.15
		}
		score -= p
		result.Notes = append(result.Notes, fmt.Sprintf("%d段极短任期(<%.1f年) -%.2f", veryShortStints, veryShortStintYears, p))
	}

	// 惩罚4：平均任期低于资历档位的期望值，按比例分档
	if ratio := avg / expected; ratio < 1.0 {
		var p float64
		switch {
		case ratio >= 0.75:
			p = 0.05
		case ratio >= 0.5:
			p = 0.15
		default:
			p = 0.25
		}
		score -= p
		result.Notes = append(result.Notes, fmt.Sprintf("平均任期%.1f年低于期望%.1f年 -%.2f", avg, expected, p))
	}

	// 惩罚5：换工作频率过高（每年超过0.5次）
	if total > 0 && float64(len(durations))/total > 0.5 {
		score -= 0.10
		result.Notes = append(result.Notes, "换工作频率过高 -0.10")
	}

	// 奖励1：存在4年以上的长任期
	for _, d := range durations {
		if d >= longTenureYears {
			score += 0.10
			result.Notes = append(result.Notes, "存在4年以上长任期 +0.10")
			break
		}
	}

	// 奖励2：任期时长单调递增（按时间先后顺序）
	if len(durations) >= 2 && isChronologicallyIncreasing(durations) {
		score += 0.05
		result.Notes = append(result.Notes, "任期时长逐段递增 +0.05")
	}

	// 奖励3：2-4年理想区间内有两段以上任职
	idealCount := 0
	for _, d := range durations {
		if d >= idealBandMinYears && d <= idealBandMaxYears {
			idealCount++
		}
	}
	if idealCount >= 2 {
		score += 0.05
		result.Notes = append(result.Notes, "多段任职落在2-4年理想区间 +0.05")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	result.Score = score
	result.Verdict = verdictForStability(score)
	return result
}

// shortStintPenalty 短任期数量对应的惩罚，保证对数量单调不减
func shortStintPenalty(count int) float64 {
	switch {
	case count >= 3:
		return 0.35
	case count == 2:
		return 0.20
	case count == 1:
		return 0.10
	default:
		return 0
	}
}

// isChronologicallyIncreasing 判断任期是否按时间先后逐段变长。
// durations 是最近在前的顺序，所以按时间顺序即为逆序遍历。
func isChronologicallyIncreasing(durations []float64) bool {
	for i := len(durations) - 1; i > 0; i-- {
		if durations[i-1] <= durations[i] {
			return false
		}
	}
	return true
}

// verdictForStability 把 [0,1] 分数映射到六档判定
func verdictForStability(score float64) StabilityVerdict {
	switch {
	case score >= 0.90:
		return StabilityExcellent
	case score >= 0.75:
		return StabilityGood
	case score >= 0.60:
		return StabilityFair
	case score >= 0.45:
		return StabilityMinorConcerns
	case score >= 0.30:
		return StabilityNotableConcerns
	default:
		return StabilitySevereIssues
	}
}

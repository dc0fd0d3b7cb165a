package scorer

// ScoreExperience 经验年限的邻近度评分，返回 [0,1]。
//
// 这不是单调函数：以 r = 候选人年限/要求年限 计，
//
//	r < 0.8       按比例给分（r 本身），边界处靠近 0.75 起点
//	0.8 ≤ r < 1   0.75 → 1.0 线性爬升
//	1 ≤ r ≤ 2     甜区，恒为 1.0
//	2 < r ≤ 3     1.0 → 0.7 线性衰减
//	r > 3         缓慢衰减，下限 0.5
//
// 即：略微不足惩罚较重，严重超配只温和降分。
// 要求年限为0或缺失时，有任何经验都算完全匹配(1.0)，零经验给中性值(0.5)。
func ScoreExperience(candidateYears, requiredYears float64) float64 {
	if candidateYears < 0 {
		candidateYears = 0
	}
	if requiredYears <= 0 {
		if candidateYears > 0 {
			return 1.0
		}
		return 0.5
	}

	r := candidateYears / requiredYears
	switch {
	case r < 0.8:
		return r
	case r < 1.0:
		return 0.75 + (r-0.8)*1.25
	case r <= 2.0:
		return 1.0
	case r <= 3.0:
		return 1.0 - (r-2.0)*0.3
	default:
		score := 0.7 - (r-3.0)*0.05
		if score < 0.5 {
			return 0.5
		}
		return score
	}
}

package scorer

import (
	"strings"
	"time"
)

// 简历抽取出来的日期五花八门：裸年份、年月、完整日期、英文月名，
// 以及各种"至今"写法。这里统一解析，解析失败返回 ok=false 由调用方决定中性处理。

var presentAliases = map[string]bool{
	"present": true,
	"current": true,
	"now":     true,
	"至今":      true,
	"今":       true,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-01",
	"2006/01",
	"2006.01",
	"2006年01月",
	"2006年1月",
	"Jan 2006",
	"January 2006",
	"2006",
}

// ParseRoleDate 解析任职记录中的日期字符串。
// "present/current/now/至今" 视为注入的当前时刻 now。
func ParseRoleDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if presentAliases[strings.ToLower(s)] {
		return now, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// roleDurationYears 计算一段任职的时长（年）。
// 优先使用预计算的 DurationYears；缺失时由起止日期推导。
// 任何情况下都不会返回负值。
func roleDurationYears(start, end string, precomputed float64, now time.Time) (float64, bool) {
	if precomputed > 0 {
		return precomputed, true
	}
	startT, okS := ParseRoleDate(start, now)
	if !okS {
		return 0, false
	}
	endT, okE := ParseRoleDate(end, now)
	if !okE {
		// 结束日期缺失时按在职处理
		endT = now
	}
	if endT.Before(startT) {
		return 0, true
	}
	return endT.Sub(startT).Hours() / (24 * 365.25), true
}

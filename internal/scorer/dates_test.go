package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParseRoleDateFormats(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2021-03-15", time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2021-03", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2021/03", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2021年3月", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2021年03月", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"Mar 2021", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2021", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, ok := ParseRoleDate(c.raw, fixedNow)
		require.True(t, ok, "应能解析 %q", c.raw)
		require.True(t, c.want.Equal(got), "解析 %q 结果不符: %v", c.raw, got)
	}
}

func TestParseRoleDatePresentAliases(t *testing.T) {
	for _, raw := range []string{"present", "Present", "current", "now", "至今"} {
		got, ok := ParseRoleDate(raw, fixedNow)
		require.True(t, ok, "%q 应视为在职", raw)
		require.True(t, fixedNow.Equal(got), "%q 应解析为注入的当前时刻", raw)
	}
}

func TestParseRoleDateInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "unknown", "13/2021"} {
		_, ok := ParseRoleDate(raw, fixedNow)
		require.False(t, ok, "%q 不应解析成功", raw)
	}
}

func TestRoleDurationYears(t *testing.T) {
	// 预计算值优先
	d, ok := roleDurationYears("2020-01", "2021-01", 2.5, fixedNow)
	require.True(t, ok)
	require.Equal(t, 2.5, d)

	// 由起止日期推导
	d, ok = roleDurationYears("2020-01", "2023-01", 0, fixedNow)
	require.True(t, ok)
	require.InDelta(t, 3.0, d, 0.01)

	// 结束日期缺失按在职到当前时刻处理
	d, ok = roleDurationYears("2024-06", "", 0, fixedNow)
	require.True(t, ok)
	require.InDelta(t, 2.0, d, 0.01)

	// 起止颠倒时不产生负时长
	d, ok = roleDurationYears("2023-01", "2020-01", 0, fixedNow)
	require.True(t, ok)
	require.Equal(t, 0.0, d)

	// 起始日期无法解析时放弃该段
	_, ok = roleDurationYears("???", "2023-01", 0, fixedNow)
	require.False(t, ok)
}

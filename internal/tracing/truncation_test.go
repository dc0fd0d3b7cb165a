package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "短文本", TruncateString("短文本", 10), "短于上限的字符串应原样返回")

	long := strings.Repeat("a", 50)
	truncated := TruncateString(long, 21)
	assert.Contains(t, truncated, "...", "截断后应包含省略号")
	assert.LessOrEqual(t, len([]rune(truncated)), 21)

	// 中文按rune截断，不应出现半个字符
	cn := strings.Repeat("候选人材料", 20)
	assert.True(t, len([]rune(TruncateString(cn, 15))) <= 15)
}

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("张"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))
}

func TestSafeAttributeValue(t *testing.T) {
	// 敏感字段名应触发掩码
	masked := SafeAttributeValue("candidate.phone", "13812345678", DefaultMaxLength)
	assert.Equal(t, "13*******78", masked)

	masked = SafeAttributeValue("姓名", "王小明", DefaultMaxLength)
	assert.Equal(t, "王*明", masked)

	// 普通字段只做截断
	plain := SafeAttributeValue("db.statement", strings.Repeat("SELECT ", 100), 20)
	assert.True(t, len([]rune(plain)) <= 20)
}

func TestSafeSQLAndRedisKey(t *testing.T) {
	sql := "SELECT * FROM candidate_profiles WHERE candidate_id = ?"
	assert.Equal(t, sql, SafeSQL(sql), "正常长度SQL不应被截断")

	longKey := "app:match:result:" + strings.Repeat("x", 200)
	assert.True(t, len([]rune(SafeRedisKey(longKey))) <= MaxRedisLength)
}

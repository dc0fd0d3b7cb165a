package scorer

import (
	"testing"

	"talent-match-go/internal/types"

	"github.com/stretchr/testify/require"
)

func TestScoreTitleExactMatch(t *testing.T) {
	roles := []types.RoleEntry{{Title: "Backend Engineer"}}
	result := ScoreTitle("Backend Engineer", roles)
	require.Equal(t, 100.0, result.Score)
	require.Equal(t, "Backend Engineer", result.MatchedRole)
}

func TestScoreTitlePartialOverlap(t *testing.T) {
	roles := []types.RoleEntry{{Title: "Senior Backend Engineer"}}
	// 交集{backend, engineer}=2, 并集{senior, backend, engineer}=3
	result := ScoreTitle("Backend Engineer", roles)
	require.InDelta(t, 200.0/3.0, result.Score, 0.01)
}

func TestScoreTitleOnlyRecentRoles(t *testing.T) {
	// 只看最近3段任职，第4段的完全匹配不应生效
	roles := []types.RoleEntry{
		{Title: "Engineering Manager"},
		{Title: "Tech Lead"},
		{Title: "Staff Architect"},
		{Title: "Backend Engineer"},
	}
	result := ScoreTitle("Backend Engineer", roles)
	require.Less(t, result.Score, 100.0, "最近3段之外的任职不应参与比对")
}

func TestScoreTitleBestOfRecent(t *testing.T) {
	roles := []types.RoleEntry{
		{Title: "Product Manager"},
		{Title: "Backend Engineer"},
	}
	result := ScoreTitle("Backend Engineer", roles)
	require.Equal(t, 100.0, result.Score, "取最近3段中的最高分")
	require.Equal(t, "Backend Engineer", result.MatchedRole)
}

func TestScoreTitleChinese(t *testing.T) {
	// 中文职位名按单字切词
	roles := []types.RoleEntry{{Title: "后端工程师"}}
	result := ScoreTitle("后端工程师", roles)
	require.Equal(t, 100.0, result.Score)

	result = ScoreTitle("前端工程师", roles)
	require.Greater(t, result.Score, 0.0)
	require.Less(t, result.Score, 100.0)
}

func TestScoreTitleEmptyInputs(t *testing.T) {
	require.Equal(t, 0.0, ScoreTitle("", []types.RoleEntry{{Title: "Engineer"}}).Score)
	require.Equal(t, 0.0, ScoreTitle("Engineer", nil).Score)
	require.Equal(t, 0.0, ScoreTitle("Engineer", []types.RoleEntry{{Title: ""}}).Score)
}

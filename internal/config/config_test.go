package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigWithWeightSchemes 验证权重方案的 map 结构能否被正确加载
func TestLoadConfigWithWeightSchemes(t *testing.T) {
	// 1. 创建一个临时的 YAML 配置文件
	yamlContent := `
match:
  similarity_floor: 0.4
  recall_limit: 200
  weight_schemes:
    coarse:
      title: 0.30
      skills: 0.30
      experience: 0.30
      similarity: 0.10
    full_ensemble:
      skills: 0.40
      experience: 0.25
      similarity: 0.20
      title: 0.15
`
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err, "无法写入临时配置文件")

	// 2. 调用 LoadConfig 函数加载配置
	config, err := LoadConfig(configPath)
	require.NoError(t, err, "加载具有正确语法的配置不应返回错误")
	require.NotNil(t, config, "配置对象不应为 nil")

	// 3. 断言权重方案
	require.Len(t, config.Match.WeightSchemes, 2)
	coarse, ok := config.Match.WeightSchemes["coarse"]
	require.True(t, ok, "应包含 coarse 方案")
	assert.Equal(t, 0.30, coarse.Title)
	assert.Equal(t, 0.10, coarse.Similarity)

	full, ok := config.Match.WeightSchemes["full_ensemble"]
	require.True(t, ok, "应包含 full_ensemble 方案")
	assert.Equal(t, 0.40, full.Skills)
	assert.Equal(t, 0.0, full.Stability, "未配置的权重应为0")

	// 显式给出的值不应被默认值覆盖
	assert.Equal(t, 0.4, config.Match.SimilarityFloor)
	assert.Equal(t, 200, config.Match.RecallLimit)
}

// TestLoadConfigAppliesDefaults 验证缺失字段会被补齐默认值
func TestLoadConfigAppliesDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-defaults")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte("mysql:\n  host: db.internal\n"), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", config.MySQL.Host)
	assert.Equal(t, 0.35, config.Match.SimilarityFloor, "相似度下限应有默认值")
	assert.Equal(t, 15, config.Match.DeepPoolMin)
	assert.Equal(t, 30, config.Match.DeepPoolMax)
	assert.Equal(t, ":8080", config.Server.Address)
	assert.Equal(t, "90s", config.DeepEvaluator.EvalTimeout)
}

// TestLoadConfigWithIncorrectMapSyntax 验证当 YAML 缩进错误时，map 字段无法被正确解析
func TestLoadConfigWithIncorrectMapSyntax(t *testing.T) {
	incorrectYAMLContent := `
match:
  recall_limit: 100
  weight_schemes: # map类型
  coarse:
    title: 0.30
`
	tmpDir, err := os.MkdirTemp("", "config-test-incorrect")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(incorrectYAMLContent), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)

	// go-yaml/v3 在解析这种格式时不会报错，但会将 weight_schemes 解析为空 map
	require.NoError(t, err, "加载语法错误的配置也不应立即报错")
	require.NotNil(t, config, "配置对象不应为 nil")
	assert.Empty(t, config.Match.WeightSchemes, "由于缩进错误，weight_schemes map 应该是空的")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute), "空串应返回默认值")
	assert.Equal(t, time.Minute, GetDuration("not-a-duration", time.Minute), "非法串应返回默认值")
}

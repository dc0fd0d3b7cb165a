package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"talent-match-go/internal/config"
	"talent-match-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// 深度评估的判定枚举
const (
	VerdictStrongMatch   = "strong_match"
	VerdictGoodMatch     = "good_match"
	VerdictPossibleMatch = "possible_match"
	VerdictWeakMatch     = "weak_match"
	VerdictNoMatch       = "no_match"
)

var validDeepVerdicts = map[string]bool{
	VerdictStrongMatch:   true,
	VerdictGoodMatch:     true,
	VerdictPossibleMatch: true,
	VerdictWeakMatch:     true,
	VerdictNoMatch:       true,
}

// DeepCandidate 进入深度评估池的单个候选人载荷
type DeepCandidate struct {
	CandidateID string `json:"id"`
	CoarseScore int    `json:"coarse_score"`
	ProfileText string `json:"profile_summary"`
}

// deepEvalResponse 批量评估响应的顶层结构。
// 缺少evaluations数组视为空评估集，而不是解析失败。
type deepEvalResponse struct {
	Evaluations []types.DeepEvaluation `json:"evaluations"`
}

// PoolSize 计算深度评估候选池大小: max(poolMin, min(2×topN, poolMax))
func PoolSize(topN, poolMin, poolMax int) int {
	size := 2 * topN
	if size > poolMax {
		size = poolMax
	}
	if size < poolMin {
		size = poolMin
	}
	return size
}

// DeepEvaluator 把入池候选人打包成一次批量LLM请求，解析并校验结构化响应。
// 深度分替换粗排分，而不是与之平均；粗排分此后只用于选池。
type DeepEvaluator struct {
	llmModel       model.ToolCallingChatModel
	cfg            *config.DeepEvaluatorConfig
	promptTemplate string
	logger         *log.Logger
}

// DeepEvaluatorOption 评估器的配置选项
type DeepEvaluatorOption func(*DeepEvaluator)

// WithCustomPromptTemplate 设置自定义提示词模板
func WithCustomPromptTemplate(template string) DeepEvaluatorOption {
	return func(e *DeepEvaluator) {
		e.promptTemplate = template
	}
}

// NewDeepEvaluator 创建一个新的深度评估器实例
func NewDeepEvaluator(llmModel model.ToolCallingChatModel, cfg *config.DeepEvaluatorConfig, logger *log.Logger, options ...DeepEvaluatorOption) *DeepEvaluator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg == nil {
		cfg = &config.DeepEvaluatorConfig{}
	}

	e := &DeepEvaluator{
		llmModel: llmModel,
		cfg:      cfg,
		logger:   logger,
	}

	e.generatePromptTemplate()

	for _, opt := range options {
		opt(e)
	}

	return e
}

func (e *DeepEvaluator) generatePromptTemplate() {
	e.promptTemplate = `你是一位极其资深的AI招聘专家，具备精准识别人岗匹配度的火眼金睛。你的任务是基于下面提供的【岗位需求】，对多位候选人进行深度、细致的对比评估，并严格按照指定的JSON格式输出结果。

**请严格遵循以下JSON输出格式规范：**
输出一个合法的JSON对象，顶层只有一个 "evaluations" 数组，每位候选人对应一个元素：
{
  "evaluations": [
    {
      "id": "候选人ID（与输入中的id完全一致）",
      "score": 整数 (0-100)，反映该候选人与岗位的整体匹配程度,
      "verdict": "strong_match" | "good_match" | "possible_match" | "weak_match" | "no_match",
      "strengths": "该候选人与岗位高度匹配的具体关键点，避免空泛描述",
      "concerns": "具体潜在不足、与要求不符之处或需进一步考察的方面",
      "recommendation": "一句话的下一步建议，例如是否推进面试"
    }
  ]
}

**JSON格式细节要求：**
- 完整输出必须是一个合法的JSON对象。
- 所有字段名和字符串值都必须使用双引号。
- 字符串值内部如果包含双引号(")，必须使用反斜杠(\\")进行转义。
- 禁止在JSON结构之外输出任何额外文本、解释或Markdown标记。
- 每位输入的候选人都必须出现在evaluations数组中，id不得改写。

**评分核心原则（请务必严格遵守，以确保评估的专业性和区分度）：**
*   **一票否决项 (若不满足，score 通常应低于40分)：** 岗位明确声明的"必须具备/精通"的核心技术或经验，候选人完全缺失或严重不符。
*   **高权重因素：** 核心技能匹配度、相关工作经验的直接相关性与年限、岗位职责契合度。
*   **中权重因素：** "熟悉/了解"级别技能、行业背景、从经历中体现的软技能。
*   **低权重/加分项：** 超出岗位基础要求且对岗位有价值的额外技能或成果。

**verdict与score的对应关系：**
- strong_match: 85-100分
- good_match: 70-84分
- possible_match: 55-69分
- weak_match: 40-54分
- no_match: 0-39分

【岗位需求】:
"""
%s
"""

【候选人列表】:
%s

请基于以上所有指令，仔细对比评估每位候选人并输出JSON结果。`
}

// EvaluateBatch 对候选池执行一次批量深度评估。
// 返回错误表示整批失败（超时、调用失败或响应不可解析），调用方应回退到粗排结果。
func (e *DeepEvaluator) EvaluateBatch(ctx context.Context, requirement *types.RequirementProfile, candidates []DeepCandidate) ([]types.DeepEvaluation, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("DeepEvaluator: llmModel is not initialized")
	}
	if requirement == nil {
		return nil, fmt.Errorf("DeepEvaluator: requirement不能为空")
	}
	if len(candidates) == 0 {
		return []types.DeepEvaluation{}, nil
	}

	// 单批评估超时
	if timeout := e.evalTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	userMsgContent := fmt.Sprintf(e.promptTemplate, e.formatRequirement(requirement), e.formatCandidates(candidates))

	systemMsg := einoschema.SystemMessage("你是一位资深的AI招聘助手，专注于批量分析岗位需求和候选人材料的匹配度。")
	userMsg := einoschema.UserMessage(userMsgContent)

	e.logger.Printf("[DeepEvaluator] 批量评估 %d 位候选人，岗位: %s", len(candidates), requirement.Title)

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return nil, fmt.Errorf("DeepEvaluator: LLM call failed: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("DeepEvaluator: LLM returned empty response")
	}

	// 去除BOM后提取JSON
	processedContent := strings.TrimPrefix(response.Content, "\uFEFF")
	jsonStr := extractJSONObject(processedContent)
	if jsonStr == "" {
		return nil, fmt.Errorf("DeepEvaluator: failed to extract JSON from LLM response. Content: %.300s", processedContent)
	}

	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var parsed deepEvalResponse
	// ① 正常解析
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		// ② 解析失败 -> 自动修复再试一次
		fixedJsonStr := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixedJsonStr), &parsed); jsonErr != nil {
			return nil, fmt.Errorf("DeepEvaluator: failed to unmarshal LLM JSON response after sanitization. Original error: %w. Sanitization error: %v", err, jsonErr)
		}
	}

	// 请求中的候选人集合，响应里不认识的id直接丢弃
	requested := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		requested[c.CandidateID] = true
	}

	results := make([]types.DeepEvaluation, 0, len(parsed.Evaluations))
	for _, eval := range parsed.Evaluations {
		if eval.CandidateID == "" || !requested[eval.CandidateID] {
			e.logger.Printf("[DeepEvaluator] 丢弃响应中未知的候选人ID: %q", eval.CandidateID)
			continue
		}
		normalizeEvaluation(&eval)
		results = append(results, eval)
	}

	e.logger.Printf("[DeepEvaluator] 批量评估完成: 请求 %d，有效响应 %d", len(candidates), len(results))
	return results, nil
}

func (e *DeepEvaluator) evalTimeout() time.Duration {
	if e.cfg.EvalTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(e.cfg.EvalTimeout)
	if err != nil {
		return 0
	}
	return d
}

// formatRequirement 把岗位需求档案拼成提示词中的文本段
func (e *DeepEvaluator) formatRequirement(req *types.RequirementProfile) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("岗位: %s\n", req.Title))
	if req.MinExperienceYears > 0 {
		sb.WriteString(fmt.Sprintf("经验要求: %.1f年以上\n", req.MinExperienceYears))
	}
	if len(req.RequiredSkills) > 0 {
		sb.WriteString(fmt.Sprintf("必备技能: %s\n", strings.Join(req.RequiredSkills, ", ")))
	}
	if len(req.NiceToHaveSkills) > 0 {
		sb.WriteString(fmt.Sprintf("加分技能: %s\n", strings.Join(req.NiceToHaveSkills, ", ")))
	}
	if len(req.Responsibilities) > 0 {
		sb.WriteString(fmt.Sprintf("岗位职责:\n- %s\n", strings.Join(req.Responsibilities, "\n- ")))
	}
	if len(req.Requirements) > 0 {
		sb.WriteString(fmt.Sprintf("任职要求:\n- %s\n", strings.Join(req.Requirements, "\n- ")))
	}
	if req.Description != "" {
		sb.WriteString(fmt.Sprintf("岗位描述:\n%s\n", req.Description))
	}
	return sb.String()
}

// formatCandidates 把候选池拼成带编号的文本块，单人材料截断到字符预算
func (e *DeepEvaluator) formatCandidates(candidates []DeepCandidate) string {
	budget := e.cfg.ProfileCharBudget
	if budget <= 0 {
		budget = 2000
	}

	var sb strings.Builder
	for i, c := range candidates {
		profile := c.ProfileText
		if runes := []rune(profile); len(runes) > budget {
			profile = string(runes[:budget])
		}
		sb.WriteString(fmt.Sprintf("--- 候选人 %d ---\nid: %s\n粗排分: %d\n材料:\n\"\"\"\n%s\n\"\"\"\n\n", i+1, c.CandidateID, c.CoarseScore, profile))
	}
	return sb.String()
}

// normalizeEvaluation 校验并修正单条评估：分数夹取到[0,100]，非法判定按分数段回填
func normalizeEvaluation(eval *types.DeepEvaluation) {
	if eval.Score < 0 {
		eval.Score = 0
	}
	if eval.Score > 100 {
		eval.Score = 100
	}

	verdict := strings.ToLower(strings.TrimSpace(eval.Verdict))
	if !validDeepVerdicts[verdict] {
		verdict = verdictForScore(eval.Score)
	}
	eval.Verdict = verdict
}

func verdictForScore(score int) string {
	switch {
	case score >= 85:
		return VerdictStrongMatch
	case score >= 70:
		return VerdictGoodMatch
	case score >= 55:
		return VerdictPossibleMatch
	case score >= 40:
		return VerdictWeakMatch
	default:
		return VerdictNoMatch
	}
}

// extractJSONObject 从文本中提取第一个配平的JSON对象
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 会遍历 src，将任何位于字符串字面量内部但并非"真正结束"的双引号写成 \,
// 以保证整个 JSON 在 Go 端能够正常反序列化。
// 它通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串的结束。
// 反斜杠转义逻辑则正常处理 \\ 和 \"。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				// 当前在字符串里，检查这是不是字符串的真正结束
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					// 字符串内部的 "，改成 \"
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}

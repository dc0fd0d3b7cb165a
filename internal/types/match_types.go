package types

import "time"

// SkillSource 技能条目的来源
type SkillSource string

const (
	// SkillSourceWorkHistory 工作经历中验证过的技能
	SkillSourceWorkHistory SkillSource = "WORK_HISTORY"
	// SkillSourceList 仅出现在技能清单中、未经工作经历验证的技能
	SkillSourceList SkillSource = "SKILL_LIST"
)

const (
	// SkillWeightConfirmed 工作经历验证过的技能权重
	SkillWeightConfirmed = 1.0
	// SkillWeightListOnly 仅清单技能的权重
	SkillWeightListOnly = 0.4
)

// SkillEntry 候选人的一条类型化技能
type SkillEntry struct {
	Name     string      `json:"name"`
	Source   SkillSource `json:"source"`
	Weight   float64     `json:"weight"`
	Category string      `json:"category,omitempty"`
}

// RoleEntry 候选人工作经历中的一段任职记录。
// Start/End 保留LLM抽取出的原始日期字符串（支持多种格式，见 scorer 包的日期解析）。
// DurationYears 为预计算时长，为0时由 Start/End 推导。
type RoleEntry struct {
	Title         string   `json:"title"`
	Company       string   `json:"company,omitempty"`
	Start         string   `json:"start"`
	End           string   `json:"end"`
	DurationYears float64  `json:"duration_years,omitempty"`
	TechStack     []string `json:"tech_stack,omitempty"`
	Cluster       string   `json:"cluster,omitempty"` // 上游分类器给出的聚类标签
}

// CandidateProfile 候选人档案（由简历结构化抽取而来）。
// Roles 按时间倒序排列（最近的在前）。
type CandidateProfile struct {
	CandidateID          string             `json:"candidate_id"`
	Name                 string             `json:"name,omitempty"`
	Email                string             `json:"email,omitempty"`
	Phone                string             `json:"phone,omitempty"`
	Skills               []SkillEntry       `json:"skills"`
	Roles                []RoleEntry        `json:"roles"`
	TotalExperienceYears float64            `json:"total_experience_years"`
	TenureByCategory     map[string]float64 `json:"tenure_by_category,omitempty"`
	Summary              string             `json:"summary,omitempty"`       // 结构化摘要，深度评估时优先使用
	RawTextPath          string             `json:"raw_text_path,omitempty"` // 对象存储中解析文本的路径（结构化摘要缺失时的回退）
}

// RequirementProfile 岗位需求档案（由岗位描述结构化而来），单次匹配期间不可变。
type RequirementProfile struct {
	JobID              string   `json:"job_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	RequiredSkills     []string `json:"required_skills"`
	NiceToHaveSkills   []string `json:"nice_to_have_skills,omitempty"`
	MinExperienceYears float64  `json:"min_experience_years"`
	Responsibilities   []string `json:"responsibilities,omitempty"`
	Requirements       []string `json:"requirements,omitempty"`
}

// ComponentScores 各独立信号的分数，统一归一化到 [0,100]
type ComponentScores struct {
	Similarity float64  `json:"similarity"`
	Skills     float64  `json:"skills"`
	Title      float64  `json:"title"`
	Experience float64  `json:"experience"`
	Stability  float64  `json:"stability"`
	DeepEval   *float64 `json:"deep_eval,omitempty"`
}

// ScoreBreakdown 单个候选人的完整评分记录
type ScoreBreakdown struct {
	CandidateID    string          `json:"candidate_id"`
	FinalScore     int             `json:"final_score"`
	Components     ComponentScores `json:"components"`
	Verdict        string          `json:"verdict"`
	Explanation    string          `json:"explanation,omitempty"`
	MatchedSkills  []string        `json:"matched_skills,omitempty"`
	MissingSkills  []string        `json:"missing_skills,omitempty"`
	MatchedRole    string          `json:"matched_role,omitempty"`
	EvidenceCount  int             `json:"evidence_count"`
	DeepEvaluated  bool            `json:"deep_evaluated"`
	Strengths      string          `json:"strengths,omitempty"`
	Concerns       string          `json:"concerns,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
}

// MatchResult 一次匹配运行的最终输出（不落库，持久化是外部协作者的职责）
type MatchResult struct {
	RunID           string           `json:"run_id"`
	JobID           string           `json:"job_id"`
	Rankings        []ScoreBreakdown `json:"rankings"`
	TotalCandidates int              `json:"total_candidates"`
	DeepStageRan    bool             `json:"deep_stage_ran"`
	EmptyReason     string           `json:"empty_reason,omitempty"` // 空结果的诊断原因（no_query_vector / no_candidates）
	GeneratedAt     time.Time        `json:"generated_at"`
}

// DeepEvaluation 深度评估服务对单个候选人的结构化判定
type DeepEvaluation struct {
	CandidateID    string `json:"id"`
	Score          int    `json:"score"`
	Verdict        string `json:"verdict"`
	Strengths      string `json:"strengths"`
	Concerns       string `json:"concerns"`
	Recommendation string `json:"recommendation"`
}

// VerdictNotEvaluated 深度评估响应中缺失的候选人使用的哨兵判定值
const VerdictNotEvaluated = "not_evaluated"

// MatchCompletedEvent 匹配完成后发往消息队列的事件载荷
type MatchCompletedEvent struct {
	RunID        string    `json:"run_id"`
	JobID        string    `json:"job_id"`
	TopN         int       `json:"top_n"`
	ResultCount  int       `json:"result_count"`
	DeepStageRan bool      `json:"deep_stage_ran"`
	CompletedAt  time.Time `json:"completed_at"`
}

package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/evaluator"
	"talent-match-go/internal/logger"
	"talent-match-go/internal/scorer"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var matcherTracer = otel.Tracer("talent-match-go/matcher")

// 匹配运行的状态机。FAILED可以从任意状态进入；
// 召回为空走 RETRIEVING → DONE（带EmptyReason），空匹配是合法结果而不是失败。
const (
	StateLoadingRequirement = "LOADING_REQUIREMENT"
	StateRetrieving         = "RETRIEVING"
	StateScoring            = "SCORING"
	StateSelecting          = "SELECTING"
	StateDeepEvaluating     = "DEEP_EVALUATING"
	StateFinalizing         = "FINALIZING"
	StateDone               = "DONE"
	StateFailed             = "FAILED"
)

// 空结果原因
const (
	EmptyReasonNoQueryVector = "no_query_vector"
	EmptyReasonNoCandidates  = "no_candidates"
)

// ErrUnknownRequirement 岗位需求不存在。与"召回为零"是两种不同的结局：
// 前者是输入错误导致运行失败，后者是合法的空结果。
var ErrUnknownRequirement = errors.New("matcher: 岗位需求不存在")

// MatchStore 匹配流程依赖的关系型存储
type MatchStore interface {
	GetRequirementProfile(ctx context.Context, jobID string) (*types.RequirementProfile, error)
	GetJobVector(ctx context.Context, jobID string) ([]float64, error)
	GetJobChunkVectors(ctx context.Context, jobID string) ([][]float64, error)
	GetCandidateProfilesByIDs(ctx context.Context, candidateIDs []string) (map[string]*types.CandidateProfile, error)
	CreateMatchRun(ctx context.Context, run *models.MatchRun) error
	UpdateMatchRunStatus(ctx context.Context, runID string, status string) error
	CompleteMatchRun(ctx context.Context, runID string, updates map[string]interface{}) error
}

// SimilarityIndex 向量召回接口
type SimilarityIndex interface {
	SearchSimilarCandidates(ctx context.Context, queryVector []float64, limit int, floor float64) ([]storage.CandidateHit, error)
}

// BatchEvaluator 深度评估接口
type BatchEvaluator interface {
	EvaluateBatch(ctx context.Context, requirement *types.RequirementProfile, candidates []evaluator.DeepCandidate) ([]types.DeepEvaluation, error)
}

// ResultCache 匹配结果与岗位向量的缓存
type ResultCache interface {
	GetJobVector(ctx context.Context, jobID string) ([]float64, error)
	SetJobVector(ctx context.Context, jobID string, vector []float64) error
	CacheMatchResult(ctx context.Context, jobID, runID string, rankings []types.ScoreBreakdown) error
	SetRunStatus(ctx context.Context, runID string, status string) error
}

// EventPublisher 匹配完成事件发布
type EventPublisher interface {
	PublishMatchCompleted(ctx context.Context, event *types.MatchCompletedEvent) error
}

// TextFetcher 候选人原始解析文本的读取（深度评估的回退材料来源）
type TextFetcher interface {
	GetParsedText(ctx context.Context, objectKey string) (string, error)
}

// QueryEmbedder 岗位查询向量的在线生成，库里没有任何已存向量时的最后回退
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Orchestrator 串联匹配流水线：召回 → 并行粗排打分 → 加权合成 → 选池 → 深度评估 → 终排。
// 每次运行相互独立，可并发执行；编排器自身无跨运行的可变状态。
type Orchestrator struct {
	store     MatchStore
	index     SimilarityIndex
	evaluator BatchEvaluator
	cache     ResultCache
	publisher EventPublisher
	texts     TextFetcher
	embedder  QueryEmbedder

	cfg          *config.MatchConfig
	coarseScheme scorer.WeightScheme
	fullScheme   scorer.WeightScheme
	stability    *scorer.StabilityScorer

	now func() time.Time
}

// Option 编排器构造选项
type Option func(*Orchestrator)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
		o.stability = scorer.NewStabilityScorer(scorer.WithClock(now))
	}
}

// WithResultCache 启用匹配结果与岗位向量缓存
func WithResultCache(cache ResultCache) Option {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithEventPublisher 启用匹配完成事件发布
func WithEventPublisher(publisher EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

// WithTextFetcher 启用候选人原文回退读取
func WithTextFetcher(texts TextFetcher) Option {
	return func(o *Orchestrator) {
		o.texts = texts
	}
}

// WithQueryEmbedder 启用岗位描述文本的在线向量化回退
func WithQueryEmbedder(embedder QueryEmbedder) Option {
	return func(o *Orchestrator) {
		o.embedder = embedder
	}
}

// NewOrchestrator 创建匹配编排器
func NewOrchestrator(store MatchStore, index SimilarityIndex, eval BatchEvaluator, cfg *config.MatchConfig, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = &config.MatchConfig{}
	}

	o := &Orchestrator{
		store:        store,
		index:        index,
		evaluator:    eval,
		cfg:          cfg,
		coarseScheme: schemeFromConfig("coarse", cfg, scorer.CoarseScheme),
		fullScheme:   schemeFromConfig("full_ensemble", cfg, scorer.FullEnsembleScheme),
		stability:    scorer.NewStabilityScorer(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// activeScheme 返回主流水线使用的加权方案。
// 两套文档化方案权重不一致，选哪套是配置层面的显式策略，默认coarse。
func (o *Orchestrator) activeScheme() scorer.WeightScheme {
	if o.cfg.ActiveScheme == "full_ensemble" {
		return o.fullScheme
	}
	return o.coarseScheme
}

// schemeFromConfig 从配置读取加权方案，缺失时使用内置默认值
func schemeFromConfig(name string, cfg *config.MatchConfig, fallback scorer.WeightScheme) scorer.WeightScheme {
	wsc, ok := cfg.WeightSchemes[name]
	if !ok {
		return fallback
	}
	return scorer.WeightScheme{
		Name:       name,
		Similarity: wsc.Similarity,
		Skills:     wsc.Skills,
		Title:      wsc.Title,
		Experience: wsc.Experience,
		Stability:  wsc.Stability,
	}
}

// RunMatch 对指定岗位执行一次完整匹配，返回排好序的Top-N结果。
// 返回的排序要么全部来自粗排，要么深度池内全部被深度分替换，不会出现半深半粗的局面。
func (o *Orchestrator) RunMatch(ctx context.Context, jobID string, topN int) (*types.MatchResult, error) {
	ctx, span := matcherTracer.Start(ctx, "Orchestrator.RunMatch")
	defer span.End()

	if topN <= 0 {
		topN = o.cfg.DefaultTopN
	}
	if topN <= 0 {
		topN = 10
	}

	runID := uuid.New().String()
	span.SetAttributes(
		attribute.String("match.run_id", runID),
		attribute.String("match.job_id", jobID),
		attribute.Int("match.top_n", topN),
	)

	run := &models.MatchRun{
		RunID:          runID,
		JobID:          jobID,
		Status:         StateLoadingRequirement,
		TopN:           topN,
		ScoringVersion: constants.DefaultScoringVersion,
		StartedAt:      o.now(),
	}
	if err := o.store.CreateMatchRun(ctx, run); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("创建匹配运行记录失败: %w", err)
	}

	result, err := o.execute(ctx, runID, jobID, topN)
	if err != nil {
		o.failRun(ctx, runID, err)
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("match.total_candidates", result.TotalCandidates),
		attribute.Bool("match.deep_stage_ran", result.DeepStageRan),
		attribute.String("match.empty_reason", result.EmptyReason),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// execute 推进状态机主体。出错时由调用方统一转入FAILED。
func (o *Orchestrator) execute(ctx context.Context, runID, jobID string, topN int) (*types.MatchResult, error) {
	// --- LOADING_REQUIREMENT ---
	requirement, err := o.store.GetRequirementProfile(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job_id=%s", ErrUnknownRequirement, jobID)
		}
		return nil, fmt.Errorf("加载岗位需求失败: %w", err)
	}

	// --- RETRIEVING ---
	o.transition(ctx, runID, StateRetrieving)

	queryVector, err := o.loadQueryVector(ctx, requirement)
	if err != nil {
		return nil, err
	}
	if len(queryVector) == 0 {
		logger.Warn().Str("run_id", runID).Str("job_id", jobID).Msg("岗位缺少查询向量，返回空匹配结果")
		return o.finishEmpty(ctx, runID, jobID, topN, EmptyReasonNoQueryVector)
	}

	recallLimit := o.cfg.RecallLimit
	if recallLimit <= 0 {
		recallLimit = 300
	}
	hits, err := o.index.SearchSimilarCandidates(ctx, queryVector, recallLimit, o.cfg.SimilarityFloor)
	if err != nil {
		// 相似索引不可达对整次运行是致命的
		return nil, fmt.Errorf("向量召回失败: %w", err)
	}
	if len(hits) == 0 {
		logger.Info().Str("run_id", runID).Str("job_id", jobID).Msg("召回结果为空，返回空匹配结果")
		return o.finishEmpty(ctx, runID, jobID, topN, EmptyReasonNoCandidates)
	}

	// --- SCORING ---
	o.transition(ctx, runID, StateScoring)

	candidateIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		candidateIDs = append(candidateIDs, h.CandidateID)
	}
	profiles, err := o.store.GetCandidateProfilesByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("加载候选人档案失败: %w", err)
	}

	breakdowns, err := o.scoreCandidates(ctx, requirement, hits, profiles)
	if err != nil {
		return nil, err
	}
	if len(breakdowns) == 0 {
		logger.Warn().Str("run_id", runID).Int("recalled", len(hits)).Msg("召回的候选人均无可用档案，返回空匹配结果")
		return o.finishEmpty(ctx, runID, jobID, topN, EmptyReasonNoCandidates)
	}

	// --- SELECTING ---
	o.transition(ctx, runID, StateSelecting)
	scorer.Rank(breakdowns)

	poolSize := evaluator.PoolSize(topN, o.poolMin(), o.poolMax())
	if poolSize > len(breakdowns) {
		poolSize = len(breakdowns)
	}

	// --- DEEP_EVALUATING ---
	deepStageRan := false
	if o.evaluator != nil && poolSize > 0 {
		// 深度评估是最昂贵的一步，发起前检查调用方是否已取消
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("匹配运行在深度评估前被取消: %w", ctx.Err())
		default:
		}

		o.transition(ctx, runID, StateDeepEvaluating)
		deepStageRan = o.deepEvaluate(ctx, runID, requirement, breakdowns[:poolSize], profiles)
	}

	// --- FINALIZING ---
	o.transition(ctx, runID, StateFinalizing)
	scorer.Rank(breakdowns)

	generatedAt := o.now()
	total := len(breakdowns)
	top := breakdowns
	if len(top) > topN {
		top = top[:topN]
	}

	result := &types.MatchResult{
		RunID:           runID,
		JobID:           jobID,
		Rankings:        top,
		TotalCandidates: total,
		DeepStageRan:    deepStageRan,
		GeneratedAt:     generatedAt,
	}

	o.persistResult(ctx, runID, result, breakdowns)
	o.publishCompleted(ctx, result, topN)
	o.transition(ctx, runID, StateDone)

	return result, nil
}

// loadQueryVector 解析岗位的查询向量：Redis缓存 → 整体向量表 → 子向量均值 → 在线向量化。
// 四者皆无时返回空向量，由调用方转成空匹配结果。
func (o *Orchestrator) loadQueryVector(ctx context.Context, requirement *types.RequirementProfile) ([]float64, error) {
	jobID := requirement.JobID
	if o.cache != nil {
		if vec, err := o.cache.GetJobVector(ctx, jobID); err == nil && len(vec) > 0 {
			return vec, nil
		}
	}

	vec, err := o.store.GetJobVector(ctx, jobID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("加载岗位向量失败: %w", err)
	}

	if len(vec) == 0 {
		chunks, err := o.store.GetJobChunkVectors(ctx, jobID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("加载岗位分块向量失败: %w", err)
		}
		vec = meanVector(chunks)
	}

	// 库里没有任何已存向量时，在线向量化岗位描述文本兜底。
	// 向量化失败不致命，降级为空匹配结果。
	if len(vec) == 0 && o.embedder != nil {
		embedded, err := o.embedder.EmbedQuery(ctx, requirementQueryText(requirement))
		if err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("在线向量化岗位描述失败")
		} else {
			vec = embedded
		}
	}

	if len(vec) > 0 && o.cache != nil {
		if err := o.cache.SetJobVector(ctx, jobID, vec); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("缓存岗位向量失败")
		}
	}
	return vec, nil
}

// requirementQueryText 拼出在线向量化用的岗位文本
func requirementQueryText(requirement *types.RequirementProfile) string {
	var sb strings.Builder
	if requirement.Title != "" {
		sb.WriteString(requirement.Title)
		sb.WriteString("\n")
	}
	if requirement.Description != "" {
		sb.WriteString(requirement.Description)
		sb.WriteString("\n")
	}
	if len(requirement.RequiredSkills) > 0 {
		sb.WriteString("必备技能: ")
		sb.WriteString(strings.Join(requirement.RequiredSkills, ", "))
		sb.WriteString("\n")
	}
	if len(requirement.Responsibilities) > 0 {
		sb.WriteString("职责: ")
		sb.WriteString(strings.Join(requirement.Responsibilities, "；"))
	}
	return strings.TrimSpace(sb.String())
}

// meanVector 逐维求均值。输入为空或维度不一致时返回nil。
func meanVector(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil
	}
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			sum[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range sum {
		sum[i] /= n
	}
	return sum
}

// scoreCandidates 并行计算每个候选人的各项粗排信号并加权合成。
// 候选人之间无依赖，用有界工作池并行；缺档案的候选人跳过（数据质量问题，非致命）。
func (o *Orchestrator) scoreCandidates(ctx context.Context, requirement *types.RequirementProfile, hits []storage.CandidateHit, profiles map[string]*types.CandidateProfile) ([]types.ScoreBreakdown, error) {
	workers := o.cfg.ScoringWorkers
	if workers <= 0 {
		workers = 8
	}

	results := make([]*types.ScoreBreakdown, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, hit := range hits {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			profile, ok := profiles[hit.CandidateID]
			if !ok {
				logger.Debug().Str("candidate_id", hit.CandidateID).Msg("候选人档案缺失，跳过打分")
				return nil
			}

			results[i] = o.scoreOne(requirement, hit, profile)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("候选人打分失败: %w", err)
	}

	// 压实，保持召回顺序
	breakdowns := make([]types.ScoreBreakdown, 0, len(hits))
	for _, r := range results {
		if r != nil {
			breakdowns = append(breakdowns, *r)
		}
	}
	return breakdowns, nil
}

// scoreOne 计算单个候选人的全部粗排信号
func (o *Orchestrator) scoreOne(requirement *types.RequirementProfile, hit storage.CandidateHit, profile *types.CandidateProfile) *types.ScoreBreakdown {
	skillsRes := scorer.ScoreSkills(profile.Skills, requirement.RequiredSkills, requirement.NiceToHaveSkills)
	titleRes := scorer.ScoreTitle(requirement.Title, profile.Roles)
	expScore := scorer.ScoreExperience(profile.TotalExperienceYears, requirement.MinExperienceYears)
	stabilityRes := o.stability.Score(profile)

	components := types.ComponentScores{
		Similarity: hit.Similarity * 100,
		Skills:     skillsRes.Score,
		Title:      titleRes.Score,
		Experience: expScore * 100,
		Stability:  stabilityRes.Score * 100,
	}

	final := scorer.Combine(components, o.activeScheme())

	return &types.ScoreBreakdown{
		CandidateID:   hit.CandidateID,
		FinalScore:    final,
		Components:    components,
		Verdict:       types.VerdictNotEvaluated,
		Explanation:   buildExplanation(skillsRes, titleRes, stabilityRes),
		MatchedSkills: skillsRes.Matched,
		MissingSkills: skillsRes.Missing,
		MatchedRole:   titleRes.MatchedRole,
		EvidenceCount: hit.EvidenceCount,
	}
}

// buildExplanation 生成粗排阶段的人类可读说明
func buildExplanation(skills scorer.SkillsResult, title scorer.TitleResult, stability scorer.StabilityResult) string {
	matched := len(skills.Matched)
	missing := len(skills.Missing)
	explanation := fmt.Sprintf("必备技能命中%d项、缺失%d项", matched, missing)
	if title.MatchedRole != "" {
		explanation += fmt.Sprintf("；最相近职位「%s」", title.MatchedRole)
	}
	explanation += fmt.Sprintf("；履历稳定性%s", stability.Verdict)
	return explanation
}

// deepEvaluate 对入池候选人发起一次批量深度评估，原地更新pool内的条目。
// 深度分直接替换粗排分（粗排分此后只承担选池职责）；响应中缺失的候选人
// 保留粗排分与not_evaluated判定。整批失败（含超时与不可解析响应）非致命，
// 全部候选人回退到粗排结果，返回false。
func (o *Orchestrator) deepEvaluate(ctx context.Context, runID string, requirement *types.RequirementProfile, pool []types.ScoreBreakdown, profiles map[string]*types.CandidateProfile) bool {
	payload := make([]evaluator.DeepCandidate, 0, len(pool))
	for _, b := range pool {
		profile := profiles[b.CandidateID]
		payload = append(payload, evaluator.DeepCandidate{
			CandidateID: b.CandidateID,
			CoarseScore: b.FinalScore,
			ProfileText: o.profileText(ctx, profile),
		})
	}

	evaluations, err := o.evaluator.EvaluateBatch(ctx, requirement, payload)
	if err != nil {
		logger.Warn().Err(err).Str("run_id", runID).Int("pool_size", len(pool)).
			Msg("深度评估整批失败，回退到粗排结果")
		return false
	}

	byID := make(map[string]types.DeepEvaluation, len(evaluations))
	for _, e := range evaluations {
		byID[e.CandidateID] = e
	}

	evaluated := 0
	for i := range pool {
		eval, ok := byID[pool[i].CandidateID]
		if !ok {
			// 响应中缺席：保留粗排分与not_evaluated哨兵
			continue
		}
		deepScore := float64(eval.Score)
		pool[i].FinalScore = eval.Score
		pool[i].Components.DeepEval = &deepScore
		pool[i].Verdict = eval.Verdict
		pool[i].Strengths = eval.Strengths
		pool[i].Concerns = eval.Concerns
		pool[i].Recommendation = eval.Recommendation
		pool[i].DeepEvaluated = true
		evaluated++
	}

	logger.Info().Str("run_id", runID).Int("pool_size", len(pool)).Int("evaluated", evaluated).
		Msg("深度评估完成")
	return true
}

// persistResult 落库并写结果缓存，失败只告警
func (o *Orchestrator) persistResult(ctx context.Context, runID string, result *types.MatchResult, allRankings []types.ScoreBreakdown) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("序列化匹配结果失败")
		resultJSON = nil
	}

	now := o.now()
	updates := map[string]interface{}{
		"status":           StateDone,
		"total_candidates": result.TotalCandidates,
		"deep_stage_ran":   result.DeepStageRan,
		"empty_reason":     result.EmptyReason,
		"completed_at":     &now,
	}
	if resultJSON != nil {
		updates["result_json"] = models.StringToJSON(string(resultJSON))
	}
	if err := o.store.CompleteMatchRun(ctx, runID, updates); err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("落库匹配运行结果失败")
	}

	if o.cache != nil && len(allRankings) > 0 {
		if err := o.cache.CacheMatchResult(ctx, result.JobID, runID, allRankings); err != nil {
			logger.Warn().Err(err).Str("run_id", runID).Msg("写匹配结果缓存失败")
		}
	}
}

// publishCompleted 发布匹配完成事件，失败只告警
func (o *Orchestrator) publishCompleted(ctx context.Context, result *types.MatchResult, topN int) {
	if o.publisher == nil {
		return
	}
	event := &types.MatchCompletedEvent{
		RunID:        result.RunID,
		JobID:        result.JobID,
		TopN:         topN,
		ResultCount:  len(result.Rankings),
		DeepStageRan: result.DeepStageRan,
		CompletedAt:  result.GeneratedAt,
	}
	if err := o.publisher.PublishMatchCompleted(ctx, event); err != nil {
		logger.Warn().Err(err).Str("run_id", result.RunID).Msg("发布匹配完成事件失败")
	}
}

// finishEmpty 以空结果收尾：状态DONE，带EmptyReason
func (o *Orchestrator) finishEmpty(ctx context.Context, runID, jobID string, topN int, reason string) (*types.MatchResult, error) {
	result := &types.MatchResult{
		RunID:       runID,
		JobID:       jobID,
		Rankings:    []types.ScoreBreakdown{},
		EmptyReason: reason,
		GeneratedAt: o.now(),
	}

	o.persistResult(ctx, runID, result, nil)
	o.publishCompleted(ctx, result, topN)
	o.transition(ctx, runID, StateDone)
	return result, nil
}

// failRun 转入FAILED终态
func (o *Orchestrator) failRun(ctx context.Context, runID string, cause error) {
	now := o.now()
	updates := map[string]interface{}{
		"status":         StateFailed,
		"failure_reason": cause.Error(),
		"completed_at":   &now,
	}
	if err := o.store.CompleteMatchRun(ctx, runID, updates); err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("记录匹配运行失败状态出错")
	}
	if o.cache != nil {
		_ = o.cache.SetRunStatus(ctx, runID, StateFailed)
	}
}

// transition 更新运行状态（MySQL为准，Redis尽力而为）
func (o *Orchestrator) transition(ctx context.Context, runID string, state string) {
	if err := o.store.UpdateMatchRunStatus(ctx, runID, state); err != nil {
		logger.Warn().Err(err).Str("run_id", runID).Str("state", state).Msg("更新匹配运行状态失败")
	}
	if o.cache != nil {
		if err := o.cache.SetRunStatus(ctx, runID, state); err != nil {
			logger.Debug().Err(err).Str("run_id", runID).Msg("写运行状态缓存失败")
		}
	}
}

func (o *Orchestrator) poolMin() int {
	if o.cfg.DeepPoolMin > 0 {
		return o.cfg.DeepPoolMin
	}
	return 15
}

func (o *Orchestrator) poolMax() int {
	if o.cfg.DeepPoolMax > 0 {
		return o.cfg.DeepPoolMax
	}
	return 30
}

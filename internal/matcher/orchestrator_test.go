package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/evaluator"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// --- 测试替身 ---

type fakeStore struct {
	requirement *types.RequirementProfile
	jobVector   []float64
	chunks      [][]float64
	profiles    map[string]*types.CandidateProfile

	createdRuns []*models.MatchRun
	statuses    []string
	completions map[string]map[string]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:    map[string]*types.CandidateProfile{},
		completions: map[string]map[string]interface{}{},
	}
}

func (s *fakeStore) GetRequirementProfile(ctx context.Context, jobID string) (*types.RequirementProfile, error) {
	if s.requirement == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.requirement, nil
}

func (s *fakeStore) GetJobVector(ctx context.Context, jobID string) ([]float64, error) {
	if s.jobVector == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.jobVector, nil
}

func (s *fakeStore) GetJobChunkVectors(ctx context.Context, jobID string) ([][]float64, error) {
	return s.chunks, nil
}

func (s *fakeStore) GetCandidateProfilesByIDs(ctx context.Context, ids []string) (map[string]*types.CandidateProfile, error) {
	out := make(map[string]*types.CandidateProfile)
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *fakeStore) CreateMatchRun(ctx context.Context, run *models.MatchRun) error {
	s.createdRuns = append(s.createdRuns, run)
	return nil
}

func (s *fakeStore) UpdateMatchRunStatus(ctx context.Context, runID string, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) CompleteMatchRun(ctx context.Context, runID string, updates map[string]interface{}) error {
	s.completions[runID] = updates
	return nil
}

type fakeIndex struct {
	hits []storage.CandidateHit
	err  error

	gotLimit int
	gotFloor float64
}

func (f *fakeIndex) SearchSimilarCandidates(ctx context.Context, queryVector []float64, limit int, floor float64) ([]storage.CandidateHit, error) {
	f.gotLimit = limit
	f.gotFloor = floor
	return f.hits, f.err
}

type fakeEvaluator struct {
	evaluations []types.DeepEvaluation
	err         error
	calls       int
	gotPool     []evaluator.DeepCandidate
}

func (f *fakeEvaluator) EvaluateBatch(ctx context.Context, req *types.RequirementProfile, candidates []evaluator.DeepCandidate) ([]types.DeepEvaluation, error) {
	f.calls++
	f.gotPool = candidates
	if f.err != nil {
		return nil, f.err
	}
	return f.evaluations, nil
}

type fakePublisher struct {
	events []*types.MatchCompletedEvent
}

func (f *fakePublisher) PublishMatchCompleted(ctx context.Context, event *types.MatchCompletedEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeEmbedder struct {
	vector  []float64
	err     error
	calls   int
	gotText string
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	f.gotText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeCache struct {
	jobVectors map[string][]float64
	cachedRuns map[string][]types.ScoreBreakdown
	statuses   []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		jobVectors: map[string][]float64{},
		cachedRuns: map[string][]types.ScoreBreakdown{},
	}
}

func (f *fakeCache) GetJobVector(ctx context.Context, jobID string) ([]float64, error) {
	if v, ok := f.jobVectors[jobID]; ok {
		return v, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeCache) SetJobVector(ctx context.Context, jobID string, vector []float64) error {
	f.jobVectors[jobID] = vector
	return nil
}

func (f *fakeCache) CacheMatchResult(ctx context.Context, jobID, runID string, rankings []types.ScoreBreakdown) error {
	f.cachedRuns[runID] = rankings
	return nil
}

func (f *fakeCache) SetRunStatus(ctx context.Context, runID string, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

// --- 测试数据 ---

func testMatchConfig() *config.MatchConfig {
	return &config.MatchConfig{
		SimilarityFloor: 0.35,
		RecallLimit:     300,
		DefaultTopN:     10,
		DeepPoolMin:     1,
		DeepPoolMax:     30,
		ScoringWorkers:  4,
	}
}

func goRequirement() *types.RequirementProfile {
	return &types.RequirementProfile{
		JobID:              "job-1",
		Title:              "Go后端开发工程师",
		RequiredSkills:     []string{"Go", "MySQL"},
		NiceToHaveSkills:   []string{"Kubernetes"},
		MinExperienceYears: 3,
	}
}

func goProfile(id string, years float64) *types.CandidateProfile {
	return &types.CandidateProfile{
		CandidateID: id,
		Skills: []types.SkillEntry{
			{Name: "Go", Source: types.SkillSourceWorkHistory, Weight: types.SkillWeightConfirmed},
			{Name: "MySQL", Source: types.SkillSourceList, Weight: types.SkillWeightListOnly},
		},
		Roles: []types.RoleEntry{
			{Title: "Go后端开发工程师", Company: "A公司", Start: "2021-06", End: "至今", DurationYears: 5},
		},
		TotalExperienceYears: years,
		Summary:              fmt.Sprintf("候选人%s：多年Go后端开发经验", id),
	}
}

func newTestOrchestrator(store *fakeStore, index *fakeIndex, eval BatchEvaluator, opts ...Option) *Orchestrator {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return NewOrchestrator(store, index, eval, testMatchConfig(), opts...)
}

// --- 测试 ---

func TestRunMatch_UnknownRequirement(t *testing.T) {
	store := newFakeStore() // 无requirement
	o := newTestOrchestrator(store, &fakeIndex{}, nil)

	_, err := o.RunMatch(context.Background(), "job-missing", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRequirement, "未知岗位应返回可识别的输入错误")

	require.Len(t, store.createdRuns, 1)
	updates := store.completions[store.createdRuns[0].RunID]
	require.NotNil(t, updates, "失败的运行也应落库")
	assert.Equal(t, StateFailed, updates["status"])
}

func TestRunMatch_NoQueryVector(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	// 无整体向量，也无分块向量

	o := newTestOrchestrator(store, &fakeIndex{}, nil)
	result, err := o.RunMatch(context.Background(), "job-1", 5)

	require.NoError(t, err, "缺查询向量是空结果而不是失败")
	assert.Empty(t, result.Rankings)
	assert.Equal(t, EmptyReasonNoQueryVector, result.EmptyReason)
	assert.False(t, result.DeepStageRan)
}

func TestRunMatch_NoCandidates(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}

	index := &fakeIndex{hits: nil}
	o := newTestOrchestrator(store, index, nil)
	result, err := o.RunMatch(context.Background(), "job-1", 5)

	require.NoError(t, err, "零召回是合法的空结果")
	assert.Equal(t, EmptyReasonNoCandidates, result.EmptyReason)
	assert.Empty(t, result.Rankings)
	assert.InDelta(t, 0.35, index.gotFloor, 0.001, "召回应带相似度下限")
	assert.Equal(t, 300, index.gotLimit)
}

func TestRunMatch_IndexErrorIsFatal(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}

	index := &fakeIndex{err: fmt.Errorf("qdrant连接被拒绝")}
	o := newTestOrchestrator(store, index, nil)

	_, err := o.RunMatch(context.Background(), "job-1", 5)
	require.Error(t, err, "相似索引不可达应导致运行失败")
}

func TestRunMatch_QueryVectorFallsBackToChunkMean(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.chunks = [][]float64{{1, 3}, {3, 5}} // 均值 {2, 4}

	cache := newFakeCache()
	index := &fakeIndex{hits: nil}
	o := newTestOrchestrator(store, index, nil, WithResultCache(cache))

	_, err := o.RunMatch(context.Background(), "job-1", 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, cache.jobVectors["job-1"], "均值向量应回写缓存")
}

func TestRunMatch_FullEnsembleScheme(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}
	store.profiles["c1"] = goProfile("c1", 5)

	index := &fakeIndex{hits: []storage.CandidateHit{
		{CandidateID: "c1", Similarity: 0.9, EvidenceCount: 3},
	}}

	cfg := testMatchConfig()
	cfg.ActiveScheme = "full_ensemble"
	o := NewOrchestrator(store, index, nil, cfg, WithClock(func() time.Time { return fixedNow }))

	result, err := o.RunMatch(context.Background(), "job-1", 5)
	require.NoError(t, err)
	require.Len(t, result.Rankings, 1)

	// 技能70×0.40 + 经验100×0.25 + 相似度90×0.20 + 职位100×0.15 = 86
	assert.Equal(t, 86, result.Rankings[0].FinalScore, "full_ensemble方案的加权结果")
}

func TestRunMatch_QueryVectorFallsBackToEmbedder(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	// 既无整体向量也无分块向量，只能在线向量化

	cache := newFakeCache()
	index := &fakeIndex{hits: nil}
	embedder := &fakeEmbedder{vector: []float64{0.5, 0.6}}
	o := newTestOrchestrator(store, index, nil, WithResultCache(cache), WithQueryEmbedder(embedder))

	result, err := o.RunMatch(context.Background(), "job-1", 5)
	require.NoError(t, err)

	require.Equal(t, 1, embedder.calls, "应调用一次在线向量化")
	assert.Contains(t, embedder.gotText, "Go后端开发工程师", "向量化文本应包含岗位标题")
	assert.Equal(t, []float64{0.5, 0.6}, cache.jobVectors["job-1"], "在线生成的向量应回写缓存")
	// 召回为空，最终仍是空结果，但原因是无候选人而非无向量
	assert.Equal(t, EmptyReasonNoCandidates, result.EmptyReason)
}

func TestRunMatch_EmbedderFailureYieldsEmptyResult(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()

	index := &fakeIndex{hits: nil}
	embedder := &fakeEmbedder{err: errors.New("embedding接口超时")}
	o := newTestOrchestrator(store, index, nil, WithQueryEmbedder(embedder))

	result, err := o.RunMatch(context.Background(), "job-1", 5)
	require.NoError(t, err)
	assert.Equal(t, EmptyReasonNoQueryVector, result.EmptyReason, "向量化失败应降级为空匹配结果")
}

func TestRunMatch_DeepScoreReplacesCoarse(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}
	store.profiles["c1"] = goProfile("c1", 5)
	store.profiles["c2"] = goProfile("c2", 4)
	store.profiles["c3"] = goProfile("c3", 6)

	index := &fakeIndex{hits: []storage.CandidateHit{
		{CandidateID: "c1", Similarity: 0.9, EvidenceCount: 3},
		{CandidateID: "c2", Similarity: 0.8, EvidenceCount: 2},
		{CandidateID: "c3", Similarity: 0.7, EvidenceCount: 1},
	}}

	// c2深度分最高，c1在响应中缺席，c3被深度降权
	eval := &fakeEvaluator{evaluations: []types.DeepEvaluation{
		{CandidateID: "c2", Score: 95, Verdict: "strong_match", Strengths: "高度匹配", Recommendation: "推进面试"},
		{CandidateID: "c3", Score: 20, Verdict: "no_match", Concerns: "方向不符"},
	}}

	publisher := &fakePublisher{}
	cache := newFakeCache()
	o := newTestOrchestrator(store, index, eval,
		WithResultCache(cache), WithEventPublisher(publisher))

	result, err := o.RunMatch(context.Background(), "job-1", 2)
	require.NoError(t, err)

	assert.True(t, result.DeepStageRan)
	assert.Equal(t, 3, result.TotalCandidates)
	assert.Equal(t, 1, eval.calls, "整池只应评估一次")
	require.Len(t, result.Rankings, 2, "应按topN截断")

	// 深度分替换粗排分：c2以95分登顶
	assert.Equal(t, "c2", result.Rankings[0].CandidateID)
	assert.Equal(t, 95, result.Rankings[0].FinalScore)
	assert.True(t, result.Rankings[0].DeepEvaluated)
	assert.Equal(t, "strong_match", result.Rankings[0].Verdict)
	require.NotNil(t, result.Rankings[0].Components.DeepEval)
	assert.InDelta(t, 95.0, *result.Rankings[0].Components.DeepEval, 0.001)

	// 响应中缺席的c1保留粗排分与not_evaluated判定
	assert.Equal(t, "c1", result.Rankings[1].CandidateID)
	assert.False(t, result.Rankings[1].DeepEvaluated)
	assert.Equal(t, types.VerdictNotEvaluated, result.Rankings[1].Verdict)
	assert.Nil(t, result.Rankings[1].Components.DeepEval)

	// 事件与缓存
	require.Len(t, publisher.events, 1)
	assert.Equal(t, result.RunID, publisher.events[0].RunID)
	assert.True(t, publisher.events[0].DeepStageRan)
	assert.Len(t, cache.cachedRuns[result.RunID], 3, "缓存应保存全量排序以支持分页")

	// 状态机走完整路径
	assert.Equal(t, []string{
		StateRetrieving, StateScoring, StateSelecting,
		StateDeepEvaluating, StateFinalizing, StateDone,
	}, store.statuses)
}

func TestRunMatch_DeepFailureFallsBackToCoarse(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}
	store.profiles["c1"] = goProfile("c1", 5)
	store.profiles["c2"] = goProfile("c2", 4)

	index := &fakeIndex{hits: []storage.CandidateHit{
		{CandidateID: "c1", Similarity: 0.9, EvidenceCount: 2},
		{CandidateID: "c2", Similarity: 0.5, EvidenceCount: 1},
	}}
	eval := &fakeEvaluator{err: fmt.Errorf("评估超时")}

	o := newTestOrchestrator(store, index, eval)
	result, err := o.RunMatch(context.Background(), "job-1", 5)

	require.NoError(t, err, "深度评估失败非致命")
	assert.False(t, result.DeepStageRan)
	require.Len(t, result.Rankings, 2)
	// 全部候选人保留粗排结果，相似度高的在前
	assert.Equal(t, "c1", result.Rankings[0].CandidateID)
	assert.Equal(t, types.VerdictNotEvaluated, result.Rankings[0].Verdict)
	assert.Greater(t, result.Rankings[0].FinalScore, result.Rankings[1].FinalScore)
}

func TestRunMatch_MissingProfilesAreSkipped(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}
	store.profiles["c1"] = goProfile("c1", 5)
	// c2 档案缺失

	index := &fakeIndex{hits: []storage.CandidateHit{
		{CandidateID: "c1", Similarity: 0.9, EvidenceCount: 2},
		{CandidateID: "c2", Similarity: 0.8, EvidenceCount: 1},
	}}
	eval := &fakeEvaluator{}

	o := newTestOrchestrator(store, index, eval)
	result, err := o.RunMatch(context.Background(), "job-1", 5)

	require.NoError(t, err)
	require.Len(t, result.Rankings, 1, "缺档案的候选人应被跳过而不是中止运行")
	assert.Equal(t, "c1", result.Rankings[0].CandidateID)
}

func TestRunMatch_CanceledBeforeDeepEvaluation(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}
	store.profiles["c1"] = goProfile("c1", 5)

	index := &fakeIndex{hits: []storage.CandidateHit{
		{CandidateID: "c1", Similarity: 0.9, EvidenceCount: 1},
	}}
	eval := &fakeEvaluator{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(store, index, eval)
	_, err := o.RunMatch(ctx, "job-1", 5)

	require.Error(t, err, "已取消的运行不应发起深度评估调用")
	assert.Equal(t, 0, eval.calls)
}

func TestPoolPayloadUsesProfileSummary(t *testing.T) {
	store := newFakeStore()
	store.requirement = goRequirement()
	store.jobVector = []float64{0.1, 0.2}
	store.profiles["c1"] = goProfile("c1", 5)

	index := &fakeIndex{hits: []storage.CandidateHit{
		{CandidateID: "c1", Similarity: 0.9, EvidenceCount: 1},
	}}
	eval := &fakeEvaluator{}

	o := newTestOrchestrator(store, index, eval)
	_, err := o.RunMatch(context.Background(), "job-1", 5)
	require.NoError(t, err)

	require.Len(t, eval.gotPool, 1)
	assert.Equal(t, "c1", eval.gotPool[0].CandidateID)
	assert.Contains(t, eval.gotPool[0].ProfileText, "候选人c1", "应使用结构化摘要作为评估材料")
	assert.Greater(t, eval.gotPool[0].CoarseScore, 0)
}

func TestMeanVector(t *testing.T) {
	assert.Nil(t, meanVector(nil))
	assert.Nil(t, meanVector([][]float64{{1, 2}, {1}}), "维度不一致应放弃")
	assert.Equal(t, []float64{2, 4}, meanVector([][]float64{{1, 3}, {3, 5}}))
}

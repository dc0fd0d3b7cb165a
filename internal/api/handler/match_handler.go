package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/gorm"
)

// RunMatchRequest 发起匹配的请求体
type RunMatchRequest struct {
	TopN int `json:"top_n"`
}

// MatchStatusResponse 匹配运行状态
type MatchStatusResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// PaginatedMatchResponse 分页的匹配结果
type PaginatedMatchResponse struct {
	JobID      string                 `json:"job_id"`
	RunID      string                 `json:"run_id"`
	Cursor     int64                  `json:"cursor"`
	NextCursor int64                  `json:"next_cursor"`
	Size       int64                  `json:"size"`
	TotalCount int64                  `json:"total_count"`
	Rankings   []types.ScoreBreakdown `json:"rankings"`
}

// MatchHandler 处理人岗匹配相关请求
type MatchHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	orchestrator *matcher.Orchestrator
	logger       *log.Logger
}

// NewMatchHandler 创建匹配处理器
func NewMatchHandler(cfg *config.Config, storage *storage.Storage, orchestrator *matcher.Orchestrator) *MatchHandler {
	return &MatchHandler{
		cfg:          cfg,
		storage:      storage,
		orchestrator: orchestrator,
		logger:       log.New(os.Stdout, "[MatchHandler] ", log.LstdFlags),
	}
}

// HandleRunMatch 对指定岗位发起一次匹配。
// 同一岗位同时只允许一次匹配在运行，用Redis分布式锁保护；
// 锁被占用时返回409，调用方应轮询状态或稍后重试。
func (h *MatchHandler) HandleRunMatch(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "job_id不能为空"})
		return
	}

	var req RunMatchRequest
	if body := c.Request.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "请求体解析失败"})
			return
		}
	}
	topN := req.TopN
	if topN <= 0 {
		topN = h.cfg.Match.DefaultTopN
	}

	// 岗位级分布式锁，防止同一岗位并发重复匹配
	lockKey := fmt.Sprintf(constants.KeyMatchLock, jobID)
	lockTTL := config.GetDuration(h.cfg.Match.RunLockTTL, 5*time.Minute)
	lockValue, err := h.storage.Redis.AcquireLock(ctx, lockKey, lockTTL)
	if err != nil {
		h.logger.Printf("获取匹配锁失败, jobID: %s, err: %v", jobID, err)
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": "获取匹配锁失败"})
		return
	}
	if lockValue == "" {
		c.JSON(consts.StatusConflict, map[string]interface{}{
			"error": "该岗位已有匹配在运行，请稍后重试",
		})
		return
	}
	defer func() {
		if _, err := h.storage.Redis.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			h.logger.Printf("释放匹配锁失败, jobID: %s, err: %v", jobID, err)
		}
	}()

	h.logger.Printf("开始匹配, jobID: %s, topN: %d", jobID, topN)

	result, err := h.orchestrator.RunMatch(ctx, jobID, topN)
	if err != nil {
		if errors.Is(err, matcher.ErrUnknownRequirement) {
			c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "岗位不存在"})
			return
		}
		h.logger.Printf("匹配运行失败, jobID: %s, err: %v", jobID, err)
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": "匹配运行失败"})
		return
	}

	c.JSON(consts.StatusOK, result)
}

// HandleMatchStatus 查询一次匹配运行的状态。
// 先查Redis的状态缓存，过期后回退MySQL的运行记录。
func (h *MatchHandler) HandleMatchStatus(ctx context.Context, c *app.RequestContext) {
	runID := c.Param("run_id")
	if runID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "run_id不能为空"})
		return
	}

	status, err := h.storage.Redis.GetRunStatus(ctx, runID)
	if err == nil && status != "" {
		c.JSON(consts.StatusOK, MatchStatusResponse{RunID: runID, Status: status})
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Printf("查询运行状态缓存失败, runID: %s, err: %v", runID, err)
	}

	run, err := h.storage.MySQL.GetMatchRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "匹配运行不存在"})
			return
		}
		h.logger.Printf("查询运行记录失败, runID: %s, err: %v", runID, err)
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": "查询运行状态失败"})
		return
	}

	c.JSON(consts.StatusOK, MatchStatusResponse{RunID: runID, Status: run.Status})
}

// HandlePaginatedMatchResults 分页拉取一次匹配运行的排序结果。
// 热路径走Redis ZSET缓存，缓存过期后回退MySQL落库的全量结果。
func (h *MatchHandler) HandlePaginatedMatchResults(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	runID := c.Param("run_id")
	if jobID == "" || runID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "job_id和run_id不能为空"})
		return
	}

	cursor := int64(0)
	size := int64(10)
	if val, err := strconv.ParseInt(c.Query("cursor"), 10, 64); err == nil && val >= 0 {
		cursor = val
	}
	if val, err := strconv.ParseInt(c.Query("size"), 10, 64); err == nil && val > 0 && val <= 100 {
		size = val
	}

	rankings, totalCount, err := h.storage.Redis.GetCachedMatchRankings(ctx, jobID, runID, cursor, size)
	if err != nil {
		h.logger.Printf("读匹配结果缓存失败, runID: %s, err: %v", runID, err)
	}

	// 缓存未命中或已过期，回退MySQL落库结果
	if totalCount == 0 {
		rankings, totalCount, err = h.fetchRankingsFromDB(ctx, runID, cursor, size)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "匹配运行不存在"})
				return
			}
			h.logger.Printf("读落库匹配结果失败, runID: %s, err: %v", runID, err)
			c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": "获取匹配结果失败"})
			return
		}
	}

	nextCursor := cursor + size
	if nextCursor >= totalCount {
		nextCursor = cursor
	}

	if rankings == nil {
		rankings = []types.ScoreBreakdown{}
	}

	c.JSON(consts.StatusOK, PaginatedMatchResponse{
		JobID:      jobID,
		RunID:      runID,
		Cursor:     cursor,
		NextCursor: nextCursor,
		Size:       size,
		TotalCount: totalCount,
		Rankings:   rankings,
	})
}

// fetchRankingsFromDB 从MySQL落库的结果JSON取一页
func (h *MatchHandler) fetchRankingsFromDB(ctx context.Context, runID string, cursor, size int64) ([]types.ScoreBreakdown, int64, error) {
	run, err := h.storage.MySQL.GetMatchRun(ctx, runID)
	if err != nil {
		return nil, 0, err
	}
	if len(run.ResultJSON) == 0 {
		return []types.ScoreBreakdown{}, 0, nil
	}

	var result types.MatchResult
	if err := json.Unmarshal(run.ResultJSON, &result); err != nil {
		return nil, 0, fmt.Errorf("解析落库匹配结果失败: %w", err)
	}

	total := int64(len(result.Rankings))
	if cursor >= total {
		return []types.ScoreBreakdown{}, total, nil
	}
	end := cursor + size
	if end > total {
		end = total
	}
	return result.Rankings[cursor:end], total, nil
}

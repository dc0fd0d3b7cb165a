package router

import (
	"context"

	"talent-match-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, matchHandler *handler.MatchHandler) {
	api := h.Group("/api/v1")

	// 对岗位发起一次匹配
	api.POST("/jobs/:job_id/match", matchHandler.HandleRunMatch)

	// 查询匹配运行状态
	api.GET("/match/runs/:run_id/status", matchHandler.HandleMatchStatus)

	// 分页拉取匹配结果
	api.GET("/jobs/:job_id/match/:run_id/results", matchHandler.HandlePaginatedMatchResults)

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

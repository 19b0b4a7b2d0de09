package api

import (
	"errors"
	"net/http"

	"devplan/internal/aggregate"
	"devplan/internal/model"
	"devplan/internal/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type dashboardSummary struct {
	aggregate.Completion
	CurrentMonthPlan *model.MonthlyPlan `json:"current_month_plan"`
	WeeklyLogsCount  int                `json:"weekly_logs_count"`
	Today            model.Date         `json:"today"`
}

// handleDashboardSummary 汇总本月任务完成度、当月计划与本月周志数量。
//
// 三次读取互不依赖，并发执行；任一失败即取消其余请求。
//
// GET /api/dashboard/summary
func (s *Server) handleDashboardSummary(c *gin.Context) {
	userID := getUserID(c)
	today := s.today()
	monthStart := today.MonthStart()

	var (
		tasks []model.Task
		plan  *model.MonthlyPlan
		logs  []model.WeeklyLog
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		tasks, err = s.repos.Tasks.Find(ctx, userID, store.TaskFilter{From: monthStart})
		return err
	})
	g.Go(func() error {
		p, err := s.repos.Plans.ForMonth(ctx, userID, monthStart)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		plan = &p
		return nil
	})
	g.Go(func() error {
		var err error
		logs, err = s.repos.Weekly.Since(ctx, userID, monthStart)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondError(c, "dashboard summary", err)
		return
	}

	c.JSON(http.StatusOK, dashboardSummary{
		Completion:       aggregate.CompletionOf(tasks),
		CurrentMonthPlan: plan,
		WeeklyLogsCount:  len(logs),
		Today:            today,
	})
}

// handleTasksByDay 按开始日期统计最近 N 天（含今天）的任务数。
//
// GET /api/dashboard/tasks-by-day?days=N
func (s *Server) handleTasksByDay(c *gin.Context) {
	days, ok := queryInt(c, "days", s.cfg.App.DailyWindowDays)
	if !ok {
		return
	}
	today := s.today()
	tasks, err := s.repos.Tasks.Find(c.Request.Context(), getUserID(c), store.TaskFilter{From: today.AddDays(-days)})
	if err != nil {
		s.respondError(c, "tasks by day", err)
		return
	}
	c.JSON(http.StatusOK, aggregate.DailyBuckets(tasks, today, days))
}

type updateConfigRequest struct {
	Classifications []string `json:"classifications"`
	Categories      []string `json:"categories"`
}

// handleGetConfig 返回用户的分类配置，首次访问时创建默认值。
func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.repos.Configs.Load(c.Request.Context(), getUserID(c))
	if err != nil {
		s.respondError(c, "load config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// handleUpdateConfig 替换请求中出现的列表。
//
// PUT /api/config
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := s.repos.Configs.Save(c.Request.Context(), getUserID(c), req.Classifications, req.Categories)
	if err != nil {
		s.respondError(c, "save config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// handleListCompetencies 返回公共能力目录，无需登录。
func (s *Server) handleListCompetencies(c *gin.Context) {
	entries, err := s.repos.Catalog.List(c.Request.Context())
	if err != nil {
		s.respondError(c, "list competencies", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

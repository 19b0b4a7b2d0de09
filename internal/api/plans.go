package api

import (
	"net/http"

	"devplan/internal/aggregate"
	"devplan/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

const defaultPlanListLimit = 12

type planRequest struct {
	Month        model.Date         `json:"month"`
	Objectives   string             `json:"objectives"`
	Strengths    []string           `json:"strengths"`
	Weaknesses   []string           `json:"weaknesses"`
	Improvements string             `json:"improvements"`
	SupportTools []string           `json:"support_tools"`
	Competencies []model.Competency `json:"competencies"`
}

type updatePlanRequest struct {
	Month        *model.Date         `json:"month"`
	Objectives   *string             `json:"objectives"`
	Strengths    *[]string           `json:"strengths"`
	Weaknesses   *[]string           `json:"weaknesses"`
	Improvements *string             `json:"improvements"`
	SupportTools *[]string           `json:"support_tools"`
	Competencies *[]model.Competency `json:"competencies"`
}

func (r updatePlanRequest) fields() map[string]any {
	f := map[string]any{}
	setIf(f, "month", r.Month)
	setIf(f, "objectives", r.Objectives)
	setIf(f, "improvements", r.Improvements)
	setList(f, "strengths", r.Strengths)
	setList(f, "weaknesses", r.Weaknesses)
	setList(f, "support_tools", r.SupportTools)
	if r.Competencies != nil {
		f["competencies"] = *r.Competencies
	}
	return f
}

// setList 把字符串列表包装成 JSON 列，保证写入为数组而非 null。
func setList(f map[string]any, key string, v *[]string) {
	if v == nil {
		return
	}
	list := datatypes.JSONSlice[string]{}
	if *v != nil {
		list = datatypes.JSONSlice[string](*v)
	}
	f[key] = list
}

// handleCreatePlan 创建月度计划，同一月份只能有一份。
//
// POST /api/monthly/plans
func (s *Server) handleCreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan := model.MonthlyPlan{
		Month:        req.Month,
		Objectives:   req.Objectives,
		Strengths:    req.Strengths,
		Weaknesses:   req.Weaknesses,
		Improvements: req.Improvements,
		SupportTools: req.SupportTools,
		Competencies: req.Competencies,
	}
	if err := s.repos.Plans.Create(c.Request.Context(), getUserID(c), &plan); err != nil {
		s.respondError(c, "create plan", err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// handleListPlans 返回最近的月度计划，?limit 默认 12。
func (s *Server) handleListPlans(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultPlanListLimit)
	if !ok {
		return
	}
	plans, err := s.repos.Plans.Recent(c.Request.Context(), getUserID(c), limit)
	if err != nil {
		s.respondError(c, "list plans", err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (s *Server) handleGetPlan(c *gin.Context) {
	plan, err := s.repos.Plans.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, "get plan", err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleUpdatePlan(c *gin.Context) {
	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.repos.Plans.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.fields())
	if err != nil {
		s.respondError(c, "update plan", err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleDeletePlan(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repos.Plans.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		s.respondError(c, "delete plan", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handlePlanComparison 比较计划开始与结束时的能力进度。
//
// GET /api/monthly/plans/:id/comparison
func (s *Server) handlePlanComparison(c *gin.Context) {
	ctx := c.Request.Context()
	userID := getUserID(c)
	plan, err := s.repos.Plans.Get(ctx, userID, c.Param("id"))
	if err != nil {
		s.respondError(c, "compare plan", err)
		return
	}
	review, err := s.repos.Reviews.ReviewFor(ctx, userID, plan.ID)
	if err != nil {
		s.respondError(c, "compare plan", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":       plan,
		"review":     review,
		"comparison": aggregate.ComparePlan(plan, review),
	})
}

// handleEvolution 返回最近 N 个月每项能力的进度序列，?months 默认取配置。
func (s *Server) handleEvolution(c *gin.Context) {
	months, ok := queryInt(c, "months", s.cfg.App.EvolutionMonths)
	if !ok {
		return
	}
	plans, err := s.repos.Plans.Recent(c.Request.Context(), getUserID(c), months)
	if err != nil {
		s.respondError(c, "competency evolution", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"months":       months,
		"competencies": aggregate.CompetencyEvolution(plans, months),
	})
}

type reviewRequest struct {
	MonthlyPlanID   string   `json:"monthly_plan_id" binding:"required"`
	Improved        string   `json:"improved"`
	StillToImprove  string   `json:"still_to_improve"`
	SkillsDeveloped []string `json:"skills_developed"`
	NextMonthGoals  []string `json:"next_month_goals"`
	MemorableMoment string   `json:"memorable_moment"`
}

// handleCreateReview 为月度计划创建复盘。
//
// POST /api/monthly/reviews
func (s *Server) handleCreateReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	review := model.MonthlyReview{
		MonthlyPlanID:   req.MonthlyPlanID,
		Improved:        req.Improved,
		StillToImprove:  req.StillToImprove,
		SkillsDeveloped: req.SkillsDeveloped,
		NextMonthGoals:  req.NextMonthGoals,
		MemorableMoment: req.MemorableMoment,
	}
	if err := s.repos.Reviews.Create(c.Request.Context(), getUserID(c), &review); err != nil {
		s.respondError(c, "create review", err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// handleGetReview 返回计划的最新复盘。
func (s *Server) handleGetReview(c *gin.Context) {
	review, err := s.repos.Reviews.ForPlan(c.Request.Context(), getUserID(c), c.Param("plan_id"))
	if err != nil {
		s.respondError(c, "get review", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

package api

import (
	"net/http"

	"devplan/internal/model"

	"github.com/gin-gonic/gin"
)

const defaultWeeklyListLimit = 20

type weeklyLogRequest struct {
	WeekStart         model.Date `json:"week_start"`
	WeekEnd           model.Date `json:"week_end"`
	Achievements      []string   `json:"achievements"`
	Challenges        []string   `json:"challenges"`
	Learnings         string     `json:"learnings"`
	Reflections       string     `json:"reflections"`
	EnergyLevel       *int       `json:"energy_level"`
	SatisfactionLevel *int       `json:"satisfaction_level"`
}

type updateWeeklyLogRequest struct {
	WeekStart         *model.Date `json:"week_start"`
	WeekEnd           *model.Date `json:"week_end"`
	Achievements      *[]string   `json:"achievements"`
	Challenges        *[]string   `json:"challenges"`
	Learnings         *string     `json:"learnings"`
	Reflections       *string     `json:"reflections"`
	EnergyLevel       *int        `json:"energy_level"`
	SatisfactionLevel *int        `json:"satisfaction_level"`
}

func (r updateWeeklyLogRequest) fields() map[string]any {
	f := map[string]any{}
	setIf(f, "week_start", r.WeekStart)
	setIf(f, "week_end", r.WeekEnd)
	setIf(f, "learnings", r.Learnings)
	setIf(f, "reflections", r.Reflections)
	setList(f, "achievements", r.Achievements)
	setList(f, "challenges", r.Challenges)
	// 仓储层按 *int 校验 1-5 区间
	if r.EnergyLevel != nil {
		f["energy_level"] = r.EnergyLevel
	}
	if r.SatisfactionLevel != nil {
		f["satisfaction_level"] = r.SatisfactionLevel
	}
	return f
}

// handleCreateWeeklyLog 创建每周日志，week_end 缺省为 week_start 后 6 天。
//
// POST /api/weekly/logs
func (s *Server) handleCreateWeeklyLog(c *gin.Context) {
	var req weeklyLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log := model.WeeklyLog{
		WeekStart:         req.WeekStart,
		WeekEnd:           req.WeekEnd,
		Achievements:      req.Achievements,
		Challenges:        req.Challenges,
		Learnings:         req.Learnings,
		Reflections:       req.Reflections,
		EnergyLevel:       req.EnergyLevel,
		SatisfactionLevel: req.SatisfactionLevel,
	}
	if err := s.repos.Weekly.Create(c.Request.Context(), getUserID(c), &log); err != nil {
		s.respondError(c, "create weekly log", err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

// handleListWeeklyLogs 返回最近的每周日志，?limit 默认 20。
func (s *Server) handleListWeeklyLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultWeeklyListLimit)
	if !ok {
		return
	}
	logs, err := s.repos.Weekly.Recent(c.Request.Context(), getUserID(c), limit)
	if err != nil {
		s.respondError(c, "list weekly logs", err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleGetWeeklyLog(c *gin.Context) {
	log, err := s.repos.Weekly.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, "get weekly log", err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Server) handleUpdateWeeklyLog(c *gin.Context) {
	var req updateWeeklyLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := s.repos.Weekly.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.fields())
	if err != nil {
		s.respondError(c, "update weekly log", err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Server) handleDeleteWeeklyLog(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repos.Weekly.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		s.respondError(c, "delete weekly log", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type activityRequest struct {
	Title           string     `json:"title" binding:"required"`
	Description     string     `json:"description"`
	ActivityDate    model.Date `json:"activity_date"`
	DurationMinutes int        `json:"duration_minutes" binding:"gte=0"`
	Category        string     `json:"category"`
}

type updateActivityRequest struct {
	Title           *string     `json:"title"`
	Description     *string     `json:"description"`
	ActivityDate    *model.Date `json:"activity_date"`
	DurationMinutes *int        `json:"duration_minutes" binding:"omitempty,gte=0"`
	Category        *string     `json:"category"`
}

func (r updateActivityRequest) fields() map[string]any {
	f := map[string]any{}
	setIf(f, "title", r.Title)
	setIf(f, "description", r.Description)
	setIf(f, "activity_date", r.ActivityDate)
	setIf(f, "duration_minutes", r.DurationMinutes)
	setIf(f, "category", r.Category)
	return f
}

// handleCreateActivity 记录一次活动，activity_date 缺省为今天。
func (s *Server) handleCreateActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	activity := model.Activity{
		Title:           req.Title,
		Description:     req.Description,
		ActivityDate:    req.ActivityDate,
		DurationMinutes: req.DurationMinutes,
		Category:        req.Category,
	}
	if activity.ActivityDate.IsZero() {
		activity.ActivityDate = s.today()
	}
	if err := s.repos.Activities.Create(c.Request.Context(), getUserID(c), &activity); err != nil {
		s.respondError(c, "create activity", err)
		return
	}
	c.JSON(http.StatusCreated, activity)
}

// handleListActivities 支持 from / to / category 过滤。
func (s *Server) handleListActivities(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	activities, err := s.repos.Activities.Find(c.Request.Context(), getUserID(c), from, to, c.Query("category"))
	if err != nil {
		s.respondError(c, "list activities", err)
		return
	}
	c.JSON(http.StatusOK, activities)
}

func (s *Server) handleGetActivity(c *gin.Context) {
	activity, err := s.repos.Activities.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, "get activity", err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

func (s *Server) handleUpdateActivity(c *gin.Context) {
	var req updateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	activity, err := s.repos.Activities.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.fields())
	if err != nil {
		s.respondError(c, "update activity", err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

func (s *Server) handleDeleteActivity(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repos.Activities.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		s.respondError(c, "delete activity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

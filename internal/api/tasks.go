package api

import (
	"log/slog"
	"net/http"

	"devplan/internal/model"
	"devplan/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// createTaskRequest 创建任务的请求参数。
type createTaskRequest struct {
	Title          string           `json:"title" binding:"required"`
	Description    string           `json:"description"`
	Category       string           `json:"category"`
	Classification string           `json:"classification"`
	Priority       string           `json:"priority"`
	Status         model.TaskStatus `json:"status"`
	Progress       int              `json:"progress"`
	StartDate      model.Date       `json:"start_date"`
	EndDate        model.Date       `json:"end_date"`
	EstimatedMins  *int             `json:"estimated_minutes"`
	ActualMins     *int             `json:"actual_minutes"`
	SortOrder      int              `json:"sort_order"`
	Tags           []string         `json:"tags"`
	Notes          string           `json:"notes"`
	Kind           model.TaskKind   `json:"kind"`
	ParentID       *string          `json:"parent_id"`
}

func (r createTaskRequest) task() model.Task {
	return model.Task{
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		Classification: r.Classification,
		Priority:       r.Priority,
		Status:         r.Status,
		Progress:       r.Progress,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		EstimatedMins:  r.EstimatedMins,
		ActualMins:     r.ActualMins,
		SortOrder:      r.SortOrder,
		Tags:           datatypes.JSONSlice[string](r.Tags),
		Notes:          r.Notes,
		Kind:           r.Kind,
		ParentID:       r.ParentID,
	}
}

// updateTaskRequest 只包含需要修改的字段；parent_id 传空字符串表示解除父任务。
type updateTaskRequest struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	Category       *string           `json:"category"`
	Classification *string           `json:"classification"`
	Priority       *string           `json:"priority"`
	Status         *model.TaskStatus `json:"status"`
	Progress       *int              `json:"progress"`
	StartDate      *model.Date       `json:"start_date"`
	EndDate        *model.Date       `json:"end_date"`
	EstimatedMins  *int              `json:"estimated_minutes"`
	ActualMins     *int              `json:"actual_minutes"`
	SortOrder      *int              `json:"sort_order"`
	Tags           *[]string         `json:"tags"`
	Notes          *string           `json:"notes"`
	Kind           *model.TaskKind   `json:"kind"`
	ParentID       *string           `json:"parent_id"`
}

func (r updateTaskRequest) fields() map[string]any {
	f := map[string]any{}
	setIf(f, "title", r.Title)
	setIf(f, "description", r.Description)
	setIf(f, "category", r.Category)
	setIf(f, "classification", r.Classification)
	setIf(f, "priority", r.Priority)
	setIf(f, "progress", r.Progress)
	setIf(f, "start_date", r.StartDate)
	setIf(f, "end_date", r.EndDate)
	setIf(f, "sort_order", r.SortOrder)
	setIf(f, "notes", r.Notes)
	if r.Status != nil {
		f["status"] = *r.Status
	}
	if r.Kind != nil {
		f["kind"] = *r.Kind
	}
	if r.EstimatedMins != nil {
		f["estimated_minutes"] = *r.EstimatedMins
	}
	if r.ActualMins != nil {
		f["actual_minutes"] = *r.ActualMins
	}
	if r.Tags != nil {
		f["tags"] = datatypes.JSONSlice[string](*r.Tags)
	}
	if r.ParentID != nil {
		f["parent_id"] = *r.ParentID
	}
	return f
}

// setIf 在指针非 nil 时写入解引用后的值。
func setIf[T any](f map[string]any, key string, v *T) {
	if v != nil {
		f[key] = *v
	}
}

// handleCreateTask 创建任务。
//
// POST /api/tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := getUserID(c)
	task := req.task()
	if err := s.repos.Tasks.Create(c.Request.Context(), userID, &task); err != nil {
		s.respondError(c, "create task", err)
		return
	}
	s.logger.Info("task created", slog.String("user_id", userID), slog.String("task_id", task.ID))
	c.JSON(http.StatusCreated, task)
}

// handleListTasks 返回任务列表，支持 date / from / status / category / parent_id / kind 过滤。
func (s *Server) handleListTasks(c *gin.Context) {
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	filter := store.TaskFilter{
		Date:     date,
		From:     from,
		Status:   model.TaskStatus(c.Query("status")),
		Category: c.Query("category"),
		ParentID: c.Query("parent_id"),
		Kind:     model.TaskKind(c.Query("kind")),
	}
	tasks, err := s.repos.Tasks.Find(c.Request.Context(), getUserID(c), filter)
	if err != nil {
		s.respondError(c, "list tasks", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.repos.Tasks.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, "get task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleUpdateTask 更新任务，所有字段在一次网关调用中写入。
//
// PUT /api/tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.repos.Tasks.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.fields())
	if err != nil {
		s.respondError(c, "update task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repos.Tasks.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		s.respondError(c, "delete task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleListSubtasks 返回宏任务的子任务。
func (s *Server) handleListSubtasks(c *gin.Context) {
	ctx := c.Request.Context()
	userID := getUserID(c)
	if _, err := s.repos.Tasks.Get(ctx, userID, c.Param("id")); err != nil {
		s.respondError(c, "list subtasks", err)
		return
	}
	tasks, err := s.repos.Tasks.Subtasks(ctx, userID, c.Param("id"))
	if err != nil {
		s.respondError(c, "list subtasks", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// handleRollupTask 用子任务重新计算宏任务的进度与起止日期。
//
// POST /api/tasks/:id/rollup
func (s *Server) handleRollupTask(c *gin.Context) {
	task, err := s.repos.Tasks.Rollup(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, "rollup task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

package api

import (
	"net/http"
	"time"

	"devplan/internal/aggregate"
	"devplan/internal/model"

	"github.com/gin-gonic/gin"
)

type financeRecordRequest struct {
	Type        model.FinanceType `json:"type" binding:"required"`
	AmountCents int64             `json:"amount_cents"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	RecordDate  model.Date        `json:"record_date"`
}

type updateFinanceRecordRequest struct {
	Type        *model.FinanceType `json:"type"`
	AmountCents *int64             `json:"amount_cents"`
	Category    *string            `json:"category"`
	Description *string            `json:"description"`
	RecordDate  *model.Date        `json:"record_date"`
}

func (r updateFinanceRecordRequest) fields() map[string]any {
	f := map[string]any{}
	setIf(f, "amount_cents", r.AmountCents)
	setIf(f, "category", r.Category)
	setIf(f, "description", r.Description)
	setIf(f, "record_date", r.RecordDate)
	if r.Type != nil {
		f["type"] = *r.Type
	}
	return f
}

// parseMonth 校验 YYYY-MM 格式的 month 查询参数。
func parseMonth(c *gin.Context) (string, bool) {
	month := c.Query("month")
	if month == "" {
		return "", true
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return "", false
	}
	return month, true
}

// handleCreateFinanceRecord 新增收入/支出/债务记录，金额单位为分。
//
// POST /api/finance/records
func (s *Server) handleCreateFinanceRecord(c *gin.Context) {
	var req financeRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := model.FinancialRecord{
		Type:        req.Type,
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Description: req.Description,
		RecordDate:  req.RecordDate,
	}
	if rec.RecordDate.IsZero() {
		rec.RecordDate = s.today()
	}
	if err := s.repos.Finance.Create(c.Request.Context(), getUserID(c), &rec); err != nil {
		s.respondError(c, "create finance record", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// handleListFinanceRecords 支持 ?month=YYYY-MM 与 ?type 过滤。
func (s *Server) handleListFinanceRecords(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	records, err := s.repos.Finance.Find(c.Request.Context(), getUserID(c), month, model.FinanceType(c.Query("type")))
	if err != nil {
		s.respondError(c, "list finance records", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleUpdateFinanceRecord(c *gin.Context) {
	var req updateFinanceRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := s.repos.Finance.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.fields())
	if err != nil {
		s.respondError(c, "update finance record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteFinanceRecord(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repos.Finance.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		s.respondError(c, "delete finance record", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type financeCategoryRequest struct {
	Name string            `json:"name" binding:"required"`
	Type model.FinanceType `json:"type" binding:"required"`
}

func (s *Server) handleCreateFinanceCategory(c *gin.Context) {
	var req financeCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat := model.FinancialCategory{Name: req.Name, Type: req.Type}
	if err := s.repos.Categories.Create(c.Request.Context(), getUserID(c), &cat); err != nil {
		s.respondError(c, "create finance category", err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (s *Server) handleListFinanceCategories(c *gin.Context) {
	cats, err := s.repos.Categories.Find(c.Request.Context(), getUserID(c), model.FinanceType(c.Query("type")))
	if err != nil {
		s.respondError(c, "list finance categories", err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleDeleteFinanceCategory(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.repos.Categories.Delete(c.Request.Context(), getUserID(c), id); err != nil {
		s.respondError(c, "delete finance category", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleFinanceSummary 按类型与分类汇总某月金额，?month 缺省为当月。
//
// GET /api/finance/summary?month=YYYY-MM
func (s *Server) handleFinanceSummary(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	if month == "" {
		month = s.today().Format("2006-01")
	}
	records, err := s.repos.Finance.Find(c.Request.Context(), getUserID(c), month, "")
	if err != nil {
		s.respondError(c, "finance summary", err)
		return
	}
	c.JSON(http.StatusOK, aggregate.SummarizeFinance(records, month))
}

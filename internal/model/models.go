package model

import (
	"time"

	"gorm.io/datatypes"
)

// 表名与托管数据库中的表保持一致。
const (
	TableTasks               = "daily_tasks"
	TableMonthlyPlans        = "monthly_plans"
	TableMonthlyReviews      = "monthly_reviews"
	TableWeeklyLogs          = "weekly_logs"
	TableActivities          = "activities"
	TableFinancialRecords    = "financial_records"
	TableFinancialCategories = "financial_categories"
	TableUserConfigs         = "user_configs"
	TableEvidences           = "evidences"
	TableCompetencies        = "competencies"
	TableUserProfiles        = "user_profiles"
	TableUsers               = "users"
)

// Tables 返回业务依赖的全部表名（preflight 探测用）。
func Tables() []string {
	return []string{
		TableUserProfiles,
		TableTasks,
		TableMonthlyPlans,
		TableMonthlyReviews,
		TableWeeklyLogs,
		TableActivities,
		TableFinancialRecords,
		TableFinancialCategories,
		TableUserConfigs,
		TableEvidences,
		TableCompetencies,
	}
}

// Models 返回 GORM AutoMigrate 需要的模型列表。
func Models() []interface{} {
	return []interface{}{
		&User{}, &UserProfile{}, &Task{}, &MonthlyPlan{}, &MonthlyReview{}, &WeeklyLog{},
		&Activity{}, &FinancialRecord{}, &FinancialCategory{}, &UserConfig{},
		&Evidence{}, &CompetencyCatalogEntry{},
	}
}

// UniqueKeys 返回各表的唯一约束列，与 GORM 标签中的唯一索引一致（内存后端使用）。
func UniqueKeys() map[string][][]string {
	return map[string][][]string{
		TableMonthlyPlans:        {{"user_id", "month"}},
		TableFinancialCategories: {{"user_id", "name", "type"}},
		TableUserConfigs:         {{"user_id"}},
		TableCompetencies:        {{"name"}},
	}
}

// TaskStatus 任务状态。
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Valid 判断状态是否合法。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// TaskKind 区分普通任务与宏任务（进度与日期由子任务汇总）。
type TaskKind string

const (
	TaskLeaf  TaskKind = "leaf"
	TaskMacro TaskKind = "macro"
)

// Task 表示一条日常任务。
//
// 层级只有一层：leaf 任务可以挂在 macro 任务下，macro 任务本身不能再有父任务。
type Task struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title          string                      `gorm:"not null" json:"title"`
	Description    string                      `json:"description"`
	Category       string                      `gorm:"type:varchar(64)" json:"category"`
	Classification string                      `gorm:"type:varchar(64)" json:"classification"`
	Priority       string                      `gorm:"type:varchar(16);default:medium" json:"priority"`
	Status         TaskStatus                  `gorm:"type:varchar(16);default:pending;index" json:"status"`
	Progress       int                         `gorm:"default:0" json:"progress"` // 0-100
	StartDate      Date                        `gorm:"index" json:"start_date"`
	EndDate        Date                        `json:"end_date"`
	EstimatedMins  *int                        `gorm:"column:estimated_minutes" json:"estimated_minutes"`
	ActualMins     *int                        `gorm:"column:actual_minutes" json:"actual_minutes"`
	SortOrder      int                         `gorm:"default:0" json:"sort_order"`
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	Notes          string                      `json:"notes"`
	CompletedAt    *time.Time                  `json:"completed_at"`

	Kind     TaskKind `gorm:"type:varchar(8);default:leaf" json:"kind"`
	ParentID *string  `gorm:"type:varchar(36);index" json:"parent_id"`
}

func (Task) TableName() string { return TableTasks }

// IsMacro 是否为宏任务。
func (t Task) IsMacro() bool { return t.Kind == TaskMacro }

// Competency 是月度计划中的一项能力进度记录。
//
// Key 是跨月份追踪同一能力的稳定标识；旧数据没有 Key 时按名称匹配。
type Competency struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	StartProgress   int    `json:"start_progress"`
	CurrentProgress int    `json:"current_progress"`
	EndProgress     *int   `json:"end_progress"`
}

// MonthlyPlan 月度计划，每个用户每月最多一份。
type MonthlyPlan struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_plan_user_month,priority:1" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Month        Date                            `gorm:"not null;uniqueIndex:idx_plan_user_month,priority:2" json:"month"`
	Objectives   string                          `json:"objectives"`
	Strengths    datatypes.JSONSlice[string]     `json:"strengths"`
	Weaknesses   datatypes.JSONSlice[string]     `json:"weaknesses"`
	Improvements string                          `json:"improvements"`
	SupportTools datatypes.JSONSlice[string]     `json:"support_tools"`
	Competencies datatypes.JSONSlice[Competency] `json:"competencies"`
}

func (MonthlyPlan) TableName() string { return TableMonthlyPlans }

// MonthlyReview 月度复盘，关联一份月度计划。
type MonthlyReview struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MonthlyPlanID   string                      `gorm:"type:varchar(36);index;not null" json:"monthly_plan_id"`
	Improved        string                      `json:"improved"`
	StillToImprove  string                      `json:"still_to_improve"`
	SkillsDeveloped datatypes.JSONSlice[string] `json:"skills_developed"`
	NextMonthGoals  datatypes.JSONSlice[string] `json:"next_month_goals"`
	MemorableMoment string                      `json:"memorable_moment"`
}

func (MonthlyReview) TableName() string { return TableMonthlyReviews }

// WeeklyLog 每周日志。
type WeeklyLog struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WeekStart         Date                        `gorm:"not null;index" json:"week_start"`
	WeekEnd           Date                        `gorm:"not null" json:"week_end"`
	Achievements      datatypes.JSONSlice[string] `json:"achievements"`
	Challenges        datatypes.JSONSlice[string] `json:"challenges"`
	Learnings         string                      `json:"learnings"`
	Reflections       string                      `json:"reflections"`
	EnergyLevel       *int                        `json:"energy_level"`       // 1-5
	SatisfactionLevel *int                        `json:"satisfaction_level"` // 1-5
}

func (WeeklyLog) TableName() string { return TableWeeklyLogs }

// Activity 一次学习/工作活动记录。
type Activity struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title           string `gorm:"not null" json:"title"`
	Description     string `json:"description"`
	ActivityDate    Date   `gorm:"index" json:"activity_date"`
	DurationMinutes int    `json:"duration_minutes"`
	Category        string `gorm:"type:varchar(64)" json:"category"`
}

func (Activity) TableName() string { return TableActivities }

// FinanceType 财务记录类型。
type FinanceType string

const (
	FinanceIncome  FinanceType = "income"
	FinanceExpense FinanceType = "expense"
	FinanceDebt    FinanceType = "debt"
)

// Valid 判断类型是否合法。
func (t FinanceType) Valid() bool {
	switch t {
	case FinanceIncome, FinanceExpense, FinanceDebt:
		return true
	}
	return false
}

// FinancialRecord 一条收入/支出/债务记录。金额以分存储，避免浮点误差。
type FinancialRecord struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Type        FinanceType `gorm:"type:varchar(16);not null;index" json:"type"`
	AmountCents int64       `gorm:"not null" json:"amount_cents"`
	Category    string      `gorm:"type:varchar(64)" json:"category"`
	Description string      `json:"description"`
	RecordDate  Date        `gorm:"not null" json:"record_date"`
	Month       string      `gorm:"type:varchar(7);index" json:"month"` // YYYY-MM
}

func (FinancialRecord) TableName() string { return TableFinancialRecords }

// FinancialCategory 用户自定义的财务分类。
type FinancialCategory struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_fin_cat,priority:1" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_fin_cat,priority:2" json:"name"`
	Type FinanceType `gorm:"type:varchar(16);not null;uniqueIndex:idx_fin_cat,priority:3" json:"type"`
}

func (FinancialCategory) TableName() string { return TableFinancialCategories }

// UserConfig 用户的任务分类标签配置，首次读取时按默认值创建。
type UserConfig struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Classifications datatypes.JSONSlice[string] `json:"classifications"`
	Categories      datatypes.JSONSlice[string] `json:"categories"`
}

func (UserConfig) TableName() string { return TableUserConfigs }

// DefaultClassifications 新用户的默认分类。
func DefaultClassifications() []string {
	return []string{"urgent", "important", "routine"}
}

// DefaultCategories 新用户的默认类别。
func DefaultCategories() []string {
	return []string{"personal", "work", "study", "health"}
}

// Evidence 上传的佐证文件。
type Evidence struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TaskID      *string `gorm:"type:varchar(36);index" json:"task_id"`
	FileURL     string  `gorm:"not null" json:"file_url"`
	FileName    string  `json:"file_name"`
	FileKind    string  `gorm:"type:varchar(16)" json:"file_kind"` // image / pdf / document / other
	MimeType    string  `gorm:"type:varchar(128)" json:"mime_type"`
	SizeKB      int64   `json:"size_kb"`
	Description string  `json:"description"`
	StoragePath string  `json:"storage_path"`
	ContentHash string  `gorm:"type:varchar(64)" json:"content_hash"`
}

func (Evidence) TableName() string { return TableEvidences }

// CompetencyCatalogEntry 公共能力目录。
type CompetencyCatalogEntry struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
}

func (CompetencyCatalogEntry) TableName() string { return TableCompetencies }

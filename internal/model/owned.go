package model

import "time"

// Owned 由所有按用户隔离的实体实现，创建时写入主键、所属用户与时间戳。
type Owned interface {
	Assign(id, userID string, now time.Time)
}

func (t *Task) Assign(id, userID string, now time.Time) {
	t.ID, t.UserID, t.CreatedAt, t.UpdatedAt = id, userID, now, now
}

func (p *MonthlyPlan) Assign(id, userID string, now time.Time) {
	p.ID, p.UserID, p.CreatedAt, p.UpdatedAt = id, userID, now, now
}

func (r *MonthlyReview) Assign(id, userID string, now time.Time) {
	r.ID, r.UserID, r.CreatedAt, r.UpdatedAt = id, userID, now, now
}

func (w *WeeklyLog) Assign(id, userID string, now time.Time) {
	w.ID, w.UserID, w.CreatedAt, w.UpdatedAt = id, userID, now, now
}

func (a *Activity) Assign(id, userID string, now time.Time) {
	a.ID, a.UserID, a.CreatedAt, a.UpdatedAt = id, userID, now, now
}

func (f *FinancialRecord) Assign(id, userID string, now time.Time) {
	f.ID, f.UserID, f.CreatedAt, f.UpdatedAt = id, userID, now, now
}

func (f *FinancialCategory) Assign(id, userID string, now time.Time) {
	f.ID, f.UserID, f.CreatedAt, f.UpdatedAt = id, userID, now, now
}

func (c *UserConfig) Assign(id, userID string, now time.Time) {
	c.ID, c.UserID, c.CreatedAt, c.UpdatedAt = id, userID, now, now
}

func (e *Evidence) Assign(id, userID string, now time.Time) {
	e.ID, e.UserID, e.CreatedAt, e.UpdatedAt = id, userID, now, now
}

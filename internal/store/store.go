package store

import (
	"context"
	"fmt"

	"devplan/internal/gateway"
	"devplan/internal/model"
)

// WeeklyRepo stores weekly logs.
type WeeklyRepo struct {
	*Repo[model.WeeklyLog, *model.WeeklyLog]
}

// NewWeeklyRepo creates the weekly log repository on gw.
func NewWeeklyRepo(gw gateway.Gateway) *WeeklyRepo {
	return &WeeklyRepo{Repo: NewRepo[model.WeeklyLog](gw, model.TableWeeklyLogs)}
}

// Recent returns up to limit logs, newest week first.
func (r *WeeklyRepo) Recent(ctx context.Context, userID string, limit int) ([]model.WeeklyLog, error) {
	return r.List(ctx, userID, gateway.Query{}.OrderBy("week_start", true).WithLimit(limit))
}

// Since returns logs whose week starts on or after from.
func (r *WeeklyRepo) Since(ctx context.Context, userID string, from model.Date) ([]model.WeeklyLog, error) {
	return r.List(ctx, userID, gateway.Query{}.Gte("week_start", from).OrderBy("week_start", true))
}

func (r *WeeklyRepo) Create(ctx context.Context, userID string, w *model.WeeklyLog) error {
	if w.WeekStart.IsZero() {
		return fmt.Errorf("%w: week_start is required", ErrInvalidInput)
	}
	if w.WeekEnd.IsZero() {
		w.WeekEnd = w.WeekStart.AddDays(6)
	}
	if w.WeekEnd.Before(w.WeekStart) {
		return fmt.Errorf("%w: week_end is before week_start", ErrInvalidInput)
	}
	if err := validateLevels(w.EnergyLevel, w.SatisfactionLevel); err != nil {
		return err
	}
	return r.Repo.Create(ctx, userID, w)
}

func (r *WeeklyRepo) Update(ctx context.Context, userID, id string, fields map[string]any) (model.WeeklyLog, error) {
	energy, _ := fields["energy_level"].(*int)
	satisfaction, _ := fields["satisfaction_level"].(*int)
	if err := validateLevels(energy, satisfaction); err != nil {
		return model.WeeklyLog{}, err
	}
	return r.Repo.Update(ctx, userID, id, fields)
}

// validateLevels checks the optional 1-5 self-assessment scores.
func validateLevels(levels ...*int) error {
	for _, l := range levels {
		if l != nil && (*l < 1 || *l > 5) {
			return fmt.Errorf("%w: levels must be within 1-5", ErrInvalidInput)
		}
	}
	return nil
}

// ActivityRepo stores activities.
type ActivityRepo struct {
	*Repo[model.Activity, *model.Activity]
}

// NewActivityRepo creates the activity repository on gw.
func NewActivityRepo(gw gateway.Gateway) *ActivityRepo {
	return &ActivityRepo{Repo: NewRepo[model.Activity](gw, model.TableActivities)}
}

// Find lists activities in [from, to]; zero bounds are open.
func (r *ActivityRepo) Find(ctx context.Context, userID string, from, to model.Date, category string) ([]model.Activity, error) {
	q := gateway.Query{}
	if !from.IsZero() {
		q = q.Gte("activity_date", from)
	}
	if !to.IsZero() {
		q = q.Lte("activity_date", to)
	}
	if category != "" {
		q = q.Eq("category", category)
	}
	return r.List(ctx, userID, q.OrderBy("activity_date", true))
}

// EvidenceRepo stores evidence metadata.
type EvidenceRepo struct {
	*Repo[model.Evidence, *model.Evidence]
}

// NewEvidenceRepo creates the evidence metadata repository on gw.
func NewEvidenceRepo(gw gateway.Gateway) *EvidenceRepo {
	return &EvidenceRepo{Repo: NewRepo[model.Evidence](gw, model.TableEvidences)}
}

// Find lists evidence, newest first, optionally for one task.
func (r *EvidenceRepo) Find(ctx context.Context, userID, taskID string) ([]model.Evidence, error) {
	q := gateway.Query{}
	if taskID != "" {
		q = q.Eq("task_id", taskID)
	}
	return r.List(ctx, userID, q.OrderBy("created_at", true))
}

// ByHash returns the user's evidence with the given content hash, if any.
func (r *EvidenceRepo) ByHash(ctx context.Context, userID, hash string) (*model.Evidence, error) {
	rows, err := r.List(ctx, userID, gateway.Where("content_hash", hash).WithLimit(1))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Repos bundles every repository over one gateway.
type Repos struct {
	Tasks      *TaskRepo
	Plans      *PlanRepo
	Reviews    *ReviewRepo
	Weekly     *WeeklyRepo
	Activities *ActivityRepo
	Finance    *FinanceRepo
	Categories *CategoryRepo
	Configs    *ConfigRepo
	Evidence   *EvidenceRepo
	Catalog    *CatalogRepo
	Profiles   *ProfileRepo
}

// NewRepos builds all repositories on gw.
func NewRepos(gw gateway.Gateway) *Repos {
	plans := NewPlanRepo(gw)
	return &Repos{
		Tasks:      NewTaskRepo(gw),
		Plans:      plans,
		Reviews:    NewReviewRepo(gw, plans),
		Weekly:     NewWeeklyRepo(gw),
		Activities: NewActivityRepo(gw),
		Finance:    NewFinanceRepo(gw),
		Categories: NewCategoryRepo(gw),
		Configs:    NewConfigRepo(gw),
		Evidence:   NewEvidenceRepo(gw),
		Catalog:    NewCatalogRepo(gw),
		Profiles:   NewProfileRepo(gw),
	}
}

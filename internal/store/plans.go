package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devplan/internal/aggregate"
	"devplan/internal/gateway"
	"devplan/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// keyLookbackPlans bounds how many earlier plans are scanned to reuse competency keys.
const keyLookbackPlans = 24

// PlanRepo stores monthly plans, one per user and month.
type PlanRepo struct {
	*Repo[model.MonthlyPlan, *model.MonthlyPlan]
}

// NewPlanRepo creates the monthly plan repository on gw.
func NewPlanRepo(gw gateway.Gateway) *PlanRepo {
	return &PlanRepo{Repo: NewRepo[model.MonthlyPlan](gw, model.TableMonthlyPlans)}
}

// Recent returns up to limit plans, newest month first.
func (r *PlanRepo) Recent(ctx context.Context, userID string, limit int) ([]model.MonthlyPlan, error) {
	return r.List(ctx, userID, gateway.Query{}.OrderBy("month", true).WithLimit(limit))
}

// ForMonth returns the plan of the month containing month.
func (r *PlanRepo) ForMonth(ctx context.Context, userID string, month model.Date) (model.MonthlyPlan, error) {
	rows, err := r.List(ctx, userID, gateway.Where("month", month.MonthStart()).WithLimit(1))
	if err != nil {
		return model.MonthlyPlan{}, err
	}
	if len(rows) == 0 {
		return model.MonthlyPlan{}, ErrNotFound
	}
	return rows[0], nil
}

// Create normalizes the month to its first day, assigns competency keys and
// inserts p. A second plan for the same month fails with ErrConflict.
func (r *PlanRepo) Create(ctx context.Context, userID string, p *model.MonthlyPlan) error {
	if p.Month.IsZero() {
		return fmt.Errorf("%w: month is required", ErrInvalidInput)
	}
	p.Month = p.Month.MonthStart()
	if err := validateCompetencies(p.Competencies); err != nil {
		return err
	}
	if err := r.ensureMonthFree(ctx, userID, p.Month, ""); err != nil {
		return err
	}
	comps, err := r.assignKeys(ctx, userID, p.Competencies)
	if err != nil {
		return err
	}
	p.Competencies = comps
	return r.Repo.Create(ctx, userID, p)
}

// Update applies fields to one plan. month and competencies get the same
// normalization as Create.
func (r *PlanRepo) Update(ctx context.Context, userID, id string, fields map[string]any) (model.MonthlyPlan, error) {
	patch := make(map[string]any, len(fields))
	for k, v := range fields {
		patch[k] = v
	}

	if v, ok := patch["month"]; ok {
		month, ok := v.(model.Date)
		if !ok || month.IsZero() {
			return model.MonthlyPlan{}, fmt.Errorf("%w: month is required", ErrInvalidInput)
		}
		month = month.MonthStart()
		if err := r.ensureMonthFree(ctx, userID, month, id); err != nil {
			return model.MonthlyPlan{}, err
		}
		patch["month"] = month
	}
	if v, ok := patch["competencies"]; ok {
		var comps []model.Competency
		switch t := v.(type) {
		case []model.Competency:
			comps = t
		case datatypes.JSONSlice[model.Competency]:
			comps = t
		default:
			return model.MonthlyPlan{}, fmt.Errorf("%w: competencies must be a list", ErrInvalidInput)
		}
		if err := validateCompetencies(comps); err != nil {
			return model.MonthlyPlan{}, err
		}
		keyed, err := r.assignKeys(ctx, userID, comps)
		if err != nil {
			return model.MonthlyPlan{}, err
		}
		patch["competencies"] = keyed
	}
	return r.Repo.Update(ctx, userID, id, patch)
}

func (r *PlanRepo) ensureMonthFree(ctx context.Context, userID string, month model.Date, exceptID string) error {
	q := gateway.Where("month", month)
	if exceptID != "" {
		q = q.Neq("id", exceptID)
	}
	rows, err := r.List(ctx, userID, q.WithLimit(1))
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return fmt.Errorf("plan for %s already exists: %w", month.Format("2006-01"), ErrConflict)
	}
	return nil
}

// assignKeys makes every competency carry a key that identifies it across
// months. A missing key becomes the key the same normalized name had in an
// earlier plan, or a fresh one. A supplied key that an earlier plan bound to a
// different name is kept (a rename) unless that other name is also in this
// plan; then the entry is re-keyed so the two series stay apart.
func (r *PlanRepo) assignKeys(ctx context.Context, userID string, comps []model.Competency) (datatypes.JSONSlice[model.Competency], error) {
	out := make(datatypes.JSONSlice[model.Competency], len(comps))
	copy(out, comps)
	if len(out) == 0 {
		return out, nil
	}

	byName := map[string]string{} // normalized name -> key
	byKey := map[string]string{}  // key -> normalized name
	previous, err := r.Recent(ctx, userID, keyLookbackPlans)
	if err != nil {
		return nil, err
	}
	// oldest first, so newer plans win
	for i := len(previous) - 1; i >= 0; i-- {
		for _, c := range previous[i].Competencies {
			if k := strings.TrimSpace(c.Key); k != "" {
				name := aggregate.NormalizeName(c.Name)
				byName[name] = k
				byKey[k] = name
			}
		}
	}

	inPlan := map[string]bool{}
	for _, c := range out {
		inPlan[aggregate.NormalizeName(c.Name)] = true
	}

	used := map[string]bool{}
	for i := range out {
		k := strings.TrimSpace(out[i].Key)
		if k == "" {
			continue
		}
		name := aggregate.NormalizeName(out[i].Name)
		if bound, ok := byKey[k]; ok && bound != name && inPlan[bound] {
			out[i].Key = ""
			continue
		}
		out[i].Key = k
		used[k] = true
	}
	for i := range out {
		if out[i].Key != "" {
			continue
		}
		key, ok := byName[aggregate.NormalizeName(out[i].Name)]
		if !ok || used[key] {
			key = uuid.NewString()
		}
		out[i].Key = key
		used[key] = true
	}
	return out, nil
}

// validateCompetencies checks names, progress ranges and that no two entries
// of one plan share a key.
func validateCompetencies(comps []model.Competency) error {
	keys := make(map[string]string, len(comps))
	for _, c := range comps {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: competency name is required", ErrInvalidInput)
		}
		if k := strings.TrimSpace(c.Key); k != "" {
			if other, dup := keys[k]; dup {
				return fmt.Errorf("%w: competencies %q and %q share key %q", ErrInvalidInput, other, c.Name, k)
			}
			keys[k] = c.Name
		}
		values := []int{c.StartProgress, c.CurrentProgress}
		if c.EndProgress != nil {
			values = append(values, *c.EndProgress)
		}
		for _, v := range values {
			if v < 0 || v > 100 {
				return fmt.Errorf("%w: competency %q progress must be within 0-100", ErrInvalidInput, c.Name)
			}
		}
	}
	return nil
}

// ReviewRepo stores monthly reviews.
type ReviewRepo struct {
	*Repo[model.MonthlyReview, *model.MonthlyReview]
	plans *PlanRepo
}

// NewReviewRepo creates the review repository; plans checks that a reviewed plan exists.
func NewReviewRepo(gw gateway.Gateway, plans *PlanRepo) *ReviewRepo {
	return &ReviewRepo{Repo: NewRepo[model.MonthlyReview](gw, model.TableMonthlyReviews), plans: plans}
}

// Create inserts a review for one of the user's plans.
func (r *ReviewRepo) Create(ctx context.Context, userID string, rev *model.MonthlyReview) error {
	if rev.MonthlyPlanID == "" {
		return fmt.Errorf("%w: monthly_plan_id is required", ErrInvalidInput)
	}
	if _, err := r.plans.Get(ctx, userID, rev.MonthlyPlanID); err != nil {
		return err
	}
	return r.Repo.Create(ctx, userID, rev)
}

// ForPlan returns the latest review of a plan, or ErrNotFound.
func (r *ReviewRepo) ForPlan(ctx context.Context, userID, planID string) (model.MonthlyReview, error) {
	rows, err := r.List(ctx, userID, gateway.Where("monthly_plan_id", planID).OrderBy("created_at", true).WithLimit(1))
	if err != nil {
		return model.MonthlyReview{}, err
	}
	if len(rows) == 0 {
		return model.MonthlyReview{}, ErrNotFound
	}
	return rows[0], nil
}

// ReviewFor is ForPlan with a nil result instead of ErrNotFound.
func (r *ReviewRepo) ReviewFor(ctx context.Context, userID, planID string) (*model.MonthlyReview, error) {
	rev, err := r.ForPlan(ctx, userID, planID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

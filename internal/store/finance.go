package store

import (
	"context"
	"fmt"
	"strings"

	"devplan/internal/gateway"
	"devplan/internal/model"
)

// FinanceRepo stores financial records. Month is always derived from the record date.
type FinanceRepo struct {
	*Repo[model.FinancialRecord, *model.FinancialRecord]
}

// NewFinanceRepo creates the financial record repository on gw.
func NewFinanceRepo(gw gateway.Gateway) *FinanceRepo {
	return &FinanceRepo{Repo: NewRepo[model.FinancialRecord](gw, model.TableFinancialRecords)}
}

// Find lists records, optionally restricted to a month (YYYY-MM) and type.
func (r *FinanceRepo) Find(ctx context.Context, userID, month string, typ model.FinanceType) ([]model.FinancialRecord, error) {
	q := gateway.Query{}
	if month != "" {
		q = q.Eq("month", month)
	}
	if typ != "" {
		q = q.Eq("type", typ)
	}
	return r.List(ctx, userID, q.OrderBy("record_date", true))
}

func (r *FinanceRepo) Create(ctx context.Context, userID string, rec *model.FinancialRecord) error {
	if err := validateRecord(rec.Type, rec.AmountCents); err != nil {
		return err
	}
	if rec.RecordDate.IsZero() {
		rec.RecordDate = model.DateOf(r.now())
	}
	rec.Category = strings.TrimSpace(rec.Category)
	rec.Month = rec.RecordDate.Format("2006-01")
	return r.Repo.Create(ctx, userID, rec)
}

func (r *FinanceRepo) Update(ctx context.Context, userID, id string, fields map[string]any) (model.FinancialRecord, error) {
	current, err := r.Get(ctx, userID, id)
	if err != nil {
		return model.FinancialRecord{}, err
	}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}

	typ, amount := current.Type, current.AmountCents
	if v, ok := patch["type"]; ok {
		typ = model.FinanceType(asString(v))
	}
	if v, ok := patch["amount_cents"].(int64); ok {
		amount = v
	}
	if err := validateRecord(typ, amount); err != nil {
		return model.FinancialRecord{}, err
	}
	if v, ok := patch["record_date"]; ok {
		d, ok := v.(model.Date)
		if !ok || d.IsZero() {
			return model.FinancialRecord{}, fmt.Errorf("%w: record_date is required", ErrInvalidInput)
		}
		patch["month"] = d.Format("2006-01")
	}
	return r.Repo.Update(ctx, userID, id, patch)
}

func validateRecord(typ model.FinanceType, amount int64) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown record type %q", ErrInvalidInput, typ)
	}
	if amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	return nil
}

// CategoryRepo stores user-defined financial categories, unique per name and type.
type CategoryRepo struct {
	*Repo[model.FinancialCategory, *model.FinancialCategory]
}

// NewCategoryRepo creates the financial category repository on gw.
func NewCategoryRepo(gw gateway.Gateway) *CategoryRepo {
	return &CategoryRepo{Repo: NewRepo[model.FinancialCategory](gw, model.TableFinancialCategories)}
}

// Find lists categories, optionally of one type, by name.
func (r *CategoryRepo) Find(ctx context.Context, userID string, typ model.FinanceType) ([]model.FinancialCategory, error) {
	q := gateway.Query{}
	if typ != "" {
		q = q.Eq("type", typ)
	}
	return r.List(ctx, userID, q.OrderBy("name", false))
}

func (r *CategoryRepo) Create(ctx context.Context, userID string, c *model.FinancialCategory) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown category type %q", ErrInvalidInput, c.Type)
	}
	existing, err := r.List(ctx, userID, gateway.Where("name", c.Name).Eq("type", c.Type).WithLimit(1))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("category %q already exists: %w", c.Name, ErrConflict)
	}
	return r.Repo.Create(ctx, userID, c)
}

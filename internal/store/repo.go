// Package store provides typed, owner-scoped repositories over the record gateway.
//
// Every read, update and delete filters on both id and user_id, so a row owned
// by another user is indistinguishable from a missing one (ErrNotFound).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devplan/internal/gateway"
	"devplan/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidHierarchy = errors.New("invalid task hierarchy")
)

// Repo is a CRUD repository for one owned table.
type Repo[T any, PT interface {
	*T
	model.Owned
}] struct {
	gw    gateway.Gateway
	table string
	now   func() time.Time
	newID func() string
}

// NewRepo creates a repository for table.
func NewRepo[T any, PT interface {
	*T
	model.Owned
}](gw gateway.Gateway, table string) *Repo[T, PT] {
	return &Repo[T, PT]{
		gw:    gw,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (r *Repo[T, PT]) owned(userID string) gateway.Query {
	return gateway.Where("user_id", userID)
}

func (r *Repo[T, PT]) one(userID, id string) gateway.Query {
	return gateway.Where("id", id).Eq("user_id", userID)
}

// List returns the user's rows matching extra filters. The result is never nil.
func (r *Repo[T, PT]) List(ctx context.Context, userID string, q gateway.Query) ([]T, error) {
	full := r.owned(userID)
	full.Filters = append(full.Filters, q.Filters...)
	full.Orders = q.Orders
	full.Limit = q.Limit

	rows := []T{}
	if err := r.gw.Select(ctx, r.table, full, &rows); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Get loads one row owned by userID.
func (r *Repo[T, PT]) Get(ctx context.Context, userID, id string) (T, error) {
	var zero T
	var rows []T
	if err := r.gw.Select(ctx, r.table, r.one(userID, id).WithLimit(1), &rows); err != nil {
		return zero, fmt.Errorf("get %s: %w", r.table, err)
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// Create stamps id, owner and timestamps on row and inserts it.
func (r *Repo[T, PT]) Create(ctx context.Context, userID string, row PT) error {
	row.Assign(r.newID(), userID, r.now())
	if err := r.gw.Insert(ctx, r.table, row); err != nil {
		if gateway.IsConflict(err) {
			return fmt.Errorf("create %s: %w", r.table, ErrConflict)
		}
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	return nil
}

// Update applies fields to one owned row in a single gateway call and returns the result.
func (r *Repo[T, PT]) Update(ctx context.Context, userID, id string, fields map[string]any) (T, error) {
	var zero T
	if len(fields) == 0 {
		return r.Get(ctx, userID, id)
	}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = r.now()

	var rows []T
	if err := r.gw.Update(ctx, r.table, r.one(userID, id), patch, &rows); err != nil {
		if gateway.IsConflict(err) {
			return zero, fmt.Errorf("update %s: %w", r.table, ErrConflict)
		}
		return zero, fmt.Errorf("update %s: %w", r.table, err)
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// Delete removes one owned row and returns it.
func (r *Repo[T, PT]) Delete(ctx context.Context, userID, id string) (T, error) {
	var zero T
	var rows []T
	if err := r.gw.Delete(ctx, r.table, r.one(userID, id), &rows); err != nil {
		return zero, fmt.Errorf("delete %s: %w", r.table, err)
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// Table returns the table name.
func (r *Repo[T, PT]) Table() string { return r.table }

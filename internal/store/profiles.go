package store

import (
	"context"
	"fmt"
	"time"

	"devplan/internal/gateway"
	"devplan/internal/model"
)

// ProfileRepo stores user profiles keyed by the identity provider's user id.
type ProfileRepo struct {
	gw  gateway.Gateway
	now func() time.Time
}

// NewProfileRepo creates the user profile repository on gw.
func NewProfileRepo(gw gateway.Gateway) *ProfileRepo {
	return &ProfileRepo{gw: gw, now: func() time.Time { return time.Now().UTC() }}
}

// CreateProfile inserts the profile row for userID.
func (r *ProfileRepo) CreateProfile(ctx context.Context, userID, fullName string) error {
	now := r.now()
	p := model.UserProfile{ID: userID, FullName: fullName, CreatedAt: now, UpdatedAt: now}
	if err := r.gw.Insert(ctx, model.TableUserProfiles, &p); err != nil {
		if gateway.IsConflict(err) {
			return fmt.Errorf("create profile: %w", ErrConflict)
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfile loads the profile of userID.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	var rows []model.UserProfile
	if err := r.gw.Select(ctx, model.TableUserProfiles, gateway.Where("id", userID).WithLimit(1), &rows); err != nil {
		return model.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if len(rows) == 0 {
		return model.UserProfile{}, ErrNotFound
	}
	return rows[0], nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devplan/internal/gateway"
	"devplan/internal/model"

	"gorm.io/datatypes"
)

// ConfigRepo stores per-user classification and category lists.
type ConfigRepo struct {
	*Repo[model.UserConfig, *model.UserConfig]
}

// NewConfigRepo creates the per-user configuration repository on gw.
func NewConfigRepo(gw gateway.Gateway) *ConfigRepo {
	return &ConfigRepo{Repo: NewRepo[model.UserConfig](gw, model.TableUserConfigs)}
}

// Load returns the user's config, creating it with defaults on first read.
func (r *ConfigRepo) Load(ctx context.Context, userID string) (model.UserConfig, error) {
	cfg, err := r.find(ctx, userID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.UserConfig{}, err
	}

	cfg = model.UserConfig{
		Classifications: model.DefaultClassifications(),
		Categories:      model.DefaultCategories(),
	}
	if err := r.Create(ctx, userID, &cfg); err != nil {
		// a concurrent first read created it
		if errors.Is(err, ErrConflict) {
			return r.find(ctx, userID)
		}
		return model.UserConfig{}, err
	}
	return cfg, nil
}

// Save replaces the lists that are non-nil.
func (r *ConfigRepo) Save(ctx context.Context, userID string, classifications, categories []string) (model.UserConfig, error) {
	cfg, err := r.Load(ctx, userID)
	if err != nil {
		return model.UserConfig{}, err
	}
	fields := map[string]any{}
	if classifications != nil {
		list, err := cleanList("classifications", classifications)
		if err != nil {
			return model.UserConfig{}, err
		}
		fields["classifications"] = list
	}
	if categories != nil {
		list, err := cleanList("categories", categories)
		if err != nil {
			return model.UserConfig{}, err
		}
		fields["categories"] = list
	}
	if len(fields) == 0 {
		return cfg, nil
	}
	return r.Update(ctx, userID, cfg.ID, fields)
}

func (r *ConfigRepo) find(ctx context.Context, userID string) (model.UserConfig, error) {
	rows, err := r.List(ctx, userID, gateway.Query{}.WithLimit(1))
	if err != nil {
		return model.UserConfig{}, err
	}
	if len(rows) == 0 {
		return model.UserConfig{}, ErrNotFound
	}
	return rows[0], nil
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(name string, in []string) (datatypes.JSONSlice[string], error) {
	out := make(datatypes.JSONSlice[string], 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, name)
	}
	return out, nil
}

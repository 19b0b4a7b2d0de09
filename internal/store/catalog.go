package store

import (
	"context"
	"fmt"
	"time"

	"devplan/internal/gateway"
	"devplan/internal/model"

	"github.com/google/uuid"
)

// DefaultCompetencies seeds an empty catalog.
var DefaultCompetencies = []model.CompetencyCatalogEntry{
	{Name: "Communication", Description: "Expressing ideas clearly in writing and speech"},
	{Name: "Leadership", Description: "Guiding and motivating a team toward a goal"},
	{Name: "Teamwork", Description: "Collaborating effectively with others"},
	{Name: "Problem solving", Description: "Analyzing issues and finding workable solutions"},
	{Name: "Time management", Description: "Planning and prioritizing work"},
	{Name: "Technical skills", Description: "Mastery of the tools and technologies of the role"},
	{Name: "Adaptability", Description: "Adjusting to change and new information"},
	{Name: "Critical thinking", Description: "Evaluating information to make sound decisions"},
}

// CatalogRepo reads the public competency catalog.
type CatalogRepo struct {
	gw gateway.Gateway
}

// NewCatalogRepo creates the shared competency catalog repository on gw.
func NewCatalogRepo(gw gateway.Gateway) *CatalogRepo {
	return &CatalogRepo{gw: gw}
}

// List returns every catalog entry by name.
func (r *CatalogRepo) List(ctx context.Context) ([]model.CompetencyCatalogEntry, error) {
	rows := []model.CompetencyCatalogEntry{}
	if err := r.gw.Select(ctx, model.TableCompetencies, gateway.Query{}.OrderBy("name", false), &rows); err != nil {
		return nil, fmt.Errorf("list %s: %w", model.TableCompetencies, err)
	}
	if rows == nil {
		rows = []model.CompetencyCatalogEntry{}
	}
	return rows, nil
}

// Seed inserts the entries whose name is not in the catalog yet and returns
// how many were added.
func (r *CatalogRepo) Seed(ctx context.Context, entries []model.CompetencyCatalogEntry) (int, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[e.Name] = true
	}

	added := 0
	now := time.Now().UTC()
	for _, e := range entries {
		if have[e.Name] {
			continue
		}
		e.ID = uuid.NewString()
		e.CreatedAt, e.UpdatedAt = now, now
		if err := r.gw.Insert(ctx, model.TableCompetencies, &e); err != nil {
			if gateway.IsConflict(err) {
				continue
			}
			return added, fmt.Errorf("seed competency %q: %w", e.Name, err)
		}
		have[e.Name] = true
		added++
	}
	return added, nil
}

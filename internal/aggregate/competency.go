package aggregate

import (
	"sort"
	"strings"

	"devplan/internal/model"
)

// DefaultEvolutionMonths is the number of plans CompetencyEvolution looks at when months <= 0.
const DefaultEvolutionMonths = 6

// EvolutionPoint is one month of a competency series.
type EvolutionPoint struct {
	Month   model.Date `json:"month"`
	Start   int        `json:"start_progress"`
	Current int        `json:"current_progress"`
	End     *int       `json:"end_progress"`
}

// Series is the history of one competency, oldest month first.
type Series struct {
	Key    string           `json:"key"`
	Name   string           `json:"name"` // name used in the most recent plan
	Points []EvolutionPoint `json:"points"`
}

// CompetencyKey returns the identity a competency is tracked under across plans:
// its stable key, or its normalized name for entries saved without one.
func CompetencyKey(c model.Competency) string {
	if k := strings.TrimSpace(c.Key); k != "" {
		return k
	}
	return "name:" + NormalizeName(c.Name)
}

// NormalizeName lowercases and collapses whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CompetencyEvolution builds a series per competency over the most recent
// months plans. Plans may be passed in any order.
func CompetencyEvolution(plans []model.MonthlyPlan, months int) map[string]Series {
	if months <= 0 {
		months = DefaultEvolutionMonths
	}
	sorted := make([]model.MonthlyPlan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Month.Before(sorted[j].Month) })
	if len(sorted) > months {
		sorted = sorted[len(sorted)-months:]
	}

	out := make(map[string]Series)
	for _, p := range sorted {
		for _, c := range p.Competencies {
			if strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Key) == "" {
				continue
			}
			key := CompetencyKey(c)
			s := out[key]
			s.Key = key
			s.Name = c.Name
			s.Points = append(s.Points, EvolutionPoint{
				Month:   p.Month,
				Start:   c.StartProgress,
				Current: c.CurrentProgress,
				End:     c.EndProgress,
			})
			out[key] = s
		}
	}
	return out
}

// PlanComparison summarizes a plan's competencies against its review.
type PlanComparison struct {
	CompetencyCount int     `json:"competency_count"`
	WithEndCount    int     `json:"with_end_count"`
	AvgStart        float64 `json:"avg_start_progress"`
	AvgEnd          float64 `json:"avg_end_progress"`
	HasReview       bool    `json:"has_review"`
}

// ComparePlan averages start progress over all competencies and end progress
// over those that recorded one. Empty sets average to 0.
func ComparePlan(plan model.MonthlyPlan, review *model.MonthlyReview) PlanComparison {
	out := PlanComparison{
		CompetencyCount: len(plan.Competencies),
		HasReview:       review != nil,
	}
	var startSum, endSum int
	for _, c := range plan.Competencies {
		startSum += c.StartProgress
		if c.EndProgress != nil {
			out.WithEndCount++
			endSum += *c.EndProgress
		}
	}
	if out.CompetencyCount > 0 {
		out.AvgStart = round1(float64(startSum) / float64(out.CompetencyCount))
	}
	if out.WithEndCount > 0 {
		out.AvgEnd = round1(float64(endSum) / float64(out.WithEndCount))
	}
	return out
}

// Package aggregate computes dashboard summaries from rows already fetched
// from the gateway. Every function is pure and safe for concurrent use.
package aggregate

import (
	"math"

	"devplan/internal/model"
)

// DefaultWindowDays is the trailing window used by DailyBuckets when days <= 0.
const DefaultWindowDays = 7

// Completion summarizes task states.
type Completion struct {
	Total          int     `json:"total_tasks"`
	Completed      int     `json:"completed_tasks"`
	Pending        int     `json:"pending_tasks"`
	CompletionRate float64 `json:"completion_rate"` // percent, one decimal
}

// CompletionOf counts completed and pending tasks. The rate is 0 for an empty set.
func CompletionOf(tasks []model.Task) Completion {
	var c Completion
	for _, t := range tasks {
		c.Total++
		switch t.Status {
		case model.TaskCompleted:
			c.Completed++
		case model.TaskPending:
			c.Pending++
		}
	}
	c.CompletionRate = rate(c.Completed, c.Total)
	return c
}

// DayBucket holds task counts for one calendar day.
type DayBucket struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// DailyBuckets groups tasks by start date within [today-days, today].
// Tasks without a start date are skipped.
func DailyBuckets(tasks []model.Task, today model.Date, days int) map[string]DayBucket {
	if days <= 0 {
		days = DefaultWindowDays
	}
	from := today.AddDays(-days)
	out := make(map[string]DayBucket)
	for _, t := range tasks {
		if t.StartDate.IsZero() {
			continue
		}
		if t.StartDate.Before(from) || t.StartDate.After(today) {
			continue
		}
		key := t.StartDate.String()
		b := out[key]
		b.Total++
		switch t.Status {
		case model.TaskCompleted:
			b.Completed++
		case model.TaskPending:
			b.Pending++
		}
		out[key] = b
	}
	return out
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

package aggregate

import (
	"errors"

	"devplan/internal/model"
)

// ErrNotMacroTask is returned when a roll-up is requested on a leaf task.
var ErrNotMacroTask = errors.New("task is not a macro task")

// RollupProgress returns floor(mean(children progress)).
//
// With no children it returns 0 and changed=false: the parent is left as is.
// changed reports whether the result differs from the parent's stored progress.
func RollupProgress(parent model.Task, children []model.Task) (progress int, changed bool, err error) {
	if !parent.IsMacro() {
		return 0, false, ErrNotMacroTask
	}
	if len(children) == 0 {
		return 0, false, nil
	}
	sum := 0
	for _, c := range children {
		sum += c.Progress
	}
	progress = sum / len(children) // progress is never negative, so this floors
	return progress, progress != parent.Progress, nil
}

// DateRange is the span covered by a macro task's children.
// Determined is false when no child has both dates.
type DateRange struct {
	Start      model.Date `json:"start_date"`
	End        model.Date `json:"end_date"`
	Determined bool       `json:"determined"`
}

// RollupDates returns the earliest start and latest end among children that
// have both dates set.
func RollupDates(parent model.Task, children []model.Task) (DateRange, error) {
	if !parent.IsMacro() {
		return DateRange{}, ErrNotMacroTask
	}
	var r DateRange
	for _, c := range children {
		if c.StartDate.IsZero() || c.EndDate.IsZero() {
			continue
		}
		if !r.Determined || c.StartDate.Before(r.Start) {
			r.Start = c.StartDate
		}
		if !r.Determined || c.EndDate.After(r.End) {
			r.End = c.EndDate
		}
		r.Determined = true
	}
	return r, nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"devplan/internal/aggregate"
	"devplan/internal/gateway"
	"devplan/internal/model"
)

// TaskFilter narrows a task listing. Zero fields are ignored.
type TaskFilter struct {
	Date     model.Date // exact start date
	From     model.Date // start date >= From
	Status   model.TaskStatus
	Category string
	ParentID string
	Kind     model.TaskKind
}

// TaskRepo stores daily tasks and enforces the one-level macro/subtask hierarchy.
type TaskRepo struct {
	*Repo[model.Task, *model.Task]
}

// NewTaskRepo creates the task repository on gw.
func NewTaskRepo(gw gateway.Gateway) *TaskRepo {
	return &TaskRepo{Repo: NewRepo[model.Task](gw, model.TableTasks)}
}

// Find lists the user's tasks ordered by sort order, then creation time.
func (r *TaskRepo) Find(ctx context.Context, userID string, f TaskFilter) ([]model.Task, error) {
	q := gateway.Query{}
	if !f.Date.IsZero() {
		q = q.Eq("start_date", f.Date)
	}
	if !f.From.IsZero() {
		q = q.Gte("start_date", f.From)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	if f.Category != "" {
		q = q.Eq("category", f.Category)
	}
	if f.ParentID != "" {
		q = q.Eq("parent_id", f.ParentID)
	}
	if f.Kind != "" {
		q = q.Eq("kind", f.Kind)
	}
	q = q.OrderBy("sort_order", false).OrderBy("created_at", false)
	return r.List(ctx, userID, q)
}

// Subtasks lists the children of a macro task.
func (r *TaskRepo) Subtasks(ctx context.Context, userID, parentID string) ([]model.Task, error) {
	return r.Find(ctx, userID, TaskFilter{ParentID: parentID})
}

// Create validates and inserts t.
func (r *TaskRepo) Create(ctx context.Context, userID string, t *model.Task) error {
	if t.Kind == "" {
		t.Kind = model.TaskLeaf
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.ParentID != nil && *t.ParentID == "" {
		t.ParentID = nil
	}
	if err := validateTask(t.Kind, t.Status, t.Priority, t.Progress); err != nil {
		return err
	}
	if t.Status == model.TaskCompleted {
		now := r.now()
		t.Progress = 100
		t.CompletedAt = &now
	}
	if err := r.checkParent(ctx, userID, "", t.Kind, t.ParentID); err != nil {
		return err
	}
	return r.Repo.Create(ctx, userID, t)
}

// Update applies fields (column -> value) to one task in a single gateway call.
//
// Setting status to completed forces progress to 100 and stamps completed_at.
// Changes to kind or parent_id are validated against the hierarchy rules.
func (r *TaskRepo) Update(ctx context.Context, userID, id string, fields map[string]any) (model.Task, error) {
	current, err := r.Get(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}

	patch := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		patch[k] = v
	}

	kind, status, priority, progress := current.Kind, current.Status, current.Priority, current.Progress
	if v, ok := patch["kind"]; ok {
		kind = model.TaskKind(asString(v))
	}
	if v, ok := patch["status"]; ok {
		status = model.TaskStatus(asString(v))
	}
	if v, ok := patch["priority"]; ok {
		priority = asString(v)
	}
	if v, ok := patch["progress"].(int); ok {
		progress = v
	}
	if err := validateTask(kind, status, priority, progress); err != nil {
		return model.Task{}, err
	}

	if _, ok := patch["status"]; ok {
		if status == model.TaskCompleted {
			patch["progress"] = 100
			patch["completed_at"] = r.now()
		} else {
			patch["completed_at"] = nil
		}
	}

	_, kindChanged := patch["kind"]
	_, parentChanged := patch["parent_id"]
	if kindChanged || parentChanged {
		parentID := current.ParentID
		if parentChanged {
			parentID = asStringPtr(patch["parent_id"])
			patch["parent_id"] = parentID
		}
		if err := r.checkParent(ctx, userID, id, kind, parentID); err != nil {
			return model.Task{}, err
		}
		if current.IsMacro() && kind != model.TaskMacro {
			children, err := r.Subtasks(ctx, userID, id)
			if err != nil {
				return model.Task{}, err
			}
			if len(children) > 0 {
				return model.Task{}, fmt.Errorf("%w: task still has subtasks", ErrInvalidHierarchy)
			}
		}
	}

	return r.Repo.Update(ctx, userID, id, patch)
}

// Rollup recomputes a macro task's progress and dates from its children and
// persists whatever changed.
func (r *TaskRepo) Rollup(ctx context.Context, userID, id string) (model.Task, error) {
	parent, err := r.Get(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}
	if !parent.IsMacro() {
		return model.Task{}, aggregate.ErrNotMacroTask
	}
	children, err := r.Subtasks(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}

	progress, changed, err := aggregate.RollupProgress(parent, children)
	if err != nil {
		return model.Task{}, err
	}
	span, err := aggregate.RollupDates(parent, children)
	if err != nil {
		return model.Task{}, err
	}

	fields := map[string]any{}
	if changed {
		fields["progress"] = progress
	}
	if span.Determined && (span.Start.String() != parent.StartDate.String() || span.End.String() != parent.EndDate.String()) {
		fields["start_date"] = span.Start
		fields["end_date"] = span.End
	}
	if len(fields) == 0 {
		return parent, nil
	}
	return r.Repo.Update(ctx, userID, id, fields)
}

// checkParent enforces: macro tasks have no parent; a parent is a macro task
// owned by the same user and is not the task itself.
func (r *TaskRepo) checkParent(ctx context.Context, userID, selfID string, kind model.TaskKind, parentID *string) error {
	if parentID == nil {
		return nil
	}
	if kind == model.TaskMacro {
		return fmt.Errorf("%w: a macro task cannot have a parent", ErrInvalidHierarchy)
	}
	if *parentID == selfID {
		return fmt.Errorf("%w: a task cannot be its own parent", ErrInvalidHierarchy)
	}
	parent, err := r.Get(ctx, userID, *parentID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: parent task not found", ErrInvalidHierarchy)
	}
	if err != nil {
		return err
	}
	if !parent.IsMacro() {
		return fmt.Errorf("%w: parent must be a macro task", ErrInvalidHierarchy)
	}
	return nil
}

func validateTask(kind model.TaskKind, status model.TaskStatus, priority string, progress int) error {
	if kind != model.TaskLeaf && kind != model.TaskMacro {
		return fmt.Errorf("%w: unknown task kind %q", ErrInvalidInput, kind)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown task status %q", ErrInvalidInput, status)
	}
	switch priority {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: progress must be within 0-100", ErrInvalidInput)
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// asStringPtr maps "", nil and nil pointers to nil.
func asStringPtr(v any) *string {
	s := asString(v)
	if s == "" {
		return nil
	}
	return &s
}

// Delete removes one task. A macro task can only be removed once it has no subtasks.
func (r *TaskRepo) Delete(ctx context.Context, userID, id string) (model.Task, error) {
	children, err := r.Subtasks(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}
	if len(children) > 0 {
		return model.Task{}, fmt.Errorf("%w: delete or detach its subtasks first", ErrInvalidHierarchy)
	}
	return r.Repo.Delete(ctx, userID, id)
}

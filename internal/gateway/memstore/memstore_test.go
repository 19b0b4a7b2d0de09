package memstore

import (
	"context"
	"errors"
	"testing"

	"devplan/internal/gateway"
	"devplan/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTasks(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, task := range []model.Task{
		{ID: "t1", UserID: "u1", Title: "a", StartDate: model.NewDate(2024, 3, 1), SortOrder: 2, Status: model.TaskPending},
		{ID: "t2", UserID: "u1", Title: "b", StartDate: model.NewDate(2024, 3, 5), SortOrder: 1, Status: model.TaskCompleted},
		{ID: "t3", UserID: "u2", Title: "c", StartDate: model.NewDate(2024, 3, 5), Status: model.TaskPending},
		{ID: "t4", UserID: "u1", Title: "d", Status: model.TaskPending},
	} {
		task := task
		require.NoError(t, s.Insert(ctx, model.TableTasks, &task))
	}
}

func TestSelect_FiltersOrderLimit(t *testing.T) {
	s := New()
	seedTasks(t, s)
	ctx := context.Background()

	var rows []model.Task
	q := gateway.Where("user_id", "u1").Gte("start_date", model.NewDate(2024, 3, 2))
	require.NoError(t, s.Select(ctx, model.TableTasks, q, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "t2", rows[0].ID)

	rows = nil
	q = gateway.Where("user_id", "u1").OrderBy("sort_order", false).WithLimit(2)
	require.NoError(t, s.Select(ctx, model.TableTasks, q, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "t4", rows[0].ID) // sort_order 0
	assert.Equal(t, "t2", rows[1].ID)

	rows = nil
	require.NoError(t, s.Select(ctx, model.TableTasks, gateway.Query{}.IsNull("start_date"), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "t4", rows[0].ID)

	rows = nil
	require.NoError(t, s.Select(ctx, model.TableTasks, gateway.Where("status", model.TaskPending).Neq("user_id", "u1"), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "t3", rows[0].ID)
}

func TestInsert_UniqueConflict(t *testing.T) {
	s := New(WithUnique(model.TableMonthlyPlans, "user_id", "month"))
	ctx := context.Background()

	first := model.MonthlyPlan{ID: "p1", UserID: "u1", Month: model.NewDate(2024, 3, 1)}
	require.NoError(t, s.Insert(ctx, model.TableMonthlyPlans, &first))

	dup := model.MonthlyPlan{ID: "p2", UserID: "u1", Month: model.NewDate(2024, 3, 1)}
	err := s.Insert(ctx, model.TableMonthlyPlans, &dup)
	assert.True(t, gateway.IsConflict(err), "expected conflict, got %v", err)

	other := model.MonthlyPlan{ID: "p3", UserID: "u2", Month: model.NewDate(2024, 3, 1)}
	require.NoError(t, s.Insert(ctx, model.TableMonthlyPlans, &other))

	again := model.MonthlyPlan{ID: "p1", UserID: "u3"}
	assert.True(t, gateway.IsConflict(s.Insert(ctx, model.TableMonthlyPlans, &again)))
}

func TestUpdate_AllOrNothing(t *testing.T) {
	s := New(WithUnique(model.TableMonthlyPlans, "user_id", "month"))
	ctx := context.Background()
	for _, p := range []model.MonthlyPlan{
		{ID: "p1", UserID: "u1", Month: model.NewDate(2024, 3, 1), Objectives: "x"},
		{ID: "p2", UserID: "u1", Month: model.NewDate(2024, 4, 1)},
	} {
		p := p
		require.NoError(t, s.Insert(ctx, model.TableMonthlyPlans, &p))
	}

	var out []model.MonthlyPlan
	err := s.Update(ctx, model.TableMonthlyPlans, gateway.Where("id", "p2"),
		map[string]any{"month": model.NewDate(2024, 3, 1), "objectives": "y"}, &out)
	require.True(t, gateway.IsConflict(err))

	var rows []model.MonthlyPlan
	require.NoError(t, s.Select(ctx, model.TableMonthlyPlans, gateway.Where("id", "p2"), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Objectives)

	require.NoError(t, s.Update(ctx, model.TableMonthlyPlans, gateway.Where("id", "p1"),
		map[string]any{"objectives": "z"}, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "z", out[0].Objectives)
	assert.Equal(t, "2024-03-01", out[0].Month.String())
}

func TestDelete_ReturnsRemoved(t *testing.T) {
	s := New()
	seedTasks(t, s)
	ctx := context.Background()

	var removed []model.Task
	require.NoError(t, s.Delete(ctx, model.TableTasks, gateway.Where("id", "t1").Eq("user_id", "u2"), &removed))
	assert.Empty(t, removed)

	require.NoError(t, s.Delete(ctx, model.TableTasks, gateway.Where("id", "t1").Eq("user_id", "u1"), &removed))
	require.Len(t, removed, 1)

	var rows []model.Task
	require.NoError(t, s.Select(ctx, model.TableTasks, gateway.Where("user_id", "u1"), &rows))
	assert.Len(t, rows, 2)
}

func TestIdentity(t *testing.T) {
	id := New().Identity()
	ctx := context.Background()

	acc, err := id.SignUp(ctx, "Ana@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acc.Email)

	_, err = id.SignUp(ctx, "ana@example.com", "other")
	assert.True(t, errors.Is(err, gateway.ErrAccountExists))

	got, err := id.SignIn(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = id.SignIn(ctx, "ana@example.com", "wrong")
	assert.True(t, errors.Is(err, gateway.ErrInvalidCredentials))
	_, err = id.SignIn(ctx, "nobody@example.com", "secret1")
	assert.True(t, errors.Is(err, gateway.ErrInvalidCredentials))
}

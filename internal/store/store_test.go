package store

import (
	"context"
	"errors"
	"testing"

	"devplan/internal/aggregate"
	"devplan/internal/gateway/memstore"
	"devplan/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepos() *Repos {
	var opts []memstore.Option
	for table, keys := range model.UniqueKeys() {
		for _, cols := range keys {
			opts = append(opts, memstore.WithUnique(table, cols...))
		}
	}
	return NewRepos(memstore.New(opts...))
}

func strp(s string) *string { return &s }
func intp(v int) *int       { return &v }

func TestRepo_OwnershipIsolation(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	task := model.Task{Title: "mine"}
	require.NoError(t, repos.Tasks.Create(ctx, "alice", &task))
	require.NotEmpty(t, task.ID)
	assert.Equal(t, "alice", task.UserID)

	_, err := repos.Tasks.Get(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repos.Tasks.Update(ctx, "bob", task.ID, map[string]any{"title": "stolen"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repos.Tasks.Delete(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repos.Tasks.Get(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)

	list, err := repos.Tasks.Find(ctx, "bob", TaskFilter{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestTaskRepo_CompletedForcesProgress(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	task := model.Task{Title: "write report", Progress: 40}
	require.NoError(t, repos.Tasks.Create(ctx, "u1", &task))
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, model.TaskLeaf, task.Kind)
	assert.Nil(t, task.CompletedAt)

	done, err := repos.Tasks.Update(ctx, "u1", task.ID, map[string]any{"status": model.TaskCompleted})
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.CompletedAt)

	reopened, err := repos.Tasks.Update(ctx, "u1", task.ID, map[string]any{"status": model.TaskInProgress})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)

	_, err = repos.Tasks.Update(ctx, "u1", task.ID, map[string]any{"status": "done"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = repos.Tasks.Update(ctx, "u1", task.ID, map[string]any{"progress": 101})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTaskRepo_Hierarchy(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	macro := model.Task{Title: "launch", Kind: model.TaskMacro}
	require.NoError(t, repos.Tasks.Create(ctx, "u1", &macro))
	leaf := model.Task{Title: "step", ParentID: strp(macro.ID)}
	require.NoError(t, repos.Tasks.Create(ctx, "u1", &leaf))

	nested := model.Task{Title: "nested macro", Kind: model.TaskMacro, ParentID: strp(macro.ID)}
	assert.ErrorIs(t, repos.Tasks.Create(ctx, "u1", &nested), ErrInvalidHierarchy)

	underLeaf := model.Task{Title: "under leaf", ParentID: strp(leaf.ID)}
	assert.ErrorIs(t, repos.Tasks.Create(ctx, "u1", &underLeaf), ErrInvalidHierarchy)

	foreign := model.Task{Title: "foreign parent", ParentID: strp(macro.ID)}
	assert.ErrorIs(t, repos.Tasks.Create(ctx, "u2", &foreign), ErrInvalidHierarchy)

	_, err := repos.Tasks.Update(ctx, "u1", macro.ID, map[string]any{"kind": model.TaskLeaf})
	assert.ErrorIs(t, err, ErrInvalidHierarchy, "macro with subtasks cannot become a leaf")

	_, err = repos.Tasks.Update(ctx, "u1", leaf.ID, map[string]any{"kind": model.TaskMacro})
	assert.ErrorIs(t, err, ErrInvalidHierarchy, "a task with a parent cannot become macro")

	detached, err := repos.Tasks.Update(ctx, "u1", leaf.ID, map[string]any{"parent_id": nil})
	require.NoError(t, err)
	assert.Nil(t, detached.ParentID)

	subtasks, err := repos.Tasks.Subtasks(ctx, "u1", macro.ID)
	require.NoError(t, err)
	assert.Empty(t, subtasks)
}

func TestTaskRepo_Rollup(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	macro := model.Task{Title: "project", Kind: model.TaskMacro, Progress: 10}
	require.NoError(t, repos.Tasks.Create(ctx, "u1", &macro))
	for _, c := range []model.Task{
		{Title: "a", Progress: 20, StartDate: model.NewDate(2024, 1, 5), EndDate: model.NewDate(2024, 1, 10)},
		{Title: "b", Progress: 50, StartDate: model.NewDate(2024, 1, 1), EndDate: model.NewDate(2024, 1, 20)},
		{Title: "c", Progress: 90, StartDate: model.NewDate(2023, 12, 1)},
	} {
		c := c
		c.ParentID = strp(macro.ID)
		require.NoError(t, repos.Tasks.Create(ctx, "u1", &c))
	}

	rolled, err := repos.Tasks.Rollup(ctx, "u1", macro.ID)
	require.NoError(t, err)
	assert.Equal(t, 53, rolled.Progress)
	assert.Equal(t, "2024-01-01", rolled.StartDate.String())
	assert.Equal(t, "2024-01-20", rolled.EndDate.String())

	again, err := repos.Tasks.Rollup(ctx, "u1", macro.ID)
	require.NoError(t, err)
	assert.Equal(t, rolled.Progress, again.Progress)
	assert.Equal(t, rolled.UpdatedAt, again.UpdatedAt, "unchanged roll-up must not write")

	leaf := model.Task{Title: "leaf"}
	require.NoError(t, repos.Tasks.Create(ctx, "u1", &leaf))
	_, err = repos.Tasks.Rollup(ctx, "u1", leaf.ID)
	assert.True(t, errors.Is(err, aggregate.ErrNotMacroTask))
}

func TestPlanRepo_UniqueMonthAndKeys(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	feb := model.MonthlyPlan{
		Month:        model.NewDate(2024, 2, 14),
		Competencies: []model.Competency{{Name: "Public Speaking", StartProgress: 10, CurrentProgress: 20}},
	}
	require.NoError(t, repos.Plans.Create(ctx, "u1", &feb))
	assert.Equal(t, "2024-02-01", feb.Month.String())
	require.Len(t, feb.Competencies, 1)
	key := feb.Competencies[0].Key
	require.NotEmpty(t, key)

	dup := model.MonthlyPlan{Month: model.NewDate(2024, 2, 1)}
	assert.ErrorIs(t, repos.Plans.Create(ctx, "u1", &dup), ErrConflict)

	other := model.MonthlyPlan{Month: model.NewDate(2024, 2, 1)}
	require.NoError(t, repos.Plans.Create(ctx, "u2", &other))

	mar := model.MonthlyPlan{
		Month: model.NewDate(2024, 3, 1),
		Competencies: []model.Competency{
			{Name: "public  speaking", StartProgress: 20, CurrentProgress: 30},
			{Name: "Go", StartProgress: 0, CurrentProgress: 5},
		},
	}
	require.NoError(t, repos.Plans.Create(ctx, "u1", &mar))
	assert.Equal(t, key, mar.Competencies[0].Key, "same competency keeps its key across months")
	assert.NotEqual(t, key, mar.Competencies[1].Key)

	_, err := repos.Plans.Update(ctx, "u1", mar.ID, map[string]any{"month": model.NewDate(2024, 2, 1)})
	assert.ErrorIs(t, err, ErrConflict)

	bad := model.MonthlyPlan{Month: model.NewDate(2024, 5, 1), Competencies: []model.Competency{{Name: "x", StartProgress: 120}}}
	assert.ErrorIs(t, repos.Plans.Create(ctx, "u1", &bad), ErrInvalidInput)

	current, err := repos.Plans.ForMonth(ctx, "u1", model.NewDate(2024, 3, 31))
	require.NoError(t, err)
	assert.Equal(t, mar.ID, current.ID)

	recent, err := repos.Plans.Recent(ctx, "u1", 12)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, mar.ID, recent[0].ID)
}

func TestPlanRepo_CompetencyKeysStayDistinct(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	shared := model.MonthlyPlan{
		Month: model.NewDate(2024, 1, 1),
		Competencies: []model.Competency{
			{Key: "k1", Name: "Go", StartProgress: 10, CurrentProgress: 10},
			{Key: "k1", Name: "Public speaking", StartProgress: 0, CurrentProgress: 0},
		},
	}
	assert.ErrorIs(t, repos.Plans.Create(ctx, "u1", &shared), ErrInvalidInput)

	jan := model.MonthlyPlan{
		Month:        model.NewDate(2024, 1, 1),
		Competencies: []model.Competency{{Name: "Go", StartProgress: 10, CurrentProgress: 20}},
	}
	require.NoError(t, repos.Plans.Create(ctx, "u1", &jan))
	goKey := jan.Competencies[0].Key

	_, err := repos.Plans.Update(ctx, "u1", jan.ID, map[string]any{"competencies": []model.Competency{
		{Key: "dup", Name: "Go"}, {Key: "dup", Name: "Rust"},
	}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Go's key reused for another competency while Go is also planned
	feb := model.MonthlyPlan{
		Month: model.NewDate(2024, 2, 1),
		Competencies: []model.Competency{
			{Key: goKey, Name: "Public speaking", StartProgress: 0, CurrentProgress: 10},
			{Name: "Go", StartProgress: 20, CurrentProgress: 40},
		},
	}
	require.NoError(t, repos.Plans.Create(ctx, "u1", &feb))
	assert.NotEqual(t, goKey, feb.Competencies[0].Key)
	assert.Equal(t, goKey, feb.Competencies[1].Key)

	// a rename keeps the key when the old name is not planned
	mar := model.MonthlyPlan{
		Month:        model.NewDate(2024, 3, 1),
		Competencies: []model.Competency{{Key: goKey, Name: "Golang", StartProgress: 40, CurrentProgress: 50}},
	}
	require.NoError(t, repos.Plans.Create(ctx, "u1", &mar))
	assert.Equal(t, goKey, mar.Competencies[0].Key)

	plans, err := repos.Plans.Recent(ctx, "u1", 12)
	require.NoError(t, err)
	series := aggregate.CompetencyEvolution(plans, 6)
	require.Len(t, series, 2)
	require.Len(t, series[goKey].Points, 3)
	assert.Equal(t, "Golang", series[goKey].Name)
	assert.Len(t, series[feb.Competencies[0].Key].Points, 1)
}

func TestReviewRepo(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	plan := model.MonthlyPlan{Month: model.NewDate(2024, 2, 1)}
	require.NoError(t, repos.Plans.Create(ctx, "u1", &plan))

	orphan := model.MonthlyReview{MonthlyPlanID: "missing"}
	assert.ErrorIs(t, repos.Reviews.Create(ctx, "u1", &orphan), ErrNotFound)

	foreign := model.MonthlyReview{MonthlyPlanID: plan.ID}
	assert.ErrorIs(t, repos.Reviews.Create(ctx, "u2", &foreign), ErrNotFound)

	rev := model.MonthlyReview{MonthlyPlanID: plan.ID, Improved: "focus"}
	require.NoError(t, repos.Reviews.Create(ctx, "u1", &rev))

	got, err := repos.Reviews.ReviewFor(ctx, "u1", plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "focus", got.Improved)

	none, err := repos.Reviews.ReviewFor(ctx, "u2", plan.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestConfigRepo_LazyDefaults(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	cfg, err := repos.Configs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultClassifications(), []string(cfg.Classifications))
	assert.Equal(t, model.DefaultCategories(), []string(cfg.Categories))

	again, err := repos.Configs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)

	saved, err := repos.Configs.Save(ctx, "u1", nil, []string{" work ", "Work", "side project", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "side project"}, []string(saved.Categories))
	assert.Equal(t, model.DefaultClassifications(), []string(saved.Classifications))

	_, err = repos.Configs.Save(ctx, "u1", []string{" "}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFinanceRepo(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	rec := model.FinancialRecord{Type: model.FinanceExpense, AmountCents: 1250, Category: " food ", RecordDate: model.NewDate(2024, 3, 4)}
	require.NoError(t, repos.Finance.Create(ctx, "u1", &rec))
	assert.Equal(t, "2024-03", rec.Month)
	assert.Equal(t, "food", rec.Category)

	moved, err := repos.Finance.Update(ctx, "u1", rec.ID, map[string]any{"record_date": model.NewDate(2024, 4, 2)})
	require.NoError(t, err)
	assert.Equal(t, "2024-04", moved.Month)

	bad := model.FinancialRecord{Type: "gift", AmountCents: 1}
	assert.ErrorIs(t, repos.Finance.Create(ctx, "u1", &bad), ErrInvalidInput)
	negative := model.FinancialRecord{Type: model.FinanceIncome, AmountCents: -1}
	assert.ErrorIs(t, repos.Finance.Create(ctx, "u1", &negative), ErrInvalidInput)

	april, err := repos.Finance.Find(ctx, "u1", "2024-04", "")
	require.NoError(t, err)
	assert.Len(t, april, 1)

	cat := model.FinancialCategory{Name: "food", Type: model.FinanceExpense}
	require.NoError(t, repos.Categories.Create(ctx, "u1", &cat))
	dup := model.FinancialCategory{Name: "food", Type: model.FinanceExpense}
	assert.ErrorIs(t, repos.Categories.Create(ctx, "u1", &dup), ErrConflict)
	sameNameOtherType := model.FinancialCategory{Name: "food", Type: model.FinanceIncome}
	require.NoError(t, repos.Categories.Create(ctx, "u1", &sameNameOtherType))
}

func TestWeeklyRepo_Validation(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	log := model.WeeklyLog{WeekStart: model.NewDate(2024, 3, 4), EnergyLevel: intp(4)}
	require.NoError(t, repos.Weekly.Create(ctx, "u1", &log))
	assert.Equal(t, "2024-03-10", log.WeekEnd.String())

	bad := model.WeeklyLog{WeekStart: model.NewDate(2024, 3, 4), SatisfactionLevel: intp(6)}
	assert.ErrorIs(t, repos.Weekly.Create(ctx, "u1", &bad), ErrInvalidInput)

	_, err := repos.Weekly.Update(ctx, "u1", log.ID, map[string]any{"energy_level": intp(0)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	since, err := repos.Weekly.Since(ctx, "u1", model.NewDate(2024, 3, 1))
	require.NoError(t, err)
	assert.Len(t, since, 1)
}

func TestCatalogRepo_SeedIdempotent(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	added, err := repos.Catalog.Seed(ctx, DefaultCompetencies)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCompetencies), added)

	added, err = repos.Catalog.Seed(ctx, DefaultCompetencies)
	require.NoError(t, err)
	assert.Zero(t, added)

	list, err := repos.Catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(DefaultCompetencies))
	assert.Equal(t, "Adaptability", list[0].Name)
}

func TestProfileRepo(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()

	_, err := repos.Profiles.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repos.Profiles.CreateProfile(ctx, "u1", "Ana"))
	p, err := repos.Profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.FullName)

	assert.ErrorIs(t, repos.Profiles.CreateProfile(ctx, "u1", "Ana"), ErrConflict)
}

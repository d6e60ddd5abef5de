package archive

import (
	"context"
	"errors"
	"testing"

	"dinnerplan/internal/planner"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/store"
	"dinnerplan/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paths = store.Paths{AppID: "app", UserID: "u1"}

func week(meals ...string) *planner.WeeklyPlan {
	plan := &planner.WeeklyPlan{
		ShoppingList: []shopping.Item{{Item: "Milk", Quantity: "1 gal", Category: "Dairy", IsChecked: true}},
		InitialQuery: "quick dinners",
	}
	for i, day := range planner.DayLabels {
		plan.WeeklyPlan = append(plan.WeeklyPlan, planner.MealEntry{Day: day, Meal: meals[i%len(meals)]})
	}
	return plan
}

func TestArchive_RejectsDuplicateMeals(t *testing.T) {
	ctx := context.Background()
	gw := storetest.NewMemory()
	svc := NewService(gw, paths, nil)

	first, err := svc.Archive(ctx, week("Tacos", "Curry"))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// Same meals, different shopping list and query: still a duplicate.
	dup := week("Tacos", "Curry")
	dup.ShoppingList = nil
	dup.InitialQuery = "something else"
	writes := gw.Writes()
	_, err = svc.Archive(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, writes, gw.Writes())

	_, err = svc.Archive(ctx, week("Pho"))
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Pho", list[0].WeeklyPlan.WeeklyPlan[0].Meal, "newest first")
	assert.Equal(t, first.ID, list[1].ID)
	assert.False(t, list[1].SavedAt.IsZero())
}

func TestArchive_NoPlan(t *testing.T) {
	svc := NewService(storetest.NewMemory(), paths, nil)
	_, err := svc.Archive(context.Background(), nil)
	assert.ErrorIs(t, err, planner.ErrNoPlan)
	_, err = svc.Archive(context.Background(), &planner.WeeklyPlan{})
	assert.ErrorIs(t, err, planner.ErrNoPlan)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	gw := storetest.NewMemory()
	svc := NewService(gw, paths, nil)
	repo := planner.NewRepository(gw, paths)

	archived, err := svc.Archive(ctx, week("Tacos"))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, week("Pizza")))

	restored, err := svc.Restore(ctx, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tacos", restored.WeeklyPlan[0].Meal)

	current, err := repo.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, restored, current)
	assert.True(t, current.ShoppingList[0].IsChecked)

	_, err = svc.Restore(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storetest.NewMemory(), paths, nil)

	p, err := svc.Archive(ctx, week("Tacos"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p.ID))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// After deletion the same plan can be archived again.
	_, err = svc.Archive(ctx, week("Tacos"))
	assert.NoError(t, err)
}

func TestArchive_PersistenceFailure(t *testing.T) {
	gw := storetest.NewMemory()
	gw.FailOn("add", errors.New("quota"))
	svc := NewService(gw, paths, nil)

	_, err := svc.Archive(context.Background(), week("Tacos"))
	assert.ErrorIs(t, err, store.ErrPersistence)
}

func TestSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewService(storetest.NewMemory(), paths, nil)

	events, err := svc.Subscribe(ctx)
	require.NoError(t, err)
	first := <-events
	require.NoError(t, first.Err)
	assert.Empty(t, first.Plans)

	_, err = svc.Archive(ctx, week("Tacos"))
	require.NoError(t, err)
	for ev := range events {
		require.NoError(t, ev.Err)
		if len(ev.Plans) == 1 {
			return
		}
	}
	t.Fatal("subscription closed before the archived plan arrived")
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"dinnerplan/internal/archive"
	"dinnerplan/internal/database"
	"dinnerplan/internal/llm"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/shared"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator answers plan requests with plan and everything else with detail.
type fakeGenerator struct {
	mu      sync.Mutex
	plan    planner.WeeklyPlan
	detail  recipe.RecipeDetail
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (llm.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)

	var v any = f.detail
	if req.Schema != nil && req.Schema.Properties["weeklyPlan"] != nil {
		v = f.plan
	}
	data, err := json.Marshal(v)
	if err != nil {
		return llm.ContentResponse{}, err
	}
	return llm.ContentResponse{
		Content: string(data),
		Usage:   shared.TokenUsage{PromptTokens: 10, CompletionTokens: 20, Model: "fake"},
	}, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

func newFakeGenerator() *fakeGenerator {
	f := &fakeGenerator{
		plan: planner.WeeklyPlan{
			ShoppingList: []shopping.Item{
				{Item: "Tortillas", Quantity: "8", Category: "Bakery"},
				{Item: "Milk", Quantity: "1 gal", Category: "Dairy"},
			},
		},
		detail: recipe.RecipeDetail{
			RecipeName:      "Tacos",
			PrepTimeMinutes: 20,
			CookTimeMinutes: 10,
			Ingredients:     []string{"1 lb beef"},
			Timeline: []recipe.TimelineStep{
				{MinutesBefore: 0, Action: "Serve"},
				{MinutesBefore: 30, Action: "Brown the beef"},
			},
			Instructions: []string{"Cook", "Serve"},
		},
	}
	for i, day := range planner.DayLabels {
		f.plan.WeeklyPlan = append(f.plan.WeeklyPlan, planner.MealEntry{Day: day, Meal: []string{"Tacos", "Curry", "Pho", "Pasta", "Pizza", "Salmon", "Roast"}[i]})
	}
	return f
}

func newTestApp(t *testing.T, secret string) (*App, *fakeGenerator) {
	t.Helper()
	db, err := database.NewDB(database.MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gen := newFakeGenerator()
	a, err := New(Deps{
		Generator:   gen,
		Gateway:     storetest.NewMemory(),
		AppID:       "app",
		Usage:       metrics.NewStore(db.SQL),
		ShareSecret: secret,
	})
	require.NoError(t, err)
	return a, gen
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{AppID: "app"})
	assert.Error(t, err)
	_, err = New(Deps{Generator: newFakeGenerator(), Gateway: storetest.NewMemory()})
	assert.Error(t, err)
}

func TestPlanLifecycle(t *testing.T) {
	ctx := context.Background()
	a, gen := newTestApp(t, "")

	plan, err := a.GeneratePlan(ctx, "u1", "tex-mex week")
	require.NoError(t, err)
	assert.Equal(t, "tex-mex week", plan.InitialQuery)

	// Ticks survive a regeneration that returns the same item.
	_, err = a.ToggleShoppingItem(ctx, "u1", 1)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, a.ToggleMealSelection("u1", 2))
	assert.Equal(t, []int{2, 5}, a.ToggleMealSelection("u1", 5))

	plan, err = a.Regenerate(ctx, "u1", "no fish")
	require.NoError(t, err)
	assert.True(t, plan.ShoppingList[1].IsChecked)
	assert.Equal(t, "tex-mex week", plan.InitialQuery)
	assert.Contains(t, gen.lastPrompt(), "Replace the dinners for: Wednesday, Saturday.")
	assert.Empty(t, a.Session("u1").Selection.Indices())

	list, err := a.AddShoppingItem(ctx, "u1", shopping.Item{Item: "Limes", Quantity: "4", Category: "Produce"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	list, err = a.RemoveShoppingItem(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, "Milk", list[0].Item)

	swapped, err := a.SwapMeals(ctx, "u1", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "Curry", swapped.WeeklyPlan[0].Meal)
	assert.Equal(t, "Monday", swapped.WeeklyPlan[0].Day)

	usage, err := a.Usage(7)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 2, usage[0].TotalExecution)
}

func TestRegenerate_NoSelection(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, "")
	_, err := a.GeneratePlan(ctx, "u1", "anything")
	require.NoError(t, err)

	_, err = a.Regenerate(ctx, "u1", "")
	assert.ErrorIs(t, err, planner.ErrNoSelection)
}

func TestFavoritesInjection(t *testing.T) {
	ctx := context.Background()
	a, gen := newTestApp(t, "")

	lasagna, err := a.Favorites("u1").Add(ctx, recipe.RecipeDetail{RecipeName: "Grandma's Lasagna"}, "url")
	require.NoError(t, err)
	_, err = a.Favorites("u1").Add(ctx, recipe.RecipeDetail{RecipeName: "Pho"}, "url")
	require.NoError(t, err)

	// Injection on but nothing picked mandates nothing.
	a.Session("u1").SetUseFavorites(true)
	_, err = a.GeneratePlan(ctx, "u1", "comfort food")
	require.NoError(t, err)
	assert.NotContains(t, gen.lastPrompt(), "MUST include")

	picked, err := a.ToggleFavoriteSelection(ctx, "u1", "grandma's lasagna")
	require.NoError(t, err)
	assert.Equal(t, []string{"Grandma's Lasagna"}, picked)

	_, err = a.GeneratePlan(ctx, "u1", "comfort food")
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "- Grandma's Lasagna")
	assert.NotContains(t, gen.lastPrompt(), "- Pho")

	// Picked but switched off.
	a.Session("u1").SetUseFavorites(false)
	_, err = a.GeneratePlan(ctx, "u1", "comfort food")
	require.NoError(t, err)
	assert.NotContains(t, gen.lastPrompt(), "Grandma's Lasagna")
	a.Session("u1").SetUseFavorites(true)

	// Two picks cannot go into a single replaced day.
	_, err = a.ToggleFavoriteSelection(ctx, "u1", "Pho")
	require.NoError(t, err)
	a.ToggleMealSelection("u1", 3)
	_, err = a.Regenerate(ctx, "u1", "")
	assert.ErrorIs(t, err, planner.ErrTooManyFavorites)

	// A deleted favorite drops out of the injection.
	require.NoError(t, a.Favorites("u1").Remove(ctx, lasagna.ID))
	_, err = a.GeneratePlan(ctx, "u1", "comfort food")
	require.NoError(t, err)
	assert.NotContains(t, gen.lastPrompt(), "Grandma's Lasagna")
	assert.Contains(t, gen.lastPrompt(), "- Pho")

	picked, err = a.ToggleFavoriteSelection(ctx, "u1", "Pho")
	require.NoError(t, err)
	assert.Equal(t, []string{"Grandma's Lasagna"}, picked)

	_, err = a.ToggleFavoriteSelection(ctx, "u1", "Ramen")
	assert.ErrorIs(t, err, recipe.ErrNoFavorite)
}

func TestToggleFavoriteSelection_Cap(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, "")

	for i := range planner.PlanDays + 1 {
		_, err := a.Favorites("u1").Add(ctx, recipe.RecipeDetail{RecipeName: fmt.Sprintf("F%d", i+1)}, "url")
		require.NoError(t, err)
	}
	for i := range planner.PlanDays {
		_, err := a.ToggleFavoriteSelection(ctx, "u1", fmt.Sprintf("F%d", i+1))
		require.NoError(t, err)
	}
	_, err := a.ToggleFavoriteSelection(ctx, "u1", "F8")
	assert.ErrorIs(t, err, planner.ErrTooManyFavorites)
	assert.Len(t, a.Session("u1").FavoriteSelection(), planner.PlanDays)

	// Unpicking still works at the cap.
	picked, err := a.ToggleFavoriteSelection(ctx, "u1", "F1")
	require.NoError(t, err)
	assert.Len(t, picked, planner.PlanDays-1)
}

func TestCookAndFavorite(t *testing.T) {
	ctx := context.Background()
	a, gen := newTestApp(t, "")

	_, err := a.Cook(ctx, "u1", 0, "")
	assert.ErrorIs(t, err, planner.ErrNoPlan)

	_, err = a.ToggleFavorite(ctx, "u1")
	assert.ErrorIs(t, err, recipe.ErrNoMealSelected)

	_, err = a.GeneratePlan(ctx, "u1", "tacos")
	require.NoError(t, err)

	cooking, err := a.Cook(ctx, "u1", 0, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultDinnerTime, cooking.Detail.DinnerTime)
	require.Len(t, cooking.Schedule, 2)
	assert.Equal(t, "6:30 PM", cooking.Schedule[0].ClockTime)
	assert.Contains(t, gen.lastPrompt(), "7:00 PM")

	on, err := a.ToggleFavorite(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, on)

	// Cooking a favorite again stamps it as used and remembers the new time.
	cooking, err = a.Cook(ctx, "u1", 0, "20:15")
	require.NoError(t, err)
	assert.Equal(t, "7:45 PM", cooking.Schedule[0].ClockTime)
	assert.Equal(t, "20:15", a.Session("u1").DinnerTime())

	fav, err := a.Favorites("u1").Find(ctx, "Tacos")
	require.NoError(t, err)
	require.NotNil(t, fav)
	assert.NotNil(t, fav.LastUsed)
	assert.Equal(t, MealSourcePlan, fav.MealSource)

	_, err = a.Cook(ctx, "u1", 9, "")
	assert.ErrorIs(t, err, recipe.ErrNoMealSelected)
}

func TestArchiveCurrent(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, "")

	_, err := a.ArchiveCurrent(ctx, "u1")
	assert.ErrorIs(t, err, planner.ErrNoPlan)

	_, err = a.GeneratePlan(ctx, "u1", "week")
	require.NoError(t, err)
	_, err = a.ArchiveCurrent(ctx, "u1")
	require.NoError(t, err)
	_, err = a.ArchiveCurrent(ctx, "u1")
	assert.ErrorIs(t, err, archive.ErrDuplicate)
}

func TestSharing(t *testing.T) {
	ctx := context.Background()

	disabled, _ := newTestApp(t, "")
	_, err := disabled.ShareCurrent(ctx, "u1")
	assert.ErrorIs(t, err, ErrSharingDisabled)

	a, _ := newTestApp(t, "secret")
	_, err = a.GeneratePlan(ctx, "u1", "week")
	require.NoError(t, err)

	token, err := a.ShareCurrent(ctx, "u1")
	require.NoError(t, err)
	sp, err := a.OpenShared(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", sp.SharedBy)
	assert.Equal(t, "week", sp.InitialQuery)
}

func TestSessions(t *testing.T) {
	s := NewSessions()
	a := s.Get("u1")
	assert.Same(t, a, s.Get("u1"))
	assert.NotSame(t, a, s.Get("u2"))
	assert.Equal(t, DefaultDinnerTime, a.DinnerTime())
	assert.False(t, a.UseFavorites())

	assert.True(t, a.ToggleFavorite("Pho"))
	assert.True(t, a.ToggleFavorite("Dal"))
	assert.False(t, a.ToggleFavorite("Pho"))
	assert.Equal(t, []string{"Dal"}, a.FavoriteSelection())
}

package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/shared"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/store"
	"dinnerplan/internal/store/storetest"
	"dinnerplan/internal/units"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTextGenerator returns a canned response and keeps the last request.
type mockTextGenerator struct {
	response string
	err      error
	last     llm.GenerateRequest
	calls    int
}

func (m *mockTextGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (llm.ContentResponse, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{Content: m.response, Usage: shared.TokenUsage{PromptTokens: 50, CompletionTokens: 200}}, nil
}

var soup = RecipeDetail{
	RecipeName:      "Tomato Soup",
	PrepTimeMinutes: 15,
	CookTimeMinutes: 30,
	Ingredients:     []string{"2 lb tomatoes", "1 cup stock", "1 onion"},
	Timeline: []TimelineStep{
		{MinutesBefore: 0, Action: "Serve"},
		{MinutesBefore: 45, Action: "Chop onion"},
		{MinutesBefore: 30, Action: "Simmer"},
	},
	Instructions: []string{"Chop", "Simmer", "Blend"},
}

func soupJSON(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(soup)
	require.NoError(t, err)
	return string(data)
}

func testPlan() *planner.WeeklyPlan {
	plan := &planner.WeeklyPlan{ShoppingList: []shopping.Item{}}
	for i, day := range planner.DayLabels {
		plan.WeeklyPlan = append(plan.WeeklyPlan, planner.MealEntry{Day: day, Meal: []string{"Tomato Soup", "Tacos", "Curry", "Salmon", "Pizza", "Stir Fry", "Roast"}[i], Description: "tasty"})
	}
	return plan
}

func TestGenerateDetail(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps dinner time and stores the recipe", func(t *testing.T) {
		gen := &mockTextGenerator{response: soupJSON(t)}
		gw := storetest.NewMemory()
		o := NewOrchestrator(gen, gw, "app")

		detail, err := o.GenerateDetail(ctx, "u1", testPlan(), 0, "19:00")
		require.NoError(t, err)

		assert.Equal(t, "19:00", detail.DinnerTime)
		assert.Equal(t, "Tomato Soup", detail.RecipeName)
		assert.Contains(t, gen.last.Prompt, "Dish: Tomato Soup")
		assert.Contains(t, gen.last.Prompt, "served at 7:00 PM")
		assert.NotNil(t, gen.last.Schema)

		current, err := o.Current(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, detail, current)
	})

	t.Run("index out of range", func(t *testing.T) {
		gen := &mockTextGenerator{}
		o := NewOrchestrator(gen, storetest.NewMemory(), "app")
		for _, i := range []int{-1, 7} {
			_, err := o.GenerateDetail(ctx, "u1", testPlan(), i, "19:00")
			assert.ErrorIs(t, err, ErrNoMealSelected)
		}
		assert.Zero(t, gen.calls)
	})

	t.Run("no plan", func(t *testing.T) {
		o := NewOrchestrator(&mockTextGenerator{}, storetest.NewMemory(), "app")
		_, err := o.GenerateDetail(ctx, "u1", nil, 0, "19:00")
		assert.ErrorIs(t, err, planner.ErrNoPlan)
	})

	t.Run("bad dinner time", func(t *testing.T) {
		o := NewOrchestrator(&mockTextGenerator{}, storetest.NewMemory(), "app")
		_, err := o.GenerateDetail(ctx, "u1", testPlan(), 0, "7pm")
		assert.ErrorIs(t, err, ErrInvalidDinnerTime)
	})

	t.Run("malformed response writes nothing", func(t *testing.T) {
		gw := storetest.NewMemory()
		o := NewOrchestrator(&mockTextGenerator{response: `{"recipeName": ""}`}, gw, "app")
		_, err := o.GenerateDetail(ctx, "u1", testPlan(), 0, "19:00")
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Zero(t, gw.Writes())
	})

	t.Run("generation error", func(t *testing.T) {
		o := NewOrchestrator(&mockTextGenerator{err: &llm.StatusError{StatusCode: 500}}, storetest.NewMemory(), "app")
		_, err := o.GenerateDetail(ctx, "u1", testPlan(), 0, "19:00")
		assert.ErrorIs(t, err, llm.ErrRateLimitOrServer)
	})

	t.Run("persistence failure", func(t *testing.T) {
		gw := storetest.NewMemory()
		gw.FailOn("set", errors.New("offline"))
		c := metrics.NewCollectors()
		saveErrors := func() float64 {
			var m dto.Metric
			require.NoError(t, c.PersistenceErrors.WithLabelValues("save_recipe").Write(&m))
			return m.GetCounter().GetValue()
		}
		before := saveErrors()
		o := NewOrchestrator(&mockTextGenerator{response: soupJSON(t)}, gw, "app", WithCollectors(c))
		_, err := o.GenerateDetail(ctx, "u1", testPlan(), 0, "19:00")
		assert.ErrorIs(t, err, store.ErrPersistence)
		assert.Equal(t, before+1, saveErrors())
	})
}

func TestSchedule(t *testing.T) {
	d := soup
	d.DinnerTime = "19:00"

	steps, err := Schedule(&d)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "Chop onion", steps[0].Action)
	assert.Equal(t, "6:15 PM", steps[0].ClockTime)
	assert.Equal(t, "6:30 PM", steps[1].ClockTime)
	assert.Equal(t, "7:00 PM", steps[2].ClockTime)

	// the detail itself is not reordered
	assert.Equal(t, "Serve", d.Timeline[0].Action)

	t.Run("wraps across midnight", func(t *testing.T) {
		late := soup
		late.DinnerTime = "00:15"
		steps, err := Schedule(&late)
		require.NoError(t, err)
		assert.Equal(t, "11:30 PM", steps[0].ClockTime)
	})

	t.Run("missing dinner time", func(t *testing.T) {
		_, err := Schedule(&RecipeDetail{Timeline: []TimelineStep{{MinutesBefore: 5}}})
		assert.ErrorIs(t, err, ErrInvalidDinnerTime)
	})
}

func TestConvertIngredients(t *testing.T) {
	got := ConvertIngredients(&soup, units.Metric)
	require.Len(t, got, 3)
	assert.Equal(t, "0.9 kg", got[0].Converted)
	assert.Equal(t, "236.6 ml", got[1].Converted)
	assert.Equal(t, units.NotAvailable, got[2].Converted)
}

func TestParseDetail(t *testing.T) {
	_, err := ParseDetail("")
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = ParseDetail(`{"recipeName":"x","timeline":[{"minutesBefore":"ten","action":"late"}]}`)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	d, err := ParseDetail(`{"recipeName":"Roast","timeline":[{"minutesBefore":-5,"action":"Slice"},{"minutesBefore":12.6,"action":"Rest"}],"dinnerTime":"19:00"}`)
	require.NoError(t, err)
	assert.Equal(t, []TimelineStep{{MinutesBefore: -5, Action: "Slice"}, {MinutesBefore: 13, Action: "Rest"}}, d.Timeline)
	steps, err := Schedule(d)
	require.NoError(t, err)
	assert.Equal(t, "6:47 PM", steps[0].ClockTime)
	assert.Equal(t, "7:05 PM", steps[1].ClockTime)

	d, err = ParseDetail("```json\n" + `{"recipeName":"Pho","prepTimeMinutes":20,"cookTimeMinutes":10}` + "\n```")
	require.NoError(t, err)
	assert.Equal(t, 30, d.TotalMinutes())
}

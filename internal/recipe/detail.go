package recipe

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"text/template"
	"time"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/shared"
	"dinnerplan/internal/store"
	"dinnerplan/internal/units"

	"go.uber.org/zap"
)

//go:embed system_prompt.md
var systemPrompt string

//go:embed recipe_prompt.md
var recipePrompt string

var recipeTmpl = template.Must(template.New("recipe").Parse(recipePrompt))

type recipePromptData struct {
	Meal        string
	Description string
	ServeAt     string
}

// Orchestrator generates recipe details for planned meals. It runs one
// generation per user at a time, independently of plan generation.
type Orchestrator struct {
	gen     llm.Generator
	gw      store.Gateway
	appID   string
	guard   *planner.Guard
	usage   planner.UsageRecorder
	metrics *metrics.Collectors
	logger  *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUsageRecorder records token usage of every generation.
func WithUsageRecorder(u planner.UsageRecorder) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// WithCollectors reports generations to Prometheus.
func WithCollectors(c *metrics.Collectors) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// NewOrchestrator creates a recipe orchestrator.
func NewOrchestrator(gen llm.Generator, gw store.Gateway, appID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:    gen,
		gw:     gw,
		appID:  appID,
		guard:  planner.NewGuard(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GenerateDetail asks for the full recipe of plan.WeeklyPlan[mealIndex] served
// at dinnerTime (HH:MM), stamps the result with dinnerTime and stores it as
// the user's current recipe.
func (o *Orchestrator) GenerateDetail(ctx context.Context, userID string, plan *planner.WeeklyPlan, mealIndex int, dinnerTime string) (*RecipeDetail, error) {
	if userID == "" {
		return nil, planner.ErrNoUser
	}
	if plan == nil {
		return nil, planner.ErrNoPlan
	}
	if mealIndex < 0 || mealIndex >= len(plan.WeeklyPlan) {
		return nil, fmt.Errorf("%w: index %d", ErrNoMealSelected, mealIndex)
	}
	serveAt, err := units.DisplayTime(dinnerTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDinnerTime, err)
	}

	release, ok := o.guard.TryAcquire(userID)
	if !ok {
		return nil, planner.ErrBusy
	}
	defer release()

	meal := plan.WeeklyPlan[mealIndex]
	logger := o.logger.With(zap.String("user_id", userID), zap.String("meal", meal.Meal))

	var buf bytes.Buffer
	if err := recipeTmpl.Execute(&buf, recipePromptData{
		Meal:        meal.Meal,
		Description: meal.Description,
		ServeAt:     serveAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to render recipe prompt: %w", err)
	}

	logger.Info("generating recipe")
	start := time.Now()
	resp, err := o.gen.Generate(ctx, llm.GenerateRequest{
		SystemInstruction: systemPrompt,
		Prompt:            buf.String(),
		Schema:            DetailSchema(),
	})
	latency := time.Since(start)
	o.metrics.ObserveGeneration(shared.AgentRecipe, err, latency, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			err = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		logger.Warn("recipe generation failed", zap.Error(err))
		return nil, fmt.Errorf("failed to generate recipe: %w", err)
	}
	if o.usage != nil {
		if err := o.usage.RecordMeta(shared.AgentMeta{AgentName: shared.AgentRecipe, Usage: resp.Usage, Latency: latency}); err != nil {
			logger.Warn("failed to record usage", zap.Error(err))
		}
	}

	detail, err := ParseDetail(resp.Content)
	if err != nil {
		logger.Warn("recipe response rejected", zap.Error(err))
		return nil, err
	}
	detail.DinnerTime = dinnerTime

	doc, err := store.Encode(detail)
	if err != nil {
		return nil, err
	}
	if err := o.gw.SetDocument(ctx, o.paths(userID).CurrentRecipe(), doc); err != nil {
		if errors.Is(err, store.ErrPersistence) {
			o.metrics.ObservePersistenceError("save_recipe")
		}
		return nil, fmt.Errorf("failed to save recipe: %w", err)
	}

	logger.Info("recipe generated", zap.Duration("latency", latency), zap.Int("steps", len(detail.Timeline)))
	return detail, nil
}

// Current returns the recipe the user last generated, or store.ErrNotFound.
func (o *Orchestrator) Current(ctx context.Context, userID string) (*RecipeDetail, error) {
	doc, err := o.gw.GetDocument(ctx, o.paths(userID).CurrentRecipe())
	if err != nil {
		return nil, err
	}
	var detail RecipeDetail
	if err := store.Decode(doc, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (o *Orchestrator) paths(userID string) store.Paths {
	return store.Paths{AppID: o.appID, UserID: userID}
}

package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/shared"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/store"

	"go.uber.org/zap"
)

// Mode selects full generation or partial regeneration.
type Mode int

const (
	ModeFull Mode = iota
	ModeRegenerate
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeRegenerate:
		return "regenerate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Request carries the inputs of one generation.
type Request struct {
	UserID string
	// Query is the free-text preference. Required in ModeFull.
	Query string
	// Selection holds the meal indices to replace in ModeRegenerate. It is
	// cleared when the call returns, whatever the outcome.
	Selection *Selection
	// Constraint is an optional extra instruction for regenerated meals.
	Constraint string
	// Favorites are meal names the model must include. Empty disables injection.
	Favorites []string
}

// UsageRecorder persists token usage. metrics.Store satisfies it.
type UsageRecorder interface {
	RecordMeta(meta shared.AgentMeta) error
}

// Orchestrator produces new weekly plans. It allows one generation per user
// at a time.
type Orchestrator struct {
	gen     llm.Generator
	gw      store.Gateway
	appID   string
	guard   *Guard
	usage   UsageRecorder
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

// WithUsageRecorder records token usage of every successful generation.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// WithCollectors reports generations to Prometheus.
func WithCollectors(c *metrics.Collectors) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// NewOrchestrator creates a plan orchestrator.
func NewOrchestrator(gen llm.Generator, gw store.Gateway, appID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:    gen,
		gw:     gw,
		appID:  appID,
		guard:  NewGuard(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Repository returns the plan repository of userID.
func (o *Orchestrator) Repository(userID string) *Repository {
	return NewRepository(o.gw, store.Paths{AppID: o.appID, UserID: userID})
}

// Busy reports whether a generation for userID is running.
func (o *Orchestrator) Busy(userID string) bool {
	return o.guard.Busy(userID)
}

// Generate builds a plan, reconciles its shopping list against the current
// plan, and stores it as the new current plan. Nothing is written unless the
// response is valid.
func (o *Orchestrator) Generate(ctx context.Context, mode Mode, req Request) (*WeeklyPlan, error) {
	if req.UserID == "" {
		return nil, ErrNoUser
	}
	release, ok := o.guard.TryAcquire(req.UserID)
	if !ok {
		return nil, ErrBusy
	}
	defer func() {
		release()
		if req.Selection != nil {
			req.Selection.Clear()
		}
	}()

	logger := o.logger.With(zap.String("user_id", req.UserID), zap.Stringer("mode", mode))
	repo := o.Repository(req.UserID)

	previous, err := repo.Current(ctx)
	if err != nil && !errors.Is(err, ErrNoPlan) {
		o.persistenceFailed("load_plan", err)
		return nil, err
	}

	var (
		prompt  string
		query   string
		agent   string
		indices []int
	)
	switch mode {
	case ModeFull:
		query = strings.TrimSpace(req.Query)
		if query == "" {
			return nil, ErrEmptyQuery
		}
		if len(req.Favorites) > PlanDays {
			return nil, fmt.Errorf("%w: %d favorites for %d days", ErrTooManyFavorites, len(req.Favorites), PlanDays)
		}
		agent = shared.AgentPlanner
		prompt, err = buildPlanPrompt(query, req.Favorites)
	case ModeRegenerate:
		if previous == nil {
			return nil, ErrNoPlan
		}
		indices, err = selectedIndices(req.Selection, len(previous.WeeklyPlan))
		if err != nil {
			return nil, err
		}
		if len(req.Favorites) > len(indices) {
			return nil, fmt.Errorf("%w: %d favorites for %d days", ErrTooManyFavorites, len(req.Favorites), len(indices))
		}
		query = previous.InitialQuery
		agent = shared.AgentRegenerator
		prompt, err = buildRegeneratePrompt(previous, indices, req.Constraint, req.Favorites)
	default:
		return nil, fmt.Errorf("unknown generation mode: %v", mode)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("generating plan")
	start := time.Now()
	resp, err := o.gen.Generate(ctx, llm.GenerateRequest{
		SystemInstruction: systemPrompt,
		Prompt:            prompt,
		Schema:            PlanSchema(),
	})
	latency := time.Since(start)
	o.metrics.ObserveGeneration(agent, err, latency, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			err = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		logger.Warn("plan generation failed", zap.Error(err))
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}
	o.recordUsage(logger, shared.AgentMeta{AgentName: agent, Usage: resp.Usage, Latency: latency})

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		logger.Warn("plan response rejected", zap.Error(err))
		return nil, err
	}
	if mode == ModeRegenerate {
		if err := pinKept(plan, previous, indices); err != nil {
			logger.Warn("plan response rejected", zap.Error(err))
			return nil, err
		}
	}

	var previousList []shopping.Item
	if previous != nil {
		previousList = previous.ShoppingList
		if previousList == nil {
			previousList = []shopping.Item{}
		}
	}
	plan.ShoppingList = shopping.Reconcile(plan.ShoppingList, previousList)
	plan.InitialQuery = query

	if err := repo.Save(ctx, plan); err != nil {
		logger.Error("failed to persist plan", zap.Error(err))
		o.persistenceFailed("save_plan", err)
		return nil, err
	}

	logger.Info("plan generated",
		zap.Duration("latency", latency),
		zap.Int("shopping_items", len(plan.ShoppingList)),
	)
	return plan, nil
}

func (o *Orchestrator) persistenceFailed(op string, err error) {
	if errors.Is(err, store.ErrPersistence) {
		o.metrics.ObservePersistenceError(op)
	}
}

func (o *Orchestrator) recordUsage(logger *zap.Logger, meta shared.AgentMeta) {
	if o.usage == nil {
		return
	}
	if err := o.usage.RecordMeta(meta); err != nil {
		logger.Warn("failed to record usage", zap.Error(err))
	}
}

// pinKept restores every entry of previous that was not selected for
// replacement. Only the selected days take the model's answer.
func pinKept(plan, previous *WeeklyPlan, indices []int) error {
	if len(plan.WeeklyPlan) != len(previous.WeeklyPlan) {
		return fmt.Errorf("%w: expected %d meals, got %d", ErrMalformedResponse, len(previous.WeeklyPlan), len(plan.WeeklyPlan))
	}
	replaced := make(map[int]bool, len(indices))
	for _, i := range indices {
		replaced[i] = true
	}
	for i := range plan.WeeklyPlan {
		if !replaced[i] {
			plan.WeeklyPlan[i] = previous.WeeklyPlan[i]
		}
	}
	return nil
}

func selectedIndices(sel *Selection, n int) ([]int, error) {
	if sel == nil {
		return nil, ErrNoSelection
	}
	indices := sel.Indices()
	if len(indices) == 0 {
		return nil, ErrNoSelection
	}
	for _, i := range indices {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: index %d out of range", ErrNoSelection, i)
		}
	}
	return indices, nil
}

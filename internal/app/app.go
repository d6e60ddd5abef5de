// Package app is the application context shared by the CLI and the bot: one
// set of orchestrators and services over an injected persistence gateway,
// plus per-user session state.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"dinnerplan/internal/archive"
	"dinnerplan/internal/clipper"
	"dinnerplan/internal/llm"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/share"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/store"

	"go.uber.org/zap"
)

// MealSourcePlan marks favorites saved from a planned meal.
const MealSourcePlan = "plan"

// ErrSharingDisabled is returned by share operations without a share secret.
var ErrSharingDisabled = errors.New("sharing is disabled")

// Deps are the collaborators of an App.
type Deps struct {
	Generator llm.Generator
	Gateway   store.Gateway
	AppID     string
	// Usage stores token usage. Optional.
	Usage *metrics.Store
	// Collectors reports to Prometheus. Optional.
	Collectors *metrics.Collectors
	// ShareSecret enables plan sharing when set.
	ShareSecret string
	// HTTPClient fetches clipped pages. Optional.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// App holds the application's dependencies.
type App struct {
	gw       store.Gateway
	appID    string
	planner  *planner.Orchestrator
	recipes  *recipe.Orchestrator
	clipper  *clipper.Clipper
	share    *share.Service
	usage    *metrics.Store
	sessions *Sessions
	logger   *zap.Logger

	closers []func() error
}

// New creates an App from its collaborators.
func New(d Deps) (*App, error) {
	if d.Generator == nil || d.Gateway == nil {
		return nil, errors.New("app requires a generator and a gateway")
	}
	if d.AppID == "" {
		return nil, errors.New("app requires an app id")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	planOpts := []planner.Option{planner.WithLogger(logger), planner.WithCollectors(d.Collectors)}
	recipeOpts := []recipe.Option{recipe.WithLogger(logger), recipe.WithCollectors(d.Collectors)}
	clipOpts := []clipper.Option{clipper.WithLogger(logger)}
	if d.Usage != nil {
		planOpts = append(planOpts, planner.WithUsageRecorder(d.Usage))
		recipeOpts = append(recipeOpts, recipe.WithUsageRecorder(d.Usage))
		clipOpts = append(clipOpts, clipper.WithUsageRecorder(d.Usage))
	}
	if d.HTTPClient != nil {
		clipOpts = append(clipOpts, clipper.WithHTTPClient(d.HTTPClient))
	}

	a := &App{
		gw:       d.Gateway,
		appID:    d.AppID,
		planner:  planner.NewOrchestrator(d.Generator, d.Gateway, d.AppID, planOpts...),
		recipes:  recipe.NewOrchestrator(d.Generator, d.Gateway, d.AppID, recipeOpts...),
		clipper:  clipper.NewClipper(d.Generator, clipOpts...),
		usage:    d.Usage,
		sessions: NewSessions(),
		logger:   logger,
	}

	if d.ShareSecret != "" {
		svc, err := share.NewService(d.Gateway, d.AppID, d.ShareSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to create share service: %w", err)
		}
		a.share = svc
	}
	return a, nil
}

// Close releases resources opened by Bootstrap, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Session returns the session of userID.
func (a *App) Session(userID string) *Session {
	return a.sessions.Get(userID)
}

func (a *App) paths(userID string) store.Paths {
	return store.Paths{AppID: a.appID, UserID: userID}
}

// Plans returns the plan repository of userID.
func (a *App) Plans(userID string) *planner.Repository {
	return a.planner.Repository(userID)
}

// Favorites returns the favorites of userID.
func (a *App) Favorites(userID string) *recipe.Favorites {
	return recipe.NewFavorites(a.gw, a.paths(userID))
}

// Archive returns the plan archive of userID.
func (a *App) Archive(userID string) *archive.Service {
	return archive.NewService(a.gw, a.paths(userID), a.logger)
}

// Busy reports whether a plan generation for userID is running.
func (a *App) Busy(userID string) bool {
	return a.planner.Busy(userID)
}

// CurrentPlan returns the current plan of userID, or planner.ErrNoPlan.
func (a *App) CurrentPlan(ctx context.Context, userID string) (*planner.WeeklyPlan, error) {
	return a.Plans(userID).Current(ctx)
}

// GeneratePlan creates a new weekly plan from query.
func (a *App) GeneratePlan(ctx context.Context, userID, query string) (*planner.WeeklyPlan, error) {
	favorites, err := a.injectedFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.planner.Generate(ctx, planner.ModeFull, planner.Request{
		UserID:    userID,
		Query:     query,
		Favorites: favorites,
	})
}

// ToggleMealSelection marks or unmarks the meal at index for regeneration and
// returns the selection afterwards.
func (a *App) ToggleMealSelection(userID string, index int) []int {
	sel := a.Session(userID).Selection
	sel.Toggle(index)
	return sel.Indices()
}

// Regenerate replaces the selected meals of the current plan. The selection
// is cleared when generation finishes.
func (a *App) Regenerate(ctx context.Context, userID, constraint string) (*planner.WeeklyPlan, error) {
	favorites, err := a.injectedFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.planner.Generate(ctx, planner.ModeRegenerate, planner.Request{
		UserID:     userID,
		Selection:  a.Session(userID).Selection,
		Constraint: constraint,
		Favorites:  favorites,
	})
}

// SwapMeals exchanges two meals of the current plan.
func (a *App) SwapMeals(ctx context.Context, userID string, i, j int) (*planner.WeeklyPlan, error) {
	return a.Plans(userID).SwapMeals(ctx, i, j)
}

// injectedFavorites returns the picked favorites that still exist when the
// user has favorites injection on.
func (a *App) injectedFavorites(ctx context.Context, userID string) ([]string, error) {
	sess := a.Session(userID)
	if !sess.UseFavorites() {
		return nil, nil
	}
	picked := sess.FavoriteSelection()
	if len(picked) == 0 {
		return nil, nil
	}
	names, err := a.Favorites(userID).Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	return slices.DeleteFunc(picked, func(n string) bool { return !slices.Contains(names, n) }), nil
}

// ToggleFavoriteSelection picks or unpicks the favorite called name for
// injection into new plans and returns the picked names afterwards. Names
// match case-insensitively. At most planner.PlanDays favorites can be picked.
func (a *App) ToggleFavoriteSelection(ctx context.Context, userID, name string) ([]string, error) {
	names, err := a.Favorites(userID).Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	i := slices.IndexFunc(names, func(n string) bool { return strings.EqualFold(n, strings.TrimSpace(name)) })
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", recipe.ErrNoFavorite, name)
	}
	sess := a.Session(userID)
	picked := sess.FavoriteSelection()
	if !slices.Contains(picked, names[i]) && len(picked) >= planner.PlanDays {
		return nil, fmt.Errorf("%w: at most %d can be picked", planner.ErrTooManyFavorites, planner.PlanDays)
	}
	sess.ToggleFavorite(names[i])
	return sess.FavoriteSelection(), nil
}

// Cooking is a generated recipe with its timeline laid out on the clock.
type Cooking struct {
	Detail   *recipe.RecipeDetail
	Schedule []recipe.ScheduledStep
}

// Cook generates the recipe of the meal at index in the current plan, served
// at dinnerTime (HH:MM). An empty dinnerTime uses the session default.
func (a *App) Cook(ctx context.Context, userID string, index int, dinnerTime string) (*Cooking, error) {
	sess := a.Session(userID)
	if dinnerTime == "" {
		dinnerTime = sess.DinnerTime()
	}
	plan, err := a.CurrentPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	detail, err := a.recipes.GenerateDetail(ctx, userID, plan, index, dinnerTime)
	if err != nil {
		return nil, err
	}
	sess.SetDinnerTime(dinnerTime)

	if fav, err := a.Favorites(userID).Find(ctx, detail.RecipeName); err != nil {
		a.logger.Warn("failed to look up favorite", zap.Error(err))
	} else if fav != nil {
		if err := a.Favorites(userID).MarkUsed(ctx, fav.ID); err != nil {
			a.logger.Warn("failed to mark favorite used", zap.Error(err))
		}
	}

	steps, err := recipe.Schedule(detail)
	if err != nil {
		return nil, err
	}
	return &Cooking{Detail: detail, Schedule: steps}, nil
}

// CurrentRecipe returns the recipe last generated for userID.
func (a *App) CurrentRecipe(ctx context.Context, userID string) (*recipe.RecipeDetail, error) {
	return a.recipes.Current(ctx, userID)
}

// ToggleFavorite adds the current recipe to favorites or removes it. It
// reports whether the recipe is a favorite afterwards.
func (a *App) ToggleFavorite(ctx context.Context, userID string) (bool, error) {
	detail, err := a.CurrentRecipe(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, recipe.ErrNoMealSelected
	}
	if err != nil {
		return false, err
	}
	return a.Favorites(userID).Toggle(ctx, *detail, MealSourcePlan)
}

// Clip imports the recipe at url into the user's favorites.
func (a *App) Clip(ctx context.Context, userID, url string) (*recipe.Favorite, error) {
	return a.clipper.ClipURL(ctx, url, a.Favorites(userID))
}

// AddShoppingItem appends an unchecked item to the current shopping list.
func (a *App) AddShoppingItem(ctx context.Context, userID string, item shopping.Item) ([]shopping.Item, error) {
	return a.Plans(userID).EditShoppingList(ctx, func(list []shopping.Item) ([]shopping.Item, error) {
		return shopping.Add(list, item)
	})
}

// RemoveShoppingItem deletes the item at index.
func (a *App) RemoveShoppingItem(ctx context.Context, userID string, index int) ([]shopping.Item, error) {
	return a.Plans(userID).EditShoppingList(ctx, func(list []shopping.Item) ([]shopping.Item, error) {
		return shopping.Remove(list, index)
	})
}

// ToggleShoppingItem flips the checked state of the item at index.
func (a *App) ToggleShoppingItem(ctx context.Context, userID string, index int) ([]shopping.Item, error) {
	return a.Plans(userID).EditShoppingList(ctx, func(list []shopping.Item) ([]shopping.Item, error) {
		return shopping.Toggle(list, index)
	})
}

// ArchiveCurrent archives the current plan.
func (a *App) ArchiveCurrent(ctx context.Context, userID string) (*archive.Plan, error) {
	plan, err := a.CurrentPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.Archive(userID).Archive(ctx, plan)
}

// ShareCurrent publishes the current plan and returns its share token.
func (a *App) ShareCurrent(ctx context.Context, userID string) (string, error) {
	if a.share == nil {
		return "", ErrSharingDisabled
	}
	plan, err := a.CurrentPlan(ctx, userID)
	if err != nil {
		return "", err
	}
	return a.share.Share(ctx, userID, plan)
}

// OpenShared loads a shared plan from its token.
func (a *App) OpenShared(ctx context.Context, token string) (*share.SharedPlan, error) {
	if a.share == nil {
		return nil, ErrSharingDisabled
	}
	return a.share.Open(ctx, token)
}

// Usage returns daily token usage of the last days, or nil without a usage store.
func (a *App) Usage(days int) ([]metrics.DailyUsage, error) {
	if a.usage == nil {
		return nil, nil
	}
	return a.usage.GetDailyUsage(days)
}

// CleanupUsage deletes usage rows older than days.
func (a *App) CleanupUsage(days int) (int64, error) {
	if a.usage == nil {
		return 0, nil
	}
	return a.usage.Cleanup(days)
}

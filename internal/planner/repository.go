package planner

import (
	"context"
	"errors"
	"fmt"

	"dinnerplan/internal/shopping"
	"dinnerplan/internal/store"
)

// Repository reads and writes one user's current plan.
type Repository struct {
	gw   store.Gateway
	path string
}

// NewRepository creates a repository for the user identified by paths.
func NewRepository(gw store.Gateway, paths store.Paths) *Repository {
	return &Repository{gw: gw, path: paths.CurrentPlan()}
}

// Current returns the current plan, or ErrNoPlan.
func (r *Repository) Current(ctx context.Context) (*WeeklyPlan, error) {
	doc, err := r.gw.GetDocument(ctx, r.path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPlan
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current plan: %w", err)
	}
	var plan WeeklyPlan
	if err := store.Decode(doc, &plan); err != nil {
		return nil, fmt.Errorf("failed to load current plan: %w", err)
	}
	return &plan, nil
}

// Save replaces the current plan.
func (r *Repository) Save(ctx context.Context, plan *WeeklyPlan) error {
	doc, err := store.Encode(plan)
	if err != nil {
		return err
	}
	if err := r.gw.SetDocument(ctx, r.path, doc); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// Clear deletes the current plan.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.gw.DeleteDocument(ctx, r.path); err != nil {
		return fmt.Errorf("failed to clear plan: %w", err)
	}
	return nil
}

// UpdateShoppingList patches only the shopping list of the current plan.
func (r *Repository) UpdateShoppingList(ctx context.Context, list []shopping.Item) error {
	if list == nil {
		list = []shopping.Item{}
	}
	encoded, err := store.Encode(struct {
		ShoppingList []shopping.Item `json:"shoppingList"`
	}{list})
	if err != nil {
		return err
	}
	err = r.gw.UpdateDocument(ctx, r.path, encoded)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoPlan
	}
	if err != nil {
		return fmt.Errorf("failed to update shopping list: %w", err)
	}
	return nil
}

// EditShoppingList applies edit to the current list and stores the result.
func (r *Repository) EditShoppingList(ctx context.Context, edit func([]shopping.Item) ([]shopping.Item, error)) ([]shopping.Item, error) {
	plan, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	list, err := edit(plan.ShoppingList)
	if err != nil {
		return nil, err
	}
	if err := r.UpdateShoppingList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// SwapMeals exchanges the meals at i and j. Day labels stay in place so the
// week still reads Monday to Sunday.
func (r *Repository) SwapMeals(ctx context.Context, i, j int) (*WeeklyPlan, error) {
	plan, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	n := len(plan.WeeklyPlan)
	if i < 0 || i >= n || j < 0 || j >= n {
		return nil, fmt.Errorf("meal index out of range: %d, %d (plan has %d meals)", i, j, n)
	}
	a, b := plan.WeeklyPlan[i], plan.WeeklyPlan[j]
	a.Day, b.Day = b.Day, a.Day
	plan.WeeklyPlan[i], plan.WeeklyPlan[j] = b, a

	encoded, err := store.Encode(struct {
		WeeklyPlan []MealEntry `json:"weeklyPlan"`
	}{plan.WeeklyPlan})
	if err != nil {
		return nil, err
	}
	if err := r.gw.UpdateDocument(ctx, r.path, encoded); err != nil {
		return nil, fmt.Errorf("failed to swap meals: %w", err)
	}
	return plan, nil
}

// PlanEvent is one observed state of the current plan. Plan is nil when the
// user has no plan.
type PlanEvent struct {
	Plan *WeeklyPlan
	Err  error
}

// Subscribe streams the current plan and every later change until ctx is done.
func (r *Repository) Subscribe(ctx context.Context) (<-chan PlanEvent, error) {
	events, err := r.gw.SubscribeDocument(ctx, r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to plan: %w", err)
	}
	out := make(chan PlanEvent)
	go func() {
		defer close(out)
		for ev := range events {
			pe := PlanEvent{Err: ev.Err}
			if ev.Err == nil && ev.Exists {
				var plan WeeklyPlan
				if err := store.Decode(ev.Doc, &plan); err != nil {
					pe.Err = err
				} else {
					pe.Plan = &plan
				}
			}
			select {
			case out <- pe:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

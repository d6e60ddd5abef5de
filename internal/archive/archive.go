// Package archive keeps snapshots of past weekly plans.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"dinnerplan/internal/planner"
	"dinnerplan/internal/store"

	"go.uber.org/zap"
)

// ErrDuplicate is returned when the same meal sequence is already archived.
var ErrDuplicate = errors.New("plan is already archived")

// Plan is an archived weekly plan.
type Plan struct {
	ID string `json:"-"`
	planner.WeeklyPlan
	SavedAt time.Time `json:"savedAt"`
}

// Service archives, lists and restores one user's plans.
type Service struct {
	gw     store.Gateway
	path   string
	repo   *planner.Repository
	logger *zap.Logger
}

// NewService creates the archive of the user identified by paths.
func NewService(gw store.Gateway, paths store.Paths, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gw:     gw,
		path:   paths.Archive(),
		repo:   planner.NewRepository(gw, paths),
		logger: logger.With(zap.String("user_id", paths.UserID)),
	}
}

// Archive stores a snapshot of plan. A plan whose meals serialize to the same
// JSON as an archived plan's meals is rejected with ErrDuplicate.
func (s *Service) Archive(ctx context.Context, plan *planner.WeeklyPlan) (*Plan, error) {
	if plan == nil || len(plan.WeeklyPlan) == 0 {
		return nil, planner.ErrNoPlan
	}
	meals, err := json.Marshal(plan.WeeklyPlan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode meals: %w", err)
	}

	existing, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		other, err := json.Marshal(p.WeeklyPlan.WeeklyPlan)
		if err != nil {
			return nil, fmt.Errorf("failed to encode meals: %w", err)
		}
		if bytes.Equal(meals, other) {
			s.logger.Info("archive skipped, duplicate plan", zap.String("archive_id", p.ID))
			return nil, ErrDuplicate
		}
	}

	doc, err := store.Encode(plan)
	if err != nil {
		return nil, err
	}
	id, err := s.gw.AddToCollection(ctx, s.path, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to archive plan: %w", err)
	}
	s.logger.Info("plan archived", zap.String("archive_id", id))
	return &Plan{ID: id, WeeklyPlan: *plan, SavedAt: time.Now().UTC()}, nil
}

// List returns the archived plans, newest first.
func (s *Service) List(ctx context.Context) ([]Plan, error) {
	entries, err := s.gw.ListCollection(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return decodePlans(entries)
}

// Get returns one archived plan.
func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	doc, err := s.gw.GetDocument(ctx, store.DocPath(s.path, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load archived plan %s: %w", id, err)
	}
	p := Plan{ID: id}
	if err := store.Decode(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Restore makes an archived plan the current plan, replacing whatever is
// there. Shopping list ticks are restored as archived.
func (s *Service) Restore(ctx context.Context, id string) (*planner.WeeklyPlan, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	plan := p.WeeklyPlan
	if err := s.repo.Save(ctx, &plan); err != nil {
		return nil, err
	}
	s.logger.Info("archived plan restored", zap.String("archive_id", id))
	return &plan, nil
}

// Delete removes an archived plan.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.gw.DeleteDocument(ctx, store.DocPath(s.path, id)); err != nil {
		return fmt.Errorf("failed to delete archived plan: %w", err)
	}
	return nil
}

// Event is one observed state of the archive, newest first.
type Event struct {
	Plans []Plan
	Err   error
}

// Subscribe streams the archive after every change until ctx is done.
func (s *Service) Subscribe(ctx context.Context) (<-chan Event, error) {
	events, err := s.gw.SubscribeCollection(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to archive: %w", err)
	}
	out := make(chan Event)
	go func() {
		defer close(out)
		for ev := range events {
			ae := Event{Err: ev.Err}
			if ev.Err == nil {
				ae.Plans, ae.Err = decodePlans(ev.Entries)
			}
			select {
			case out <- ae:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodePlans(entries []store.Entry) ([]Plan, error) {
	plans := make([]Plan, 0, len(entries))
	for _, e := range entries {
		p := Plan{ID: e.ID}
		if err := store.Decode(e.Doc, &p); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	slices.Reverse(plans)
	return plans, nil
}

package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// GoalItemSpec describes an item to add to a goal.
type GoalItemSpec struct {
	Identifier  string
	Kind        domain.ItemKind
	DisplayName string
}

// GoalService manages append-only goals.
type GoalService struct {
	store  domain.GoalStore
	clock  domain.Clock
	logger *zap.Logger
}

// NewGoalService creates a goal manager.
func NewGoalService(store domain.GoalStore, clock domain.Clock, logger *zap.Logger) *GoalService {
	return &GoalService{store: store, clock: clock, logger: logger}
}

// Create starts a goal now.
func (s *GoalService) Create(ctx context.Context, name string, durationDays int, challenge domain.Challenge, items ...GoalItemSpec) (*domain.Goal, error) {
	if name == "" || durationDays <= 0 {
		return nil, fmt.Errorf("%w: goal needs a name and a positive duration", domain.ErrInvalidDefinition)
	}
	if err := challenge.Validate(); err != nil {
		return nil, err
	}
	g := domain.Goal{
		ID:           uuid.New().String(),
		Name:         name,
		Challenge:    challenge,
		StartedAt:    s.clock.Now(),
		DurationDays: durationDays,
	}
	for _, spec := range items {
		item, err := newGoalItem(g.ID, spec)
		if err != nil {
			return nil, err
		}
		g.Items = append(g.Items, item)
	}
	if err := s.store.CreateGoal(ctx, g); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	s.logger.Info("goal created",
		zap.String("goal", g.ID),
		zap.String("name", name),
		zap.Int("days", durationDays),
		zap.Int("items", len(g.Items)))
	return &g, nil
}

func newGoalItem(goalID string, spec GoalItemSpec) (domain.GoalItem, error) {
	if !spec.Kind.Valid() {
		return domain.GoalItem{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDefinition, spec.Kind)
	}
	id := domain.NormalizeIdentifier(spec.Identifier, spec.Kind)
	if id == "" {
		return domain.GoalItem{}, fmt.Errorf("%w: empty identifier", domain.ErrInvalidDefinition)
	}
	return domain.GoalItem{
		ID:          uuid.New().String(),
		GoalID:      goalID,
		Identifier:  id,
		Kind:        spec.Kind,
		DisplayName: spec.DisplayName,
	}, nil
}

// AddItem appends an item to a running goal.
func (s *GoalService) AddItem(ctx context.Context, goalID string, spec GoalItemSpec) (*domain.GoalItem, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("get goal %s: %w", goalID, err)
	}
	if g.IsOver(s.clock.Now()) {
		return nil, fmt.Errorf("%w: goal %s has ended", domain.ErrInvalidDefinition, goalID)
	}
	item, err := newGoalItem(goalID, spec)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddGoalItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add goal item: %w", err)
	}
	s.logger.Info("goal item added", zap.String("goal", goalID), zap.String("identifier", item.Identifier))
	return &item, nil
}

// RemoveItem always fails: goals are append-only.
func (s *GoalService) RemoveItem(_ context.Context, goalID, itemID string) error {
	return fmt.Errorf("%w: items of goal %s cannot be removed", domain.ErrGoalLocked, goalID)
}

// Delete removes a goal whose end time has passed.
func (s *GoalService) Delete(ctx context.Context, goalID string) error {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("get goal %s: %w", goalID, err)
	}
	now := s.clock.Now()
	if !g.IsOver(now) {
		return fmt.Errorf("%w: ends %s", domain.ErrGoalLocked, g.EndsAt().Format("2006-01-02 15:04"))
	}
	if !g.Completed {
		if _, err := s.store.CompleteExpiredGoals(ctx, now); err != nil {
			return fmt.Errorf("complete goal: %w", err)
		}
	}
	if err := s.store.DeleteGoal(ctx, goalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	s.logger.Info("goal deleted", zap.String("goal", goalID))
	return nil
}

// List returns all goals.
func (s *GoalService) List(ctx context.Context) ([]domain.Goal, error) {
	return s.store.ListGoals(ctx)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// BlockService manages ad-hoc blocked items.
type BlockService struct {
	store  domain.BlockedItemStore
	clock  domain.Clock
	logger *zap.Logger
}

// NewBlockService creates a block list manager.
func NewBlockService(store domain.BlockedItemStore, clock domain.Clock, logger *zap.Logger) *BlockService {
	return &BlockService{store: store, clock: clock, logger: logger}
}

// Add blocks identifier. A zero ttl blocks permanently.
func (s *BlockService) Add(ctx context.Context, identifier string, kind domain.ItemKind, challenge domain.Challenge, ttl time.Duration) (*domain.BlockedItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDefinition, kind)
	}
	id := domain.NormalizeIdentifier(identifier, kind)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", domain.ErrInvalidDefinition)
	}
	if err := challenge.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if _, err := s.store.DeleteExpiredBlockedItems(ctx, now); err != nil {
		return nil, fmt.Errorf("sweep expired blocks: %w", err)
	}
	existing, err := s.store.FindBlockedItem(ctx, id, kind, domain.MatchExact, now)
	if err != nil {
		return nil, fmt.Errorf("find blocked item: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyBlocked, id)
	}

	item := domain.BlockedItem{
		ID:         uuid.New().String(),
		Identifier: id,
		Kind:       kind,
		Challenge:  challenge,
		CreatedAt:  now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		item.ExpiresAt = &exp
	}
	if err := s.store.AddBlockedItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add blocked item: %w", err)
	}
	s.logger.Info("blocked item added",
		zap.String("identifier", id),
		zap.String("kind", string(kind)),
		zap.String("challenge", challenge.String()))
	return &item, nil
}

// Remove unblocks identifier.
func (s *BlockService) Remove(ctx context.Context, identifier string, kind domain.ItemKind) error {
	id := domain.NormalizeIdentifier(identifier, kind)
	if err := s.store.RemoveBlockedItem(ctx, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	s.logger.Info("blocked item removed", zap.String("identifier", id))
	return nil
}

// List returns every stored item.
func (s *BlockService) List(ctx context.Context) ([]domain.BlockedItem, error) {
	return s.store.ListBlockedItems(ctx)
}

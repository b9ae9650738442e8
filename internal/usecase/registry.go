package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const defaultSweepInterval = 30 * time.Second

// RegistryStore is the slice of the store the BlockRegistry reads.
type RegistryStore interface {
	domain.BlockedItemStore
	domain.GoalStore
	domain.ScheduleStore
	domain.UnlockStore
}

// BlockRegistry resolves an identifier against ad-hoc blocks, goals and
// per-app schedules. Precedence: ad-hoc > goal > schedule. A temporary unlock
// for the observed or matched identifier suppresses any decision.
//
// Store errors for one source are logged and that source counts as no match.
type BlockRegistry struct {
	store  RegistryStore
	clock  domain.Clock
	logger *zap.Logger

	sweepInterval time.Duration
	mu            sync.Mutex
	lastSweep     time.Time
}

// NewBlockRegistry creates a registry over store.
func NewBlockRegistry(store RegistryStore, clock domain.Clock, logger *zap.Logger) *BlockRegistry {
	return &BlockRegistry{
		store:         store,
		clock:         clock,
		logger:        logger,
		sweepInterval: defaultSweepInterval,
	}
}

// Resolve returns the winning block for identifier, or nil when it is allowed.
func (r *BlockRegistry) Resolve(ctx context.Context, identifier string, kind domain.ItemKind) *domain.BlockDecision {
	id := domain.NormalizeIdentifier(identifier, kind)
	if id == "" {
		return nil
	}
	now := r.clock.Now()
	r.sweep(ctx, now)

	decision := r.match(ctx, id, kind, now)
	if decision == nil {
		return nil
	}
	if r.unlocked(ctx, now, id, decision.Identifier) {
		r.logger.Debug("block suppressed by temporary unlock",
			zap.String("identifier", id),
			zap.String("source", string(decision.Source)))
		return nil
	}
	return decision
}

func modesFor(kind domain.ItemKind) []domain.MatchMode {
	if kind == domain.KindWebsite {
		return []domain.MatchMode{domain.MatchExact, domain.MatchContains}
	}
	return []domain.MatchMode{domain.MatchExact}
}

func (r *BlockRegistry) match(ctx context.Context, id string, kind domain.ItemKind, now time.Time) *domain.BlockDecision {
	if d := r.matchAdHoc(ctx, id, kind, now); d != nil {
		return d
	}
	if d := r.matchGoal(ctx, id, kind, now); d != nil {
		return d
	}
	return r.matchSchedule(ctx, id, kind, now)
}

func (r *BlockRegistry) matchAdHoc(ctx context.Context, id string, kind domain.ItemKind, now time.Time) *domain.BlockDecision {
	for _, mode := range modesFor(kind) {
		item, err := r.store.FindBlockedItem(ctx, id, kind, mode, now)
		if err != nil {
			r.logger.Warn("blocked item lookup failed, treating as no match",
				zap.String("identifier", id), zap.Error(err))
			return nil
		}
		if item != nil {
			return &domain.BlockDecision{
				Source:      domain.SourceAdHoc,
				SourceID:    item.ID,
				Identifier:  item.Identifier,
				Kind:        item.Kind,
				DisplayName: item.Identifier,
				Challenge:   item.Challenge,
			}
		}
	}
	return nil
}

func (r *BlockRegistry) matchGoal(ctx context.Context, id string, kind domain.ItemKind, now time.Time) *domain.BlockDecision {
	for _, mode := range modesFor(kind) {
		item, goal, err := r.store.FindGoalItem(ctx, id, kind, mode, now)
		if err != nil {
			r.logger.Warn("goal item lookup failed, treating as no match",
				zap.String("identifier", id), zap.Error(err))
			return nil
		}
		if item != nil && goal != nil {
			name := item.DisplayName
			if name == "" {
				name = item.Identifier
			}
			return &domain.BlockDecision{
				Source:      domain.SourceGoal,
				SourceID:    goal.ID,
				Identifier:  item.Identifier,
				Kind:        item.Kind,
				DisplayName: name,
				Challenge:   goal.Challenge,
			}
		}
	}
	return nil
}

func (r *BlockRegistry) matchSchedule(ctx context.Context, id string, kind domain.ItemKind, now time.Time) *domain.BlockDecision {
	schedules, err := r.store.ListSchedules(ctx)
	if err != nil {
		r.logger.Warn("schedule lookup failed, treating as no match",
			zap.String("identifier", id), zap.Error(err))
		return nil
	}
	for _, mode := range modesFor(kind) {
		for _, s := range schedules {
			if s.WholeDevice || s.Kind != kind || !s.ActiveAt(now) {
				continue
			}
			for _, stored := range s.Identifiers {
				stored = domain.NormalizeIdentifier(stored, kind)
				if stored == id || (mode == domain.MatchContains && domain.IdentifiersOverlap(id, stored)) {
					return &domain.BlockDecision{
						Source:      domain.SourceSchedule,
						SourceID:    s.ID,
						Identifier:  stored,
						Kind:        kind,
						DisplayName: s.Name,
						Challenge:   s.Challenge,
					}
				}
			}
		}
	}
	return nil
}

func (r *BlockRegistry) unlocked(ctx context.Context, now time.Time, ids ...string) bool {
	for _, id := range ids {
		u, err := r.store.ActiveUnlock(ctx, id, now)
		if err != nil {
			r.logger.Warn("unlock lookup failed", zap.String("identifier", id), zap.Error(err))
			continue
		}
		if u != nil {
			return true
		}
	}
	return false
}

// sweep deletes expired ad-hoc items and unlocks and completes ended goals.
// Lookups already filter by now, so skipping a sweep never changes a decision.
func (r *BlockRegistry) sweep(ctx context.Context, now time.Time) {
	r.mu.Lock()
	if !r.lastSweep.IsZero() && now.Sub(r.lastSweep) < r.sweepInterval {
		r.mu.Unlock()
		return
	}
	r.lastSweep = now
	r.mu.Unlock()

	if n, err := r.store.DeleteExpiredBlockedItems(ctx, now); err != nil {
		r.logger.Warn("expired block sweep failed", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("removed expired blocks", zap.Int("count", n))
	}
	if n, err := r.store.CompleteExpiredGoals(ctx, now); err != nil {
		r.logger.Warn("goal completion sweep failed", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("completed goals", zap.Int("count", n))
	}
	if _, err := r.store.DeleteExpiredUnlocks(ctx, now); err != nil {
		r.logger.Warn("unlock sweep failed", zap.Error(err))
	}
}

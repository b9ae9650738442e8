package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// TapCounter counts taps toward a fixed target. It completes exactly on the
// target tap; further taps are ignored.
type TapCounter struct {
	mu     sync.Mutex
	target int
	count  int
}

// NewTapCounter creates a counter for target taps.
func NewTapCounter(target int) *TapCounter {
	if target < 1 {
		target = 1
	}
	return &TapCounter{target: target}
}

// Tap registers one tap and reports whether the target is reached.
func (c *TapCounter) Tap() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count < c.target {
		c.count++
	}
	return c.count == c.target
}

// Remaining returns taps left.
func (c *TapCounter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target - c.count
}

// Count returns taps so far.
func (c *TapCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset zeroes the counter.
func (c *TapCounter) Reset() {
	c.mu.Lock()
	c.count = 0
	c.mu.Unlock()
}

// UnlockMode selects what a completed challenge grants.
type UnlockMode int

const (
	// UnlockTemporary suppresses the block for the configured window.
	UnlockTemporary UnlockMode = iota
	// UnlockPermanent removes an ad-hoc block. Goals and schedules fall back
	// to a temporary unlock.
	UnlockPermanent
)

// ChallengeConfig holds challenge configuration.
type ChallengeConfig struct {
	TemporaryUnlock time.Duration
	BypassTaps      int
}

// DefaultChallengeConfig returns default challenge configuration.
func DefaultChallengeConfig() ChallengeConfig {
	return ChallengeConfig{TemporaryUnlock: 15 * time.Minute, BypassTaps: 100}
}

// ChallengeStore is the slice of the store the ChallengeEngine writes.
type ChallengeStore interface {
	domain.TimerStore
	domain.UnlockStore
	domain.BlockedItemStore
}

// ChallengeEngine runs wait and tap challenges for ad-hoc blocks.
// Wait timers are durable; the remaining time is always recomputed from the
// stored start so it survives restarts.
type ChallengeEngine struct {
	config ChallengeConfig
	store  ChallengeStore
	clock  domain.Clock
	logger *zap.Logger

	mu   sync.Mutex
	taps map[string]*TapCounter
}

// NewChallengeEngine creates a challenge engine.
func NewChallengeEngine(config ChallengeConfig, store ChallengeStore, clock domain.Clock, logger *zap.Logger) *ChallengeEngine {
	return &ChallengeEngine{
		config: config,
		store:  store,
		clock:  clock,
		logger: logger,
		taps:   make(map[string]*TapCounter),
	}
}

// StartWait starts the wait timer for identifier. A running timer is
// returned unchanged.
func (e *ChallengeEngine) StartWait(ctx context.Context, identifier string, minutes int) (*domain.TimerChallengeState, error) {
	if minutes < 1 {
		return nil, fmt.Errorf("%w: wait must be at least one minute", domain.ErrInvalidChallenge)
	}
	existing, err := e.store.GetTimerState(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("get timer: %w", err)
	}
	if existing != nil && existing.Active {
		return existing, nil
	}

	state := domain.TimerChallengeState{
		Identifier: identifier,
		StartedAt:  e.clock.Now(),
		Duration:   time.Duration(minutes) * time.Minute,
		Active:     true,
	}
	if err := e.store.SaveTimerState(ctx, state); err != nil {
		return nil, fmt.Errorf("save timer: %w", err)
	}
	e.logger.Info("wait challenge started",
		zap.String("identifier", identifier),
		zap.Duration("duration", state.Duration))
	return &state, nil
}

// WaitStatus returns the time left on identifier's timer and whether one runs.
func (e *ChallengeEngine) WaitStatus(ctx context.Context, identifier string) (time.Duration, bool, error) {
	state, err := e.store.GetTimerState(ctx, identifier)
	if err != nil {
		return 0, false, err
	}
	if state == nil || !state.Active {
		return 0, false, nil
	}
	return state.Remaining(e.clock.Now()), true, nil
}

// CancelWait discards identifier's timer.
func (e *ChallengeEngine) CancelWait(ctx context.Context, identifier string) error {
	return e.store.ClearTimerState(ctx, identifier)
}

// CompleteWait grants the unlock once the timer has fully elapsed.
func (e *ChallengeEngine) CompleteWait(ctx context.Context, decision domain.BlockDecision, mode UnlockMode) error {
	remaining, running, err := e.WaitStatus(ctx, decision.Identifier)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("%w: no timer running for %s", domain.ErrChallengeIncomplete, decision.Identifier)
	}
	if remaining > 0 {
		return fmt.Errorf("%w: %s left", domain.ErrChallengeIncomplete, remaining.Round(time.Second))
	}
	if err := e.store.ClearTimerState(ctx, decision.Identifier); err != nil {
		return fmt.Errorf("clear timer: %w", err)
	}
	return e.grant(ctx, decision, mode)
}

// BeginTap starts (or returns the running) tap bypass for identifier.
// A target below one uses the configured default.
func (e *ChallengeEngine) BeginTap(identifier string, target int) *TapCounter {
	if target < 1 {
		target = e.config.BypassTaps
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.taps[identifier]; ok {
		return c
	}
	c := NewTapCounter(target)
	e.taps[identifier] = c
	return c
}

// Tap registers one bypass tap. On the final tap the block is unlocked
// temporarily and the counter discarded.
func (e *ChallengeEngine) Tap(ctx context.Context, decision domain.BlockDecision) (int, bool, error) {
	e.mu.Lock()
	c, ok := e.taps[decision.Identifier]
	e.mu.Unlock()
	if !ok {
		return 0, false, fmt.Errorf("%w: no tap challenge for %s", domain.ErrInvalidTransition, decision.Identifier)
	}
	if !c.Tap() {
		return c.Remaining(), false, nil
	}

	e.mu.Lock()
	delete(e.taps, decision.Identifier)
	e.mu.Unlock()
	return 0, true, e.grant(ctx, decision, UnlockTemporary)
}

// CancelTap discards identifier's tap progress.
func (e *ChallengeEngine) CancelTap(identifier string) {
	e.mu.Lock()
	delete(e.taps, identifier)
	e.mu.Unlock()
}

func (e *ChallengeEngine) grant(ctx context.Context, decision domain.BlockDecision, mode UnlockMode) error {
	if mode == UnlockPermanent && decision.Source == domain.SourceAdHoc {
		err := e.store.RemoveBlockedItem(ctx, decision.Identifier)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("remove block: %w", err)
		}
		e.logger.Info("block removed after challenge", zap.String("identifier", decision.Identifier))
		return nil
	}

	until := e.clock.Now().Add(e.config.TemporaryUnlock)
	if err := e.store.GrantUnlock(ctx, domain.TemporaryUnlock{Identifier: decision.Identifier, ExpiresAt: until}); err != nil {
		return fmt.Errorf("grant unlock: %w", err)
	}
	e.logger.Info("temporary unlock granted",
		zap.String("identifier", decision.Identifier),
		zap.String("source", string(decision.Source)),
		zap.Time("until", until))
	return nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// ScheduleService manages schedule definitions.
type ScheduleService struct {
	store  domain.ScheduleStore
	logger *zap.Logger
}

// NewScheduleService creates a schedule service.
func NewScheduleService(store domain.ScheduleStore, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{store: store, logger: logger}
}

// Save validates and stores s, assigning an ID when missing.
func (s *ScheduleService) Save(ctx context.Context, sched domain.Schedule) (*domain.Schedule, error) {
	if sched.Kind == "" && !sched.WholeDevice {
		sched.Kind = domain.KindApp
	}
	if sched.WholeDevice && sched.SessionType == "" {
		sched.SessionType = domain.SessionSleepSchedule
	}
	for i, id := range sched.Identifiers {
		sched.Identifiers[i] = domain.NormalizeIdentifier(id, sched.Kind)
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	s.logger.Info("schedule saved",
		zap.String("id", sched.ID),
		zap.String("name", sched.Name),
		zap.String("window", sched.WindowString()),
		zap.Bool("whole_device", sched.WholeDevice))
	return &sched, nil
}

// Delete removes a schedule. A schedule that owns the running session
// cannot be deleted until that session ends.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sched.IsActive() {
		return fmt.Errorf("%w: schedule %s owns the running session", domain.ErrSessionActive, id)
	}
	return s.store.DeleteSchedule(ctx, id)
}

// List returns all schedules.
func (s *ScheduleService) List(ctx context.Context) ([]domain.Schedule, error) {
	return s.store.ListSchedules(ctx)
}

// ScheduleTrigger starts whole-device sessions when their window opens.
type ScheduleTrigger struct {
	interval  time.Duration
	schedules domain.ScheduleStore
	sessions  *SessionManager
	clock     domain.Clock
	logger    *zap.Logger
}

// NewScheduleTrigger creates a trigger polling every interval.
func NewScheduleTrigger(interval time.Duration, schedules domain.ScheduleStore, sessions *SessionManager, clock domain.Clock, logger *zap.Logger) *ScheduleTrigger {
	return &ScheduleTrigger{
		interval:  interval,
		schedules: schedules,
		sessions:  sessions,
		clock:     clock,
		logger:    logger,
	}
}

// Run checks immediately and then on every interval until ctx is done.
func (t *ScheduleTrigger) Run(ctx context.Context) error {
	t.Tick(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick starts at most one scheduled session. Returns true if one started.
func (t *ScheduleTrigger) Tick(ctx context.Context) (started bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("schedule tick panicked", zap.Any("panic", r))
			started = false
		}
	}()

	if t.sessions.IsPhoneBricked() {
		return false
	}
	schedules, err := t.schedules.ListSchedules(ctx)
	if err != nil {
		t.logger.Warn("failed to list schedules", zap.Error(err))
		return false
	}

	now := t.clock.Now()
	for _, s := range schedules {
		if !s.WholeDevice || !s.ActiveAt(now) {
			continue
		}
		if s.IsActive() {
			// Snapshot left over from a session that ended without clearing it.
			t.logger.Warn("clearing stale schedule snapshot", zap.String("schedule", s.ID))
			if err := t.schedules.SetScheduleActive(ctx, s.ID, nil, nil); err != nil {
				t.logger.Warn("failed to clear schedule snapshot", zap.Error(err))
				continue
			}
		}
		ran, err := t.sessions.RanInCurrentWindow(ctx, s, now)
		if err != nil {
			t.logger.Warn("failed to check schedule history", zap.String("schedule", s.ID), zap.Error(err))
			continue
		}
		if ran {
			continue
		}

		err = t.sessions.StartScheduledSession(ctx, s)
		switch {
		case err == nil:
			t.logger.Info("scheduled session triggered",
				zap.String("schedule", s.ID),
				zap.String("name", s.Name),
				zap.String("window", s.WindowString()))
			return true
		case errors.Is(err, domain.ErrSessionActive):
			return false
		default:
			t.logger.Warn("failed to start scheduled session", zap.String("schedule", s.ID), zap.Error(err))
		}
	}
	return false
}

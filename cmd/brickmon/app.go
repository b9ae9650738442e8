package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/config"
	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/infra"
	"github.com/eliteGoblin/focusd/brick_mon/internal/policy"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
)

// app is the set of services one CLI invocation works with. The CLI writes
// to the store; the watcher picks changes up on its next reconcile.
type app struct {
	cfg    *config.Config
	store  *infra.SQLCipherStore
	clock  domain.Clock
	logger *zap.Logger

	blocks     *usecase.BlockService
	goals      *usecase.GoalService
	schedules  *usecase.ScheduleService
	sessions   *usecase.SessionManager
	essentials *usecase.EssentialAppService
	challenges *usecase.ChallengeEngine
	registry   *usecase.BlockRegistry
}

func newApp(cfg *config.Config, store *infra.SQLCipherStore, clock domain.Clock, logger *zap.Logger) *app {
	cache := usecase.NewEssentialAppCache(store, clock,
		cfg.Essentials.TTL.D(), cfg.Essentials.LookupTimeout.D(), logger.Named("essentials"))
	return &app{
		cfg:        cfg,
		store:      store,
		clock:      clock,
		logger:     logger,
		blocks:     usecase.NewBlockService(store, clock, logger.Named("blocks")),
		goals:      usecase.NewGoalService(store, clock, logger.Named("goals")),
		schedules:  usecase.NewScheduleService(store, logger.Named("schedules")),
		sessions:   usecase.NewSessionManager(usecase.SessionConfig{MonitorInterval: cfg.Session.MonitorInterval.D()}, store, clock, logger.Named("session")),
		essentials: usecase.NewEssentialAppService(store, cache, logger.Named("essentials")),
		challenges: usecase.NewChallengeEngine(usecase.ChallengeConfig{
			TemporaryUnlock: cfg.Challenge.TemporaryUnlock.D(),
			BypassTaps:      cfg.Challenge.BypassTaps,
		}, store, clock, logger.Named("challenge")),
		registry: usecase.NewBlockRegistry(store, clock, logger.Named("registry")),
	}
}

// withApp opens the store, loads the running session and calls fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cliLogger()
	defer func() { _ = logger.Sync() }()

	store, err := infra.OpenStore(cfg.DataDir, infra.NewProcessManager(), policy.NewRegistry().Seeds())
	if err != nil {
		return err
	}
	defer store.Close()

	a := newApp(cfg, store, infra.SystemClock{}, logger)
	defer a.sessions.Close()
	if err := a.sessions.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

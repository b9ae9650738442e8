// Package daemon implements the watcher and guardian daemons.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// Loop is a long-running component that stops when ctx is done.
type Loop interface {
	Run(ctx context.Context) error
}

// SessionReconciler resumes and re-syncs the brick session with the store.
type SessionReconciler interface {
	Init(ctx context.Context) error
	Reconcile(ctx context.Context) error
}

// Spawner starts a detached daemon process for role.
type Spawner func(role domain.DaemonRole) error

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	ReconcileInterval    time.Duration // how often the session is re-read from the store
	HeartbeatInterval    time.Duration
	PartnerCheckInterval time.Duration // how often the guardian is checked
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconcileInterval:    5 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		PartnerCheckInterval: 60 * time.Second,
	}
}

// Watcher is the enforcement daemon. It runs the enforcement loop, the
// schedule trigger, session reconciliation and its own supervision under one
// errgroup: if any of them fails the process exits and the guardian restarts it.
type Watcher struct {
	config   WatcherConfig
	sessions SessionReconciler
	loops    []Loop
	registry domain.DaemonRegistry
	spawn    Spawner
	daemon   domain.Daemon
	logger   *zap.Logger
}

// NewWatcher creates a new watcher daemon.
func NewWatcher(
	config WatcherConfig,
	sessions SessionReconciler,
	registry domain.DaemonRegistry,
	spawn Spawner,
	daemon domain.Daemon,
	logger *zap.Logger,
	loops ...Loop,
) *Watcher {
	return &Watcher{
		config:   config,
		sessions: sessions,
		loops:    loops,
		registry: registry,
		spawn:    spawn,
		daemon:   daemon,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled or a loop fails.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.registry.Register(w.daemon); err != nil {
		w.logger.Error("failed to register watcher", zap.Error(err))
		return err
	}
	w.logger.Info("watcher daemon started",
		zap.Int("pid", w.daemon.PID),
		zap.String("version", w.daemon.AppVersion))

	// A failed resume is retried by the reconcile loop.
	if err := w.sessions.Init(ctx); err != nil {
		w.logger.Error("failed to resume session", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range w.loops {
		l := l
		g.Go(func() error { return l.Run(gctx) })
	}
	g.Go(func() error { return w.reconcileLoop(gctx) })
	g.Go(func() error { return w.superviseLoop(gctx) })

	err := g.Wait()
	w.logger.Info("watcher daemon stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.config.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.sessions.Reconcile(ctx); err != nil {
				w.logger.Warn("session reconcile failed", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) superviseLoop(ctx context.Context) error {
	heartbeat := time.NewTicker(w.config.HeartbeatInterval)
	partner := time.NewTicker(w.config.PartnerCheckInterval)
	defer func() {
		heartbeat.Stop()
		partner.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := w.registry.UpdateHeartbeat(domain.RoleWatcher); err != nil {
				w.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		case <-partner.C:
			restartPartner(w.registry, w.spawn, domain.RoleWatcher, w.logger)
		}
	}
}

// restartPartner spawns the partner of self when it is registered but dead.
func restartPartner(registry domain.DaemonRegistry, spawn Spawner, self domain.DaemonRole, logger *zap.Logger) bool {
	partnerRole := domain.RoleGuardian
	if self == domain.RoleGuardian {
		partnerRole = domain.RoleWatcher
	}

	alive, err := registry.IsPartnerAlive(self)
	if err != nil {
		logger.Debug("partner check failed", zap.Error(err))
		return false
	}
	if alive {
		return false
	}

	logger.Info("partner not running, restarting", zap.String("role", string(partnerRole)))
	if err := spawn(partnerRole); err != nil {
		logger.Error("failed to restart partner", zap.String("role", string(partnerRole)), zap.Error(err))
		return false
	}
	return true
}

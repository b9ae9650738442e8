package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// GuardianConfig holds guardian daemon configuration.
type GuardianConfig struct {
	WatcherCheckInterval time.Duration
	HeartbeatInterval    time.Duration
}

// DefaultGuardianConfig returns default guardian configuration.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		WatcherCheckInterval: 10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
	}
}

// Guardian keeps the watcher alive. A restarted watcher resumes the running
// session from the store, so killing the watcher never ends a session.
type Guardian struct {
	config   GuardianConfig
	registry domain.DaemonRegistry
	spawn    Spawner
	daemon   domain.Daemon
	logger   *zap.Logger
}

// NewGuardian creates a new guardian daemon.
func NewGuardian(
	config GuardianConfig,
	registry domain.DaemonRegistry,
	spawn Spawner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Guardian {
	return &Guardian{
		config:   config,
		registry: registry,
		spawn:    spawn,
		daemon:   daemon,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled.
func (g *Guardian) Run(ctx context.Context) error {
	if err := g.registry.Register(g.daemon); err != nil {
		g.logger.Error("failed to register guardian", zap.Error(err))
		return err
	}
	g.logger.Info("guardian daemon started", zap.Int("pid", g.daemon.PID))

	check := time.NewTicker(g.config.WatcherCheckInterval)
	heartbeat := time.NewTicker(g.config.HeartbeatInterval)
	defer func() {
		check.Stop()
		heartbeat.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("guardian daemon stopping")
			return nil
		case <-check.C:
			g.CheckWatcher()
		case <-heartbeat.C:
			if err := g.registry.UpdateHeartbeat(domain.RoleGuardian); err != nil {
				g.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// CheckWatcher restarts the watcher if it is not running. Returns true when
// a restart was issued.
func (g *Guardian) CheckWatcher() bool {
	return restartPartner(g.registry, g.spawn, domain.RoleGuardian, g.logger)
}

package infra

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// KillRenderer is the desktop overlay strategy. A desktop has no system-wide
// surface to draw over other apps, so "showing" the overlay terminates the
// process that triggered it. Kills run off the caller's goroutine.
type KillRenderer struct {
	pm        domain.ProcessManager
	ownPID    int
	protected map[string]bool
	logger    *zap.Logger

	mu   sync.Mutex
	last domain.OverlayView
	wg   sync.WaitGroup
}

// NewKillRenderer creates a renderer. Processes named in protected are never killed.
func NewKillRenderer(pm domain.ProcessManager, logger *zap.Logger, protected ...string) *KillRenderer {
	r := &KillRenderer{
		pm:        pm,
		ownPID:    pm.GetCurrentPID(),
		protected: make(map[string]bool, len(protected)),
		logger:    logger,
	}
	for _, p := range protected {
		r.protected[strings.ToLower(p)] = true
	}
	return r
}

// Render records the view and kills the blocked process when one is named.
func (r *KillRenderer) Render(_ context.Context, view domain.OverlayView) error {
	r.mu.Lock()
	changed := view.State != r.last.State || view.Blocked != r.last.Blocked
	r.last = view
	r.mu.Unlock()

	if changed {
		r.logger.Info("overlay rendered",
			zap.String("state", view.State.String()),
			zap.String("blocked", view.Blocked),
			zap.String("session", view.SessionName),
			zap.Duration("remaining", view.Remaining),
		)
	}

	if view.State == domain.OverlayShowing {
		r.killAsync(view.Blocked)
	}
	return nil
}

// Reassert kills blocked again while the overlay is showing, catching a
// relaunch that produced no state change.
func (r *KillRenderer) Reassert(_ context.Context, blocked string) error {
	r.mu.Lock()
	showing := r.last.State == domain.OverlayShowing
	r.mu.Unlock()
	if showing {
		r.killAsync(blocked)
	}
	return nil
}

func (r *KillRenderer) killAsync(pkg string) {
	if pkg == "" || r.protected[strings.ToLower(pkg)] {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.kill(pkg)
	}()
}

func (r *KillRenderer) kill(pkg string) {
	pids, err := r.pm.FindByName(pkg)
	if err != nil {
		r.logger.Warn("failed to find blocked process", zap.String("package", pkg), zap.Error(err))
		return
	}
	for _, pid := range pids {
		if pid == r.ownPID {
			continue
		}
		if err := r.pm.Kill(pid); err != nil {
			r.logger.Warn("failed to kill blocked process",
				zap.String("package", pkg), zap.Int("pid", pid), zap.Error(err))
			continue
		}
		r.logger.Info("killed blocked process", zap.String("package", pkg), zap.Int("pid", pid))
	}
}

// Remove clears the recorded view.
func (r *KillRenderer) Remove(_ context.Context) error {
	r.mu.Lock()
	wasShown := r.last.State != domain.OverlayHidden
	r.last = domain.OverlayView{}
	r.mu.Unlock()
	if wasShown {
		r.logger.Info("overlay removed")
	}
	return nil
}

// Capabilities reports that the renderer posts no notification of its own.
func (r *KillRenderer) Capabilities() domain.RendererCapabilities {
	return domain.RendererCapabilities{}
}

// Wait blocks until in-flight kills finish.
func (r *KillRenderer) Wait() {
	r.wg.Wait()
}

var (
	_ domain.OverlayRenderer   = (*KillRenderer)(nil)
	_ domain.OverlayReasserter = (*KillRenderer)(nil)
)

package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// OverlayConfig holds overlay state machine configuration.
type OverlayConfig struct {
	LaunchTimeout    time.Duration // wait for an allowed app to reach the foreground
	LaunchPoll       time.Duration // foreground poll while waiting
	TrailingGrace    time.Duration // grace after a confirmed launch
	SessionPoll      time.Duration // session-end poll while the overlay is up
	EmergencyEnabled bool
	EmergencyTaps    int
}

// DefaultOverlayConfig returns default overlay configuration.
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		LaunchTimeout:    3 * time.Second,
		LaunchPoll:       100 * time.Millisecond,
		TrailingGrace:    2 * time.Second,
		SessionPoll:      500 * time.Millisecond,
		EmergencyEnabled: true,
		EmergencyTaps:    500,
	}
}

// OverlayStateMachine drives the session blocking surface.
//
// The overlay hides on exactly two paths: a launch of an allowed app that was
// confirmed in the foreground, and the end of the session.
type OverlayStateMachine struct {
	config     OverlayConfig
	renderer   domain.OverlayRenderer
	sessions   *SessionManager
	essentials *EssentialAppCache
	resolver   *ForegroundResolver
	clock      domain.Clock
	logger     *zap.Logger

	mu          sync.Mutex
	state       domain.OverlayState
	blocked     string
	target      string
	graceTarget string
	graceUntil  time.Time
	taps        *TapCounter
	launchStop  context.CancelFunc
	watchStop   context.CancelFunc
	wg          sync.WaitGroup
}

// NewOverlayStateMachine creates the state machine and subscribes it to
// session end events.
func NewOverlayStateMachine(
	config OverlayConfig,
	renderer domain.OverlayRenderer,
	sessions *SessionManager,
	essentials *EssentialAppCache,
	resolver *ForegroundResolver,
	clock domain.Clock,
	logger *zap.Logger,
) *OverlayStateMachine {
	m := &OverlayStateMachine{
		config:     config,
		renderer:   renderer,
		sessions:   sessions,
		essentials: essentials,
		resolver:   resolver,
		clock:      clock,
		logger:     logger,
		state:      domain.OverlayHidden,
	}
	sessions.Subscribe(func(ev SessionEvent) {
		if ev.Kind == SessionEnded {
			m.OnSessionEnded()
		}
	})
	return m
}

// State returns the current state.
func (m *OverlayStateMachine) State() domain.OverlayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Capabilities exposes the renderer's capabilities.
func (m *OverlayStateMachine) Capabilities() domain.RendererCapabilities {
	return m.renderer.Capabilities()
}

// Show puts the overlay up for blocked. It is idempotent and never
// interrupts a launch grace or an emergency challenge.
func (m *OverlayStateMachine) Show(ctx context.Context, blocked string) error {
	if !m.sessions.IsPhoneBricked() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case domain.OverlayHidden:
		m.state = domain.OverlayShowing
		m.blocked = blocked
		m.graceTarget, m.graceUntil = "", time.Time{}
		m.startSessionWatchLocked()
		m.logger.Info("overlay shown", zap.String("blocked", blocked))
		return m.renderLocked(ctx)
	case domain.OverlayShowing:
		if blocked == "" {
			return nil
		}
		if blocked == m.blocked {
			return m.reassertLocked(ctx)
		}
		m.blocked = blocked
		return m.renderLocked(ctx)
	default:
		return nil
	}
}

// InGrace reports whether pkg is the target of a pending launch or inside
// the trailing grace after one.
func (m *OverlayStateMachine) InGrace(pkg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.OverlayPendingLaunchGrace && pkg == m.target {
		return true
	}
	return pkg != "" && pkg == m.graceTarget && m.clock.Now().Before(m.graceUntil)
}

// GraceActive reports whether any launch grace is in effect.
func (m *OverlayStateMachine) GraceActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.OverlayPendingLaunchGrace ||
		(m.graceTarget != "" && m.clock.Now().Before(m.graceUntil))
}

// LaunchAllowedApp moves SHOWING to PENDING_LAUNCH_GRACE for an allowlisted
// or essential app. The overlay hides only once pkg is confirmed in the
// foreground; otherwise it returns to SHOWING after the launch timeout.
func (m *OverlayStateMachine) LaunchAllowedApp(ctx context.Context, pkg string) error {
	cur, ok := m.sessions.Current()
	if !ok {
		return domain.ErrNoActiveSession
	}
	if !cur.Session.Allows(pkg) && !m.essentials.IsEssential(ctx, pkg, cur.Session.Type) {
		return fmt.Errorf("%w: %s", domain.ErrNotAllowed, pkg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.OverlayShowing {
		return fmt.Errorf("%w: launch from %s", domain.ErrInvalidTransition, m.state)
	}
	m.state = domain.OverlayPendingLaunchGrace
	m.target = pkg

	launchCtx, cancel := context.WithCancel(context.Background())
	m.launchStop = cancel
	m.wg.Add(1)
	go m.confirmLaunch(launchCtx, pkg)

	m.logger.Info("launching allowed app", zap.String("package", pkg))
	return m.renderLocked(ctx)
}

func (m *OverlayStateMachine) confirmLaunch(ctx context.Context, pkg string) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.LaunchPoll)
	defer ticker.Stop()
	timeout := time.NewTimer(m.config.LaunchTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fg, ok := m.resolver.Current(ctx); ok && fg == pkg {
				m.launchConfirmed(pkg)
				return
			}
		case <-timeout.C:
			m.launchTimedOut(pkg)
			return
		}
	}
}

func (m *OverlayStateMachine) launchConfirmed(pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.OverlayPendingLaunchGrace || m.target != pkg {
		return
	}
	m.graceTarget = pkg
	m.graceUntil = m.clock.Now().Add(m.config.TrailingGrace)
	m.hideLocked(context.Background())
	m.logger.Info("allowed app confirmed in foreground", zap.String("package", pkg))
}

func (m *OverlayStateMachine) launchTimedOut(pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.OverlayPendingLaunchGrace || m.target != pkg {
		return
	}
	m.state = domain.OverlayShowing
	m.target = ""
	m.launchStop = nil
	m.logger.Warn("allowed app did not reach the foreground", zap.String("package", pkg))
	if err := m.renderLocked(context.Background()); err != nil {
		m.logger.Warn("failed to re-render overlay", zap.Error(err))
	}
}

// BeginEmergency starts the emergency tap challenge.
func (m *OverlayStateMachine) BeginEmergency(ctx context.Context) error {
	cur, ok := m.sessions.Current()
	if !ok {
		return domain.ErrNoActiveSession
	}
	if !m.config.EmergencyEnabled || !cur.Session.AllowEmergencyOverride {
		return domain.ErrEmergencyNotPermitted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.OverlayShowing {
		return fmt.Errorf("%w: emergency from %s", domain.ErrInvalidTransition, m.state)
	}
	m.state = domain.OverlayEmergencyChallenge
	m.taps = NewTapCounter(m.config.EmergencyTaps)
	m.logger.Info("emergency challenge started", zap.Int("taps", m.config.EmergencyTaps))
	return m.renderLocked(ctx)
}

// Tap registers one emergency tap and returns the taps left. The final tap
// ends the session through an emergency override.
func (m *OverlayStateMachine) Tap(ctx context.Context) (int, error) {
	m.mu.Lock()
	if m.state != domain.OverlayEmergencyChallenge || m.taps == nil {
		state := m.state
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: tap in %s", domain.ErrInvalidTransition, state)
	}
	if !m.taps.Tap() {
		remaining := m.taps.Remaining()
		err := m.renderLocked(ctx)
		m.mu.Unlock()
		return remaining, err
	}
	m.mu.Unlock()

	// The session end event hides the overlay.
	if err := m.sessions.EmergencyOverride(ctx, "emergency tap challenge completed"); err != nil {
		m.mu.Lock()
		if m.state == domain.OverlayEmergencyChallenge {
			m.state = domain.OverlayShowing
			m.taps = nil
			if rerr := m.renderLocked(ctx); rerr != nil {
				m.logger.Warn("failed to re-render overlay", zap.Error(rerr))
			}
		}
		m.mu.Unlock()
		return 0, err
	}
	return 0, nil
}

// CancelEmergency returns to SHOWING and discards tap progress.
func (m *OverlayStateMachine) CancelEmergency(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.OverlayEmergencyChallenge {
		return fmt.Errorf("%w: cancel from %s", domain.ErrInvalidTransition, m.state)
	}
	m.taps = nil
	m.state = domain.OverlayShowing
	return m.renderLocked(ctx)
}

// OnSessionEnded hides the overlay from any state.
func (m *OverlayStateMachine) OnSessionEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graceTarget, m.graceUntil = "", time.Time{}
	if m.state == domain.OverlayHidden {
		return
	}
	m.hideLocked(context.Background())
	m.logger.Info("overlay removed, session ended")
}

// View returns what the renderer would draw now.
func (m *OverlayStateMachine) View() domain.OverlayView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked(context.Background())
}

// Close stops background goroutines.
func (m *OverlayStateMachine) Close() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *OverlayStateMachine) hideLocked(ctx context.Context) {
	m.stopLocked()
	m.state = domain.OverlayHidden
	m.blocked, m.target, m.taps = "", "", nil
	if err := m.renderer.Remove(ctx); err != nil {
		m.logger.Warn("failed to remove overlay", zap.Error(err))
	}
}

func (m *OverlayStateMachine) stopLocked() {
	if m.launchStop != nil {
		m.launchStop()
		m.launchStop = nil
	}
	if m.watchStop != nil {
		m.watchStop()
		m.watchStop = nil
	}
}

// startSessionWatchLocked polls for session end while the overlay is up,
// in case the end event was missed.
func (m *OverlayStateMachine) startSessionWatchLocked() {
	if m.watchStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.watchStop = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.SessionPoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.sessions.IsPhoneBricked() {
					m.OnSessionEnded()
					return
				}
			}
		}
	}()
}

func (m *OverlayStateMachine) renderLocked(ctx context.Context) error {
	if err := m.renderer.Render(ctx, m.viewLocked(ctx)); err != nil {
		m.logger.Warn("overlay render failed", zap.Error(err))
		return err
	}
	return nil
}

// reassertLocked lets a renderer that acts on the blocked app act again
// without a state change.
func (m *OverlayStateMachine) reassertLocked(ctx context.Context) error {
	r, ok := m.renderer.(domain.OverlayReasserter)
	if !ok {
		return nil
	}
	if err := r.Reassert(ctx, m.blocked); err != nil {
		m.logger.Warn("overlay reassert failed", zap.String("blocked", m.blocked), zap.Error(err))
		return err
	}
	return nil
}

func (m *OverlayStateMachine) viewLocked(ctx context.Context) domain.OverlayView {
	view := domain.OverlayView{
		State:        m.state,
		Blocked:      m.blocked,
		LaunchTarget: m.target,
	}
	if m.taps != nil {
		view.RemainingTaps = m.taps.Remaining()
	}
	if cur, ok := m.sessions.Current(); ok {
		view.SessionName = cur.Session.Name
		view.Remaining = m.sessions.Remaining()
		view.Allowlist = cur.Session.Allowlist
		view.EssentialApps = m.essentials.Snapshot(ctx, cur.Session.Type)
		view.CanEmergency = m.config.EmergencyEnabled && cur.Session.AllowEmergencyOverride
	}
	return view
}

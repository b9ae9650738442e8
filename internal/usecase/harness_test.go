package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/policy"
	"github.com/eliteGoblin/focusd/brick_mon/test/fixtures"
)

// Monday 2026-03-02 10:00 UTC.
var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const (
	phone     = "com.google.android.dialer"
	instagram = "com.instagram.android"
	chrome    = "com.android.chrome"
	launcher  = "com.sec.android.app.launcher"
)

type harness struct {
	store     *fixtures.MemStore
	clock     *fixtures.FakeClock
	renderer  *fixtures.RecordingRenderer
	presenter *fixtures.RecordingPresenter
	notifier  *fixtures.RecordingNotifier
	probe     *fixtures.StaticProbe
	apps      *fixtures.FakeProcesses

	sessions   *SessionManager
	essentials *EssentialAppCache
	resolver   *ForegroundResolver
	overlay    *OverlayStateMachine
	challenges *ChallengeEngine
	registry   *BlockRegistry
	enforcer   *Enforcer
}

func testOverlayConfig() OverlayConfig {
	return OverlayConfig{
		LaunchTimeout:    300 * time.Millisecond,
		LaunchPoll:       5 * time.Millisecond,
		TrailingGrace:    2 * time.Second,
		SessionPoll:      10 * time.Millisecond,
		EmergencyEnabled: true,
		EmergencyTaps:    500,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	h := &harness{
		store:     fixtures.NewMemStore(),
		clock:     fixtures.NewFakeClock(baseTime),
		renderer:  &fixtures.RecordingRenderer{},
		presenter: &fixtures.RecordingPresenter{},
		notifier:  &fixtures.RecordingNotifier{},
		probe:     fixtures.NewGrantedProbe(),
		apps:      fixtures.NewFakeProcesses(),
	}
	for _, app := range policy.NewRegistry().Seeds() {
		require.NoError(t, h.store.AddEssentialApp(ctx, app))
	}

	h.sessions = NewSessionManager(SessionConfig{MonitorInterval: 10 * time.Millisecond}, h.store, h.clock, logger)
	h.essentials = NewEssentialAppCache(h.store, h.clock, 5*time.Minute, 500*time.Millisecond, logger)
	h.resolver = NewForegroundResolver(DefaultForegroundConfig(), nil, nil, h.clock, logger)
	h.overlay = NewOverlayStateMachine(testOverlayConfig(), h.renderer, h.sessions, h.essentials, h.resolver, h.clock, logger)
	h.challenges = NewChallengeEngine(DefaultChallengeConfig(), h.store, h.clock, logger)
	h.registry = NewBlockRegistry(h.store, h.clock, logger)
	h.enforcer = NewEnforcer(DefaultEnforcerConfig(), EnforcerDeps{
		Registry:   h.registry,
		Sessions:   h.sessions,
		Essentials: h.essentials,
		Resolver:   h.resolver,
		Overlay:    h.overlay,
		Challenges: h.challenges,
		Roles:      policy.NewStaticRoleProvider(nil),
		Presenter:  h.presenter,
		Notifier:   h.notifier,
		Probe:      h.probe,
		Clock:      h.clock,
		Apps:       h.apps,
	}, logger)

	t.Cleanup(func() {
		h.overlay.Close()
		h.sessions.Close()
	})
	return h
}

// startFocus saves and starts a focus session.
func (h *harness) startFocus(t *testing.T, minutes int, emergency bool, allowlist ...string) domain.Session {
	t.Helper()
	ctx := context.Background()
	def, err := h.sessions.SaveDefinition(ctx, domain.Session{
		Type:                   domain.SessionFocus,
		Name:                   "Deep work",
		DurationMinutes:        minutes,
		AllowEmergencyOverride: emergency,
		Allowlist:              allowlist,
	})
	require.NoError(t, err)
	require.NoError(t, h.sessions.StartDurationSession(ctx, def.ID))
	return *def
}

// foreground pushes a foreground event and evaluates it like the loop does.
func (h *harness) foreground(pkg, url string) Evaluation {
	ev := domain.ForegroundEvent{Package: pkg, URL: url, At: h.clock.Now()}
	h.resolver.Push(ev)
	return h.enforcer.Evaluate(context.Background(), Foreground{Package: pkg, URL: url}, false)
}

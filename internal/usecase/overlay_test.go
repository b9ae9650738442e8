package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

func TestOverlay_ShowRequiresSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.overlay.Show(context.Background(), instagram))
	assert.Equal(t, domain.OverlayHidden, h.overlay.State())
	assert.Empty(t, h.renderer.Views)
}

func TestOverlay_ShowIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)

	require.NoError(t, h.overlay.Show(ctx, instagram))
	require.NoError(t, h.overlay.Show(ctx, instagram))
	assert.Equal(t, domain.OverlayShowing, h.overlay.State())
	assert.Len(t, h.renderer.Views, 1)

	view, ok := h.renderer.LastView()
	require.True(t, ok)
	assert.Equal(t, "Deep work", view.SessionName)
	assert.Equal(t, []string{phone}, view.Allowlist)
	assert.True(t, view.CanEmergency)
	assert.NotEmpty(t, view.EssentialApps)
}

// Transient signals for other packages never hide the overlay.
func TestOverlay_NoPrematureHide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)

	h.foreground(instagram, "")
	require.Equal(t, domain.OverlayShowing, h.overlay.State())

	for _, pkg := range []string{phone, "com.android.systemui", "com.google.android.dialer", launcher, instagram} {
		h.foreground(pkg, "")
		assert.NotEqual(t, domain.OverlayHidden, h.overlay.State(), "hidden after %s", pkg)
	}
	h.enforcer.SafetyTick(ctx)
	assert.Equal(t, domain.OverlayShowing, h.overlay.State())
	assert.Zero(t, h.renderer.RemoveCount())
}

func TestOverlay_LaunchAllowedApp_Confirmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)
	h.foreground(instagram, "")

	require.NoError(t, h.overlay.LaunchAllowedApp(ctx, phone))
	assert.Equal(t, domain.OverlayPendingLaunchGrace, h.overlay.State())
	assert.True(t, h.overlay.InGrace(phone))
	assert.False(t, h.overlay.InGrace(instagram))

	h.resolver.Push(domain.ForegroundEvent{Package: phone})
	assert.Eventually(t, func() bool {
		return h.overlay.State() == domain.OverlayHidden
	}, time.Second, 5*time.Millisecond)

	assert.True(t, h.sessions.IsPhoneBricked())
	assert.Equal(t, 25*time.Minute, h.sessions.Remaining())
	assert.True(t, h.overlay.InGrace(phone))

	h.clock.Advance(3 * time.Second)
	assert.False(t, h.overlay.InGrace(phone))
}

func TestOverlay_LaunchAllowedApp_TimesOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)
	h.foreground(instagram, "")

	require.NoError(t, h.overlay.LaunchAllowedApp(ctx, phone))
	assert.Eventually(t, func() bool {
		return h.overlay.State() == domain.OverlayShowing
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.renderer.RemoveCount())
}

func TestOverlay_LaunchRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.overlay.LaunchAllowedApp(ctx, phone), domain.ErrNoActiveSession)

	h.startFocus(t, 25, true)
	assert.ErrorIs(t, h.overlay.LaunchAllowedApp(ctx, instagram), domain.ErrNotAllowed)

	// Essential apps launch even without an allowlist entry, but only from SHOWING.
	assert.ErrorIs(t, h.overlay.LaunchAllowedApp(ctx, phone), domain.ErrInvalidTransition)
	h.foreground(instagram, "")
	require.NoError(t, h.overlay.LaunchAllowedApp(ctx, phone))
}

func TestOverlay_EmergencyExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)
	cur, _ := h.sessions.Current()
	h.foreground(instagram, "")

	require.NoError(t, h.overlay.BeginEmergency(ctx))
	assert.Equal(t, domain.OverlayEmergencyChallenge, h.overlay.State())

	for i := 0; i < 10; i++ {
		_, err := h.overlay.Tap(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, h.overlay.CancelEmergency(ctx))
	assert.Equal(t, domain.OverlayShowing, h.overlay.State())

	require.NoError(t, h.overlay.BeginEmergency(ctx))
	assert.Equal(t, 500, h.overlay.View().RemainingTaps)
	for i := 1; i < 500; i++ {
		left, err := h.overlay.Tap(ctx)
		require.NoError(t, err)
		require.Equal(t, 500-i, left)
	}
	assert.True(t, h.sessions.IsPhoneBricked())

	left, err := h.overlay.Tap(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)

	assert.False(t, h.sessions.IsPhoneBricked())
	assert.Equal(t, domain.OverlayHidden, h.overlay.State())

	log, err := h.store.GetSessionLog(ctx, cur.LogID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmergencyOverride, log.Status)
}

func TestOverlay_EmergencyNotPermitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, false)
	h.foreground(instagram, "")

	assert.ErrorIs(t, h.overlay.BeginEmergency(ctx), domain.ErrEmergencyNotPermitted)
	_, err := h.overlay.Tap(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOverlay_SessionEndHidesFromAnyState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)
	h.foreground(instagram, "")
	require.NoError(t, h.overlay.BeginEmergency(ctx))

	h.clock.Advance(25 * time.Minute)
	assert.Eventually(t, func() bool {
		return h.overlay.State() == domain.OverlayHidden
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.sessions.IsPhoneBricked())
	assert.Equal(t, 1, h.renderer.RemoveCount())
}

func TestOverlay_ShowReassertsSameBlockedApp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startFocus(t, 25, true, phone)

	require.NoError(t, h.overlay.Show(ctx, instagram))
	require.NoError(t, h.overlay.Show(ctx, instagram))
	require.NoError(t, h.overlay.Show(ctx, ""))
	assert.Len(t, h.renderer.Views, 1)
	assert.Equal(t, []string{instagram}, h.renderer.Reasserted)

	require.NoError(t, h.overlay.Show(ctx, "com.zhiliaoapp.musically"))
	assert.Len(t, h.renderer.Views, 2)
	assert.Equal(t, 1, h.renderer.ReassertCount())
}

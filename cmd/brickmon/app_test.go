package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/config"
	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
	"github.com/eliteGoblin/focusd/brick_mon/internal/infra"
	"github.com/eliteGoblin/focusd/brick_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/brick_mon/test/fixtures"
)

var appNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*app, *fixtures.FakeClock) {
	t.Helper()
	key, err := infra.GenerateKey()
	require.NoError(t, err)
	store, err := infra.NewSQLCipherStore(t.TempDir(), key, infra.NewProcessManager())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := fixtures.NewFakeClock(appNow)
	a := newApp(config.Default(), store, clock, zap.NewNop())
	t.Cleanup(a.sessions.Close)
	require.NoError(t, a.sessions.Init(context.Background()))
	return a, clock
}

func TestApp_TapUnlockGrantsTemporaryUnlock(t *testing.T) {
	a, clock := newTestApp(t)
	ctx := context.Background()

	_, err := a.blocks.Add(ctx, "com.instagram.android", domain.KindApp, domain.TapChallenge(3), 0)
	require.NoError(t, err)

	d, err := resolveBlocked(ctx, a, "com.instagram.android", domain.KindApp)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAdHoc, d.Source)

	a.challenges.BeginTap(d.Identifier, d.Challenge.TapCount)
	var out strings.Builder
	require.NoError(t, runTaps(strings.NewReader("\n\n\n"), &out, 3, func() (int, bool, error) {
		return a.challenges.Tap(ctx, *d)
	}))

	_, err = resolveBlocked(ctx, a, "com.instagram.android", domain.KindApp)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	clock.Advance(a.cfg.Challenge.TemporaryUnlock.D() + time.Second)
	_, err = resolveBlocked(ctx, a, "com.instagram.android", domain.KindApp)
	assert.NoError(t, err, "block returns after the unlock window")
}

func TestApp_WaitUnlockPermanentRemovesBlock(t *testing.T) {
	a, clock := newTestApp(t)
	ctx := context.Background()

	_, err := a.blocks.Add(ctx, "https://www.reddit.com/", domain.KindWebsite, domain.WaitChallenge(5), 0)
	require.NoError(t, err)

	d, err := resolveBlocked(ctx, a, "old.reddit.com", domain.KindWebsite)
	require.NoError(t, err)
	assert.Equal(t, "reddit.com", d.Identifier)

	_, err = a.challenges.StartWait(ctx, d.Identifier, d.Challenge.WaitMinutes)
	require.NoError(t, err)

	err = a.challenges.CompleteWait(ctx, *d, unlockMode(true))
	assert.ErrorIs(t, err, domain.ErrChallengeIncomplete)

	clock.Advance(5 * time.Minute)
	require.NoError(t, a.challenges.CompleteWait(ctx, *d, unlockMode(true)))

	items, err := a.blocks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestApp_SessionVisibleToSecondInvocation(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	_, err := a.sessions.QuickStart(ctx, 30, true, []string{"org.wikipedia"})
	require.NoError(t, err)

	// A later CLI invocation sees the running session through the store.
	b := newApp(a.cfg, a.store, a.clock, zap.NewNop())
	defer b.sessions.Close()
	require.NoError(t, b.sessions.Init(ctx))
	cur, ok := b.sessions.Current()
	require.True(t, ok)
	assert.True(t, cur.Session.AllowEmergencyOverride)
	assert.Equal(t, 30*time.Minute, b.sessions.Remaining())

	require.NoError(t, b.sessions.EmergencyOverride(ctx, "doctor called"))
	logs, err := b.sessions.Logs(ctx, cur.Session.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.StatusEmergencyOverride, logs[0].Status)
	assert.Equal(t, "doctor called", logs[0].OverrideReason)
}

func TestUnlockMode(t *testing.T) {
	assert.Equal(t, usecase.UnlockPermanent, unlockMode(true))
	assert.Equal(t, usecase.UnlockTemporary, unlockMode(false))
}

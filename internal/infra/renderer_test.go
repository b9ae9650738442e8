package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

func TestKillRenderer(t *testing.T) {
	tests := []struct {
		name       string
		view       domain.OverlayView
		wantKilled []int
	}{
		{
			name:       "showing kills the blocked app",
			view:       domain.OverlayView{State: domain.OverlayShowing, Blocked: "com.instagram.android"},
			wantKilled: []int{101},
		},
		{
			name: "launch grace kills nothing",
			view: domain.OverlayView{State: domain.OverlayPendingLaunchGrace, Blocked: "com.instagram.android", LaunchTarget: "com.android.dialer"},
		},
		{
			name: "unknown foreground kills nothing",
			view: domain.OverlayView{State: domain.OverlayShowing},
		},
		{
			name: "protected process is spared",
			view: domain.OverlayView{State: domain.OverlayShowing, Blocked: "Terminal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newMockProcessManager()
			pm.Spawn(101, "instagram")
			pm.Spawn(102, "terminal")
			r := NewKillRenderer(pm, zap.NewNop(), "terminal")

			require.NoError(t, r.Render(context.Background(), tt.view))
			r.Wait()
			assert.ElementsMatch(t, tt.wantKilled, pm.Killed())
		})
	}
}

func TestKillRenderer_ReassertKillsRelaunch(t *testing.T) {
	ctx := context.Background()
	pm := newMockProcessManager()
	pm.Spawn(100, "discord")
	r := NewKillRenderer(pm, zap.NewNop())

	require.NoError(t, r.Render(ctx, domain.OverlayView{State: domain.OverlayShowing, Blocked: "discord"}))
	r.Wait()
	assert.Equal(t, []int{100}, pm.Killed())

	pm.Spawn(200, "discord")
	require.NoError(t, r.Reassert(ctx, "discord"))
	r.Wait()
	assert.Equal(t, []int{100, 200}, pm.Killed())
	assert.False(t, pm.IsRunning(200))

	require.NoError(t, r.Remove(ctx))
	pm.Spawn(300, "discord")
	require.NoError(t, r.Reassert(ctx, "discord"))
	r.Wait()
	assert.True(t, pm.IsRunning(300), "nothing is killed once the overlay is gone")
}

func TestKillRenderer_RemoveAndCapabilities(t *testing.T) {
	r := NewKillRenderer(newMockProcessManager(), zap.NewNop())
	assert.False(t, r.Capabilities().PostsNotification)
	require.NoError(t, r.Remove(context.Background()))
}

func TestProcessPresenter(t *testing.T) {
	ctx := context.Background()

	t.Run("app challenge kills the app", func(t *testing.T) {
		pm := newMockProcessManager()
		pm.Spawn(7, "musically")
		p := NewProcessPresenter(pm, zap.NewNop())
		err := p.Present(ctx, domain.ChallengeRequest{
			Decision: domain.BlockDecision{Identifier: "com.zhiliaoapp.musically", Kind: domain.KindApp, Challenge: domain.WaitChallenge(5)},
			Observed: "com.zhiliaoapp.musically",
		})
		require.NoError(t, err)
		assert.Equal(t, []int{7}, pm.Killed())
	})

	t.Run("website challenge only logs", func(t *testing.T) {
		pm := newMockProcessManager()
		pm.Spawn(8, "chrome")
		p := NewProcessPresenter(pm, zap.NewNop())
		err := p.Present(ctx, domain.ChallengeRequest{
			Decision: domain.BlockDecision{Identifier: "instagram.com", Kind: domain.KindWebsite, Challenge: domain.TapChallenge(100)},
			Observed: "instagram.com",
		})
		require.NoError(t, err)
		assert.Empty(t, pm.Killed())
	})
}

func TestLogNotifier(t *testing.T) {
	ctx := context.Background()
	n := NewLogNotifier(zap.NewNop())
	require.NoError(t, n.ShowSession(ctx, "Deep work", 0))
	require.NoError(t, n.ShowWarning(ctx, "overlay permission missing"))
	require.NoError(t, n.Clear(ctx))
	assert.Empty(t, n.session)
	assert.Empty(t, n.warning)
}

func TestNameCandidates(t *testing.T) {
	assert.Equal(t, []string{"com.instagram.android", "instagram"}, nameCandidates("com.instagram.android"))
	assert.Equal(t, []string{"com.zhiliaoapp.musically", "zhiliaoapp", "musically"}, nameCandidates("com.zhiliaoapp.musically"))
	assert.Equal(t, []string{"steam"}, nameCandidates("Steam"))
	assert.Nil(t, nameCandidates("  "))
}

package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

var storeNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// newTestStore opens an encrypted store in a temp directory.
func newTestStore(t *testing.T) (*SQLCipherStore, *mockProcessManager) {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)

	pm := newMockProcessManager()
	s, err := NewSQLCipherStore(t.TempDir(), key, pm)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, pm
}

func TestSQLCipherStore_WrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	s, err := NewSQLCipherStore(dir, key, newMockProcessManager())
	require.NoError(t, err)
	require.NoError(t, s.AddBlockedItem(context.Background(), domain.BlockedItem{
		ID: "b1", Identifier: "com.instagram.android", Kind: domain.KindApp,
		Challenge: domain.WaitChallenge(5), CreatedAt: storeNow,
	}))
	require.NoError(t, s.Close())

	other, err := GenerateKey()
	require.NoError(t, err)
	_, err = NewSQLCipherStore(dir, other, newMockProcessManager())
	assert.Error(t, err)

	reopened, err := NewSQLCipherStore(dir, key, newMockProcessManager())
	require.NoError(t, err)
	defer reopened.Close()
	items, err := reopened.ListBlockedItems(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSQLCipherStore_BlockedItems(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	expires := storeNow.Add(time.Hour)

	require.NoError(t, s.AddBlockedItem(ctx, domain.BlockedItem{
		ID: "b1", Identifier: "instagram.com", Kind: domain.KindWebsite,
		Challenge: domain.TapChallenge(100), CreatedAt: storeNow, ExpiresAt: &expires,
	}))
	require.NoError(t, s.AddBlockedItem(ctx, domain.BlockedItem{
		ID: "b2", Identifier: "com.zhiliaoapp.musically", Kind: domain.KindApp,
		Challenge: domain.WaitChallenge(10), CreatedAt: storeNow,
	}))

	err := s.AddBlockedItem(ctx, domain.BlockedItem{
		ID: "b3", Identifier: "instagram.com", Kind: domain.KindWebsite,
		Challenge: domain.WaitChallenge(1), CreatedAt: storeNow,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyBlocked)

	tests := []struct {
		name       string
		identifier string
		kind       domain.ItemKind
		mode       domain.MatchMode
		at         time.Time
		want       string
	}{
		{"exact website", "instagram.com", domain.KindWebsite, domain.MatchExact, storeNow, "b1"},
		{"subdomain contains", "m.instagram.com", domain.KindWebsite, domain.MatchContains, storeNow, "b1"},
		{"exact misses subdomain", "m.instagram.com", domain.KindWebsite, domain.MatchExact, storeNow, ""},
		{"kind mismatch", "instagram.com", domain.KindApp, domain.MatchContains, storeNow, ""},
		{"expired", "instagram.com", domain.KindWebsite, domain.MatchExact, expires, ""},
		{"permanent app", "com.zhiliaoapp.musically", domain.KindApp, domain.MatchExact, storeNow.AddDate(1, 0, 0), "b2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindBlockedItem(ctx, tt.identifier, tt.kind, tt.mode, tt.at)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	got, err := s.FindBlockedItem(ctx, "instagram.com", domain.KindWebsite, domain.MatchExact, storeNow)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.Equal(t, domain.TapChallenge(100), got.Challenge)

	n, err := s.DeleteExpiredBlockedItems(ctx, expires)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.RemoveBlockedItem(ctx, "com.zhiliaoapp.musically"))
	assert.ErrorIs(t, s.RemoveBlockedItem(ctx, "com.zhiliaoapp.musically"), domain.ErrNotFound)

	items, err := s.ListBlockedItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSQLCipherStore_Goals(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	goal := domain.Goal{
		ID: "g1", Name: "No social", Challenge: domain.WaitChallenge(30),
		StartedAt: storeNow, DurationDays: 7,
		Items: []domain.GoalItem{
			{ID: "i1", GoalID: "g1", Identifier: "twitter.com", Kind: domain.KindWebsite},
		},
	}
	require.NoError(t, s.CreateGoal(ctx, goal))
	require.NoError(t, s.AddGoalItem(ctx, domain.GoalItem{ID: "i2", GoalID: "g1", Identifier: "reddit.com", Kind: domain.KindWebsite}))
	assert.ErrorIs(t, s.AddGoalItem(ctx, domain.GoalItem{ID: "i3", GoalID: "missing"}), domain.ErrNotFound)

	got, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, "twitter.com", got.Items[0].Identifier)
	assert.True(t, got.EndsAt().Equal(storeNow.AddDate(0, 0, 7)))

	item, g, err := s.FindGoalItem(ctx, "old.reddit.com", domain.KindWebsite, domain.MatchContains, storeNow.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "i2", item.ID)
	assert.Equal(t, "No social", g.Name)

	assert.ErrorIs(t, s.DeleteGoal(ctx, "g1"), domain.ErrGoalLocked)

	end := storeNow.AddDate(0, 0, 7)
	item, _, err = s.FindGoalItem(ctx, "reddit.com", domain.KindWebsite, domain.MatchExact, end)
	require.NoError(t, err)
	assert.Nil(t, item)

	n, err := s.CompleteExpiredGoals(ctx, end)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteGoal(ctx, "g1"))
	_, err = s.GetGoal(ctx, "g1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	goals, err := s.ListGoals(ctx)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestSQLCipherStore_Schedules(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sched := domain.Schedule{
		ID: "s1", Name: "Sleep", WholeDevice: true,
		StartHour: 23, EndHour: 6, EndMinute: 30,
		ActiveDays:             domain.NewWeekdays(time.Monday, time.Friday),
		AllowEmergencyOverride: true,
		SessionType:            domain.SessionSleepSchedule,
		Allowlist:              []string{"com.android.dialer", "com.spotify.music"},
		Enabled:                true,
	}
	require.NoError(t, s.SaveSchedule(ctx, sched))

	got, err := s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sched.Allowlist, got.Allowlist)
	assert.Equal(t, sched.ActiveDays, got.ActiveDays)
	assert.Equal(t, 30, got.EndMinute)
	assert.False(t, got.IsActive())

	end := storeNow.Add(8 * time.Hour)
	require.NoError(t, s.SetScheduleActive(ctx, "s1", &storeNow, &end))
	got, err = s.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	require.True(t, got.IsActive())
	assert.True(t, got.CurrentEnd.Equal(end))

	require.NoError(t, s.SetScheduleActive(ctx, "s1", nil, nil))
	assert.ErrorIs(t, s.SetScheduleActive(ctx, "nope", nil, nil), domain.ErrNotFound)

	require.NoError(t, s.DeleteSchedule(ctx, "s1"))
	assert.ErrorIs(t, s.DeleteSchedule(ctx, "s1"), domain.ErrNotFound)
}

func TestSQLCipherStore_SessionLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	focus := domain.Session{ID: "focus", Type: domain.SessionFocus, Name: "Deep work", DurationMinutes: 25, Allowlist: []string{"com.spotify.music"}}
	other := domain.Session{ID: "other", Type: domain.SessionDigitalDetox, Name: "Detox", DurationMinutes: 60}
	require.NoError(t, s.SaveSession(ctx, focus))
	require.NoError(t, s.SaveSession(ctx, other))

	bricked, err := s.FindBrickedSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, bricked)

	end := storeNow.Add(25 * time.Minute)
	log := domain.SessionLog{ID: "log1", SessionID: "focus", StartedAt: storeNow, ScheduledDuration: 25 * time.Minute, Status: domain.StatusOngoing}
	require.NoError(t, s.StartSession(ctx, "focus", storeNow, end, log))

	err = s.StartSession(ctx, "other", storeNow, end, domain.SessionLog{ID: "log2", SessionID: "other", StartedAt: storeNow, Status: domain.StatusOngoing})
	assert.ErrorIs(t, err, domain.ErrSessionActive)
	assert.ErrorIs(t, s.StartSession(ctx, "missing", storeNow, end, log), domain.ErrNotFound)

	// Editing the definition keeps the run state.
	focus.Name = "Deeper work"
	require.NoError(t, s.SaveSession(ctx, focus))
	bricked, err = s.FindBrickedSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, bricked)
	assert.Equal(t, "Deeper work", bricked.Name)
	assert.True(t, bricked.CurrentEnd.Equal(end))

	require.NoError(t, s.RecordBypassAttempt(ctx, "log1"))
	require.NoError(t, s.RecordBypassAttempt(ctx, "log1"))
	require.NoError(t, s.RecordEssentialAccess(ctx, "log1", "com.android.dialer"))
	require.NoError(t, s.RecordEssentialAccess(ctx, "log1", "com.android.dialer"))
	require.NoError(t, s.RecordEssentialAccess(ctx, "log1", "com.spotify.music"))

	open, err := s.OpenSessionLog(ctx, "focus")
	require.NoError(t, err)
	assert.Equal(t, "log1", open.ID)

	ended := storeNow.Add(10 * time.Minute)
	closing := log
	closing.EndedAt = &ended
	closing.ActualDuration = 10 * time.Minute
	closing.Status = domain.StatusEmergencyOverride
	closing.OverrideReason = "call"
	require.NoError(t, s.CompleteSession(ctx, "focus", closing))

	got, err := s.GetSessionLog(ctx, "log1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmergencyOverride, got.Status)
	assert.Equal(t, 2, got.BypassAttempts)
	assert.Equal(t, []string{"com.android.dialer", "com.spotify.music"}, got.EssentialAccess)
	assert.Equal(t, 10*time.Minute, got.ActualDuration)
	assert.Equal(t, "call", got.OverrideReason)

	// Closed logs are immutable.
	require.NoError(t, s.RecordBypassAttempt(ctx, "log1"))
	closing.Status = domain.StatusCompleted
	require.NoError(t, s.CompleteSession(ctx, "focus", closing))
	got, err = s.GetSessionLog(ctx, "log1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmergencyOverride, got.Status)
	assert.Equal(t, 2, got.BypassAttempts)

	sess, err := s.GetSession(ctx, "focus")
	require.NoError(t, err)
	assert.False(t, sess.IsCurrentlyBricked)
	assert.Nil(t, sess.CurrentStart)

	_, err = s.OpenSessionLog(ctx, "focus")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.StartSession(ctx, "other", storeNow, end, domain.SessionLog{ID: "log2", SessionID: "other", StartedAt: storeNow, Status: domain.StatusOngoing}))
	all, err := s.ListSessionLogs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	onlyFocus, err := s.ListSessionLogs(ctx, "focus")
	require.NoError(t, err)
	assert.Len(t, onlyFocus, 1)
}

func TestSQLCipherStore_FindSessionBySchedule(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindSessionBySchedule(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SaveSession(ctx, domain.Session{ID: "x", Type: domain.SessionSleepSchedule, Name: "Sleep", ScheduleID: "s1"}))
	got, err := s.FindSessionBySchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.ID)

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLCipherStore_EssentialApps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedEssentialApps(ctx, []domain.EssentialApp{
		{Package: "com.android.dialer", Name: "Phone", IsSystemEssential: true},
	}))
	// Seeding twice is a no-op.
	require.NoError(t, s.SeedEssentialApps(ctx, []domain.EssentialApp{
		{Package: "com.android.dialer", Name: "Renamed", IsSystemEssential: true},
	}))

	// A user entry cannot overwrite a system one.
	require.NoError(t, s.AddEssentialApp(ctx, domain.EssentialApp{Package: "com.android.dialer", Name: "Mine", IsUserAdded: true}))
	require.NoError(t, s.AddEssentialApp(ctx, domain.EssentialApp{
		Package: "com.ubercab", Name: "Uber", IsUserAdded: true,
		AllowedSessionTypes: []domain.SessionType{domain.SessionSleepSchedule, domain.SessionFocus},
	}))

	apps, err := s.ListEssentialApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "Phone", apps[0].Name)
	assert.True(t, apps[0].IsSystemEssential)
	assert.Equal(t, []domain.SessionType{domain.SessionSleepSchedule, domain.SessionFocus}, apps[1].AllowedSessionTypes)

	assert.ErrorIs(t, s.RemoveEssentialApp(ctx, "com.android.dialer"), domain.ErrSystemEssential)
	assert.ErrorIs(t, s.RemoveEssentialApp(ctx, "com.nothing"), domain.ErrNotFound)
	require.NoError(t, s.RemoveEssentialApp(ctx, "com.ubercab"))
}

func TestSQLCipherStore_UnlocksAndTimers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	expires := storeNow.Add(15 * time.Minute)
	require.NoError(t, s.GrantUnlock(ctx, domain.TemporaryUnlock{Identifier: "instagram.com", ExpiresAt: expires}))

	u, err := s.ActiveUnlock(ctx, "instagram.com", storeNow)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.ExpiresAt.Equal(expires))

	u, err = s.ActiveUnlock(ctx, "instagram.com", expires)
	require.NoError(t, err)
	assert.Nil(t, u)

	n, err := s.DeleteExpiredUnlocks(ctx, expires)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	timer, err := s.GetTimerState(ctx, "instagram.com")
	require.NoError(t, err)
	assert.Nil(t, timer)

	require.NoError(t, s.SaveTimerState(ctx, domain.TimerChallengeState{
		Identifier: "instagram.com", StartedAt: storeNow, Duration: 10 * time.Minute, Active: true,
	}))
	timer, err = s.GetTimerState(ctx, "instagram.com")
	require.NoError(t, err)
	require.NotNil(t, timer)
	assert.Equal(t, 4*time.Minute, timer.Remaining(storeNow.Add(6*time.Minute)))

	require.NoError(t, s.ClearTimerState(ctx, "instagram.com"))
	timer, err = s.GetTimerState(ctx, "instagram.com")
	require.NoError(t, err)
	assert.Nil(t, timer)
}

func TestSQLCipherStore_DaemonRegistry(t *testing.T) {
	tests := []struct {
		name     string
		daemons  []domain.Daemon
		wantPIDs map[domain.DaemonRole]int
	}{
		{
			name:     "register watcher",
			daemons:  []domain.Daemon{{PID: 1234, Role: domain.RoleWatcher, AppVersion: "0.1.0"}},
			wantPIDs: map[domain.DaemonRole]int{domain.RoleWatcher: 1234},
		},
		{
			name: "register both",
			daemons: []domain.Daemon{
				{PID: 1234, Role: domain.RoleWatcher},
				{PID: 5678, Role: domain.RoleGuardian},
			},
			wantPIDs: map[domain.DaemonRole]int{domain.RoleWatcher: 1234, domain.RoleGuardian: 5678},
		},
		{
			name: "re-register overwrites PID",
			daemons: []domain.Daemon{
				{PID: 1111, Role: domain.RoleWatcher},
				{PID: 2222, Role: domain.RoleWatcher},
			},
			wantPIDs: map[domain.DaemonRole]int{domain.RoleWatcher: 2222},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			for _, d := range tt.daemons {
				require.NoError(t, s.Register(d))
			}
			entry, err := s.GetAll()
			require.NoError(t, err)
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantPIDs[domain.RoleWatcher], entry.WatcherPID)
			assert.Equal(t, tt.wantPIDs[domain.RoleGuardian], entry.GuardianPID)
			assert.NotZero(t, entry.LastHeartbeat)
		})
	}
}

func TestSQLCipherStore_PartnerLiveness(t *testing.T) {
	s, pm := newTestStore(t)

	alive, err := s.IsPartnerAlive(domain.RoleWatcher)
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, s.Register(domain.Daemon{PID: 4242, Role: domain.RoleGuardian}))
	alive, err = s.IsPartnerAlive(domain.RoleWatcher)
	require.NoError(t, err)
	assert.False(t, alive)

	pm.SetRunning(4242, true)
	alive, err = s.IsPartnerAlive(domain.RoleWatcher)
	require.NoError(t, err)
	assert.True(t, alive)

	assert.Error(t, s.UpdateHeartbeat(domain.RoleWatcher))
	require.NoError(t, s.UpdateHeartbeat(domain.RoleGuardian))

	require.NoError(t, s.Clear())
	entry, err := s.GetAll()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

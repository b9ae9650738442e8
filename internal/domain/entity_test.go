package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// monday is 2026-03-02, a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestChallenge_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Challenge
		wantErr bool
	}{
		{name: "wait", c: WaitChallenge(5)},
		{name: "tap", c: TapChallenge(100)},
		{name: "zero wait", c: WaitChallenge(0), wantErr: true},
		{name: "negative taps", c: TapChallenge(-1), wantErr: true},
		{name: "unknown kind", c: Challenge{Kind: "pray"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidChallenge))
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, 5*time.Minute, WaitChallenge(5).WaitDuration())
	assert.Zero(t, TapChallenge(5).WaitDuration())
	assert.Equal(t, "tap x100", TapChallenge(100).String())
}

func TestWeekdays(t *testing.T) {
	w := NewWeekdays(time.Monday, time.Friday)
	assert.True(t, w.Has(time.Monday))
	assert.False(t, w.Has(time.Sunday))
	assert.Equal(t, "Mon,Fri", w.String())
	assert.Equal(t, "every day", EveryDay.String())
}

func TestSchedule_InWindow(t *testing.T) {
	day := Schedule{StartHour: 9, EndHour: 17}
	overnight := Schedule{StartHour: 22, EndHour: 7}

	tests := []struct {
		name  string
		s     Schedule
		at    time.Time
		inWin bool
	}{
		{name: "day start is inclusive", s: day, at: monday(9, 0), inWin: true},
		{name: "day end is exclusive", s: day, at: monday(17, 0), inWin: false},
		{name: "day before start", s: day, at: monday(8, 59), inWin: false},
		{name: "overnight late evening", s: overnight, at: monday(23, 30), inWin: true},
		{name: "overnight early morning", s: overnight, at: monday(6, 59), inWin: true},
		{name: "overnight midday", s: overnight, at: monday(12, 0), inWin: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.inWin, tt.s.InWindow(tt.at))
		})
	}
}

func TestSchedule_ActiveAtUsesCurrentCalendarDay(t *testing.T) {
	s := Schedule{StartHour: 22, EndHour: 7, ActiveDays: NewWeekdays(time.Monday), Enabled: true}

	assert.True(t, s.ActiveAt(monday(23, 0)))
	assert.False(t, s.ActiveAt(monday(23, 0).Add(2*time.Hour)), "Tuesday 01:00 is outside the active days")

	s.Enabled = false
	assert.False(t, s.ActiveAt(monday(23, 0)))
}

func TestSchedule_NextEndAndLastStart(t *testing.T) {
	s := Schedule{StartHour: 22, EndHour: 7}

	assert.Equal(t, monday(7, 0).AddDate(0, 0, 1), s.NextEnd(monday(23, 0)))
	assert.Equal(t, monday(7, 0), s.NextEnd(monday(6, 0)))
	assert.Equal(t, monday(7, 0).AddDate(0, 0, 1), s.NextEnd(monday(7, 0)), "end is strictly after now")

	assert.Equal(t, monday(22, 0), s.LastStart(monday(22, 0)))
	assert.Equal(t, monday(22, 0), s.LastStart(monday(23, 0).Add(2*time.Hour)))
	assert.Equal(t, monday(22, 0).AddDate(0, 0, -1), s.LastStart(monday(6, 0)))
	assert.Equal(t, "22:00-07:00", s.WindowString())
}

func TestSchedule_Validate(t *testing.T) {
	valid := Schedule{StartHour: 22, EndHour: 7, ActiveDays: EveryDay, WholeDevice: true}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.EndMinute = 60
	assert.ErrorIs(t, bad.Validate(), ErrInvalidDefinition)

	bad = valid
	bad.ActiveDays = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidDefinition)

	bad = valid
	bad.WholeDevice = false
	assert.ErrorIs(t, bad.Validate(), ErrInvalidDefinition, "a per-app schedule needs identifiers")
}

func TestGoal_EndsAt(t *testing.T) {
	g := Goal{StartedAt: monday(10, 0), DurationDays: 30}
	assert.Equal(t, monday(10, 0).AddDate(0, 0, 30), g.EndsAt())
	assert.False(t, g.IsOver(monday(10, 0).AddDate(0, 0, 29)))
	assert.True(t, g.IsOver(g.EndsAt()))

	g.Completed = true
	assert.True(t, g.IsOver(monday(10, 0)))
}

func TestBlockedItem_IsExpired(t *testing.T) {
	exp := monday(12, 0)
	item := BlockedItem{ExpiresAt: &exp}
	assert.False(t, item.IsExpired(monday(11, 59)))
	assert.True(t, item.IsExpired(monday(12, 0)))
	assert.False(t, BlockedItem{}.IsExpired(monday(23, 0)), "nil expiry is permanent")
}

func TestTimerChallengeState_Remaining(t *testing.T) {
	s := TimerChallengeState{StartedAt: monday(10, 0), Duration: 10 * time.Minute, Active: true}
	assert.Equal(t, 10*time.Minute, s.Remaining(monday(10, 0)))
	assert.Equal(t, 4*time.Minute, s.Remaining(monday(10, 6)))
	assert.Zero(t, s.Remaining(monday(11, 0)))
}

func TestSession_Allowlist(t *testing.T) {
	s := Session{Allowlist: SplitAllowlist(" org.wikipedia, ,com.spotify.music ")}
	assert.Equal(t, []string{"org.wikipedia", "com.spotify.music"}, s.Allowlist)
	assert.True(t, s.Allows("ORG.WIKIPEDIA"))
	assert.False(t, s.Allows("com.instagram.android"))
	assert.Equal(t, "org.wikipedia,com.spotify.music", JoinAllowlist(s.Allowlist))
	assert.Nil(t, SplitAllowlist(""))
	assert.Equal(t, 90*time.Minute, Session{DurationMinutes: 90}.Duration())
}

func TestEssentialApp_AllowedIn(t *testing.T) {
	all := EssentialApp{Package: "com.android.dialer"}
	assert.True(t, all.AllowedIn(SessionDigitalDetox))

	sleepOnly := EssentialApp{Package: "com.android.deskclock", AllowedSessionTypes: []SessionType{SessionSleepSchedule}}
	assert.True(t, sleepOnly.AllowedIn(SessionSleepSchedule))
	assert.False(t, sleepOnly.AllowedIn(SessionFocus))
}

func TestOverlayState_String(t *testing.T) {
	assert.Equal(t, "SHOWING", OverlayShowing.String())
	assert.Equal(t, "EMERGENCY_CHALLENGE", OverlayEmergencyChallenge.String())
	assert.Equal(t, "UNKNOWN", OverlayState(42).String())
}

// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind distinguishes app package names from website domains.
type ItemKind string

const (
	KindApp     ItemKind = "app"
	KindWebsite ItemKind = "website"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	return k == KindApp || k == KindWebsite
}

// ChallengeKind names a friction mechanism gating an override.
type ChallengeKind string

const (
	ChallengeWait ChallengeKind = "wait"
	ChallengeTap  ChallengeKind = "tap"
)

// Challenge is a tagged variant: WaitMinutes is only meaningful for
// ChallengeWait, TapCount only for ChallengeTap.
type Challenge struct {
	Kind        ChallengeKind `json:"kind"`
	WaitMinutes int           `json:"wait_minutes,omitempty"`
	TapCount    int           `json:"tap_count,omitempty"`
}

// WaitChallenge returns a wait-timer challenge.
func WaitChallenge(minutes int) Challenge {
	return Challenge{Kind: ChallengeWait, WaitMinutes: minutes}
}

// TapChallenge returns a tap-count challenge.
func TapChallenge(count int) Challenge {
	return Challenge{Kind: ChallengeTap, TapCount: count}
}

// Validate rejects unknown kinds and non-positive parameters.
func (c Challenge) Validate() error {
	switch c.Kind {
	case ChallengeWait:
		if c.WaitMinutes <= 0 {
			return fmt.Errorf("%w: wait minutes must be positive", ErrInvalidChallenge)
		}
	case ChallengeTap:
		if c.TapCount <= 0 {
			return fmt.Errorf("%w: tap count must be positive", ErrInvalidChallenge)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidChallenge, c.Kind)
	}
	return nil
}

// WaitDuration returns the wait as a duration (zero for tap challenges).
func (c Challenge) WaitDuration() time.Duration {
	if c.Kind != ChallengeWait {
		return 0
	}
	return time.Duration(c.WaitMinutes) * time.Minute
}

func (c Challenge) String() string {
	switch c.Kind {
	case ChallengeWait:
		return fmt.Sprintf("wait %dm", c.WaitMinutes)
	case ChallengeTap:
		return fmt.Sprintf("tap x%d", c.TapCount)
	}
	return string(c.Kind)
}

// BlockedItem is an ad-hoc block created by the user.
type BlockedItem struct {
	ID         string
	Identifier string
	Kind       ItemKind
	Challenge  Challenge
	CreatedAt  time.Time
	ExpiresAt  *time.Time // nil = permanent
}

// IsExpired reports whether the item's expiry has passed at now.
func (b BlockedItem) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Goal is a long-term commitment. Items can be added but never removed,
// and the goal itself is deletable only once completed.
type Goal struct {
	ID           string
	Name         string
	Items        []GoalItem
	Challenge    Challenge
	StartedAt    time.Time
	DurationDays int
	Completed    bool
}

// EndsAt is StartedAt plus DurationDays.
func (g Goal) EndsAt() time.Time {
	return g.StartedAt.AddDate(0, 0, g.DurationDays)
}

// IsOver reports whether the goal's end time has passed at now.
func (g Goal) IsOver(now time.Time) bool {
	return g.Completed || !now.Before(g.EndsAt())
}

// GoalItem is one identifier owned by a Goal. GoalID is a lookup key, not a handle.
type GoalItem struct {
	ID          string
	GoalID      string
	Identifier  string
	Kind        ItemKind
	DisplayName string
}

// Weekdays is a 7-bit set indexed by time.Weekday (bit 0 = Sunday).
type Weekdays uint8

// EveryDay has all seven bits set.
const EveryDay Weekdays = 0x7f

// NewWeekdays builds a set from the given days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// Has reports whether d is in the set.
func (w Weekdays) Has(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

func (w Weekdays) String() string {
	if w&EveryDay == EveryDay {
		return "every day"
	}
	names := make([]string, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			names = append(names, d.String()[:3])
		}
	}
	return strings.Join(names, ",")
}

// Schedule is a recurring time-window block. A whole-device schedule starts a
// brick session when its window opens; otherwise it blocks Identifiers while
// the window is open.
type Schedule struct {
	ID                     string
	Name                   string
	Identifiers            []string
	Kind                   ItemKind
	WholeDevice            bool
	StartHour, StartMinute int
	EndHour, EndMinute     int
	ActiveDays             Weekdays
	Challenge              Challenge
	AllowEmergencyOverride bool
	SessionType            SessionType
	Allowlist              []string
	Enabled                bool
	CurrentStart           *time.Time
	CurrentEnd             *time.Time
}

// Validate checks ranges and required fields.
func (s Schedule) Validate() error {
	if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 23 ||
		s.StartMinute < 0 || s.StartMinute > 59 || s.EndMinute < 0 || s.EndMinute > 59 {
		return fmt.Errorf("%w: schedule window out of range", ErrInvalidDefinition)
	}
	if s.ActiveDays&EveryDay == 0 {
		return fmt.Errorf("%w: schedule has no active days", ErrInvalidDefinition)
	}
	if !s.WholeDevice && len(s.Identifiers) == 0 {
		return fmt.Errorf("%w: schedule blocks nothing", ErrInvalidDefinition)
	}
	return nil
}

// IsActive reports whether the schedule currently owns a running session.
func (s Schedule) IsActive() bool {
	return s.CurrentStart != nil
}

func (s Schedule) startMinutes() int { return s.StartHour*60 + s.StartMinute }
func (s Schedule) endMinutes() int   { return s.EndHour*60 + s.EndMinute }

// InWindow reports whether t's wall-clock time falls in [start, end).
// An end at or before the start wraps past midnight.
func (s Schedule) InWindow(t time.Time) bool {
	now := t.Hour()*60 + t.Minute()
	start, end := s.startMinutes(), s.endMinutes()
	if end > start {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// ActiveAt combines the active-day check for t's calendar day with InWindow.
func (s Schedule) ActiveAt(t time.Time) bool {
	return s.Enabled && s.ActiveDays.Has(t.Weekday()) && s.InWindow(t)
}

// NextEnd returns the first occurrence of the end time strictly after t.
func (s Schedule) NextEnd(t time.Time) time.Time {
	end := time.Date(t.Year(), t.Month(), t.Day(), s.EndHour, s.EndMinute, 0, 0, t.Location())
	if !end.After(t) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// LastStart returns the latest occurrence of the start time at or before t.
func (s Schedule) LastStart(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), s.StartHour, s.StartMinute, 0, 0, t.Location())
	if start.After(t) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// WindowString renders "HH:MM-HH:MM".
func (s Schedule) WindowString() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", s.StartHour, s.StartMinute, s.EndHour, s.EndMinute)
}

// SessionType classifies a brick session.
type SessionType string

const (
	SessionFocus         SessionType = "FOCUS"
	SessionSleepSchedule SessionType = "SLEEP_SCHEDULE"
	SessionDigitalDetox  SessionType = "DIGITAL_DETOX"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionFocus, SessionSleepSchedule, SessionDigitalDetox:
		return true
	}
	return false
}

// Session is a brick session definition plus its current run, if any.
// CurrentStart/CurrentEnd are nil iff IsCurrentlyBricked is false.
type Session struct {
	ID                     string
	Type                   SessionType
	Name                   string
	DurationMinutes        int    // 0 for schedule-driven sessions
	ScheduleID             string // empty for duration sessions
	AllowEmergencyOverride bool
	Allowlist              []string
	CurrentStart           *time.Time
	CurrentEnd             *time.Time
	IsCurrentlyBricked     bool
}

// Duration returns the configured duration.
func (s Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Allows reports whether pkg is on the explicit allowlist.
func (s Session) Allows(pkg string) bool {
	for _, a := range s.Allowlist {
		if strings.EqualFold(a, pkg) {
			return true
		}
	}
	return false
}

// JoinAllowlist renders the allowlist in its stored comma-joined form.
func JoinAllowlist(pkgs []string) string {
	return strings.Join(pkgs, ",")
}

// SplitAllowlist parses the comma-joined form, dropping blanks.
func SplitAllowlist(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SessionStatus is the outcome recorded on a SessionLog.
type SessionStatus string

const (
	StatusOngoing           SessionStatus = "ONGOING"
	StatusCompleted         SessionStatus = "COMPLETED"
	StatusEmergencyOverride SessionStatus = "EMERGENCY_OVERRIDE"
)

// SessionLog is the audit record of one session run. Closed logs are immutable.
type SessionLog struct {
	ID                string
	SessionID         string
	StartedAt         time.Time
	EndedAt           *time.Time
	ScheduledDuration time.Duration
	ActualDuration    time.Duration
	Status            SessionStatus
	BypassAttempts    int
	EssentialAccess   []string
	OverrideReason    string
}

// EssentialApp is allowed during sessions regardless of the session allowlist.
type EssentialApp struct {
	Package             string
	Name                string
	IsSystemEssential   bool
	IsUserAdded         bool
	AllowedSessionTypes []SessionType // empty = every type
}

// AllowedIn reports whether the app is essential for the given session type.
func (e EssentialApp) AllowedIn(t SessionType) bool {
	if len(e.AllowedSessionTypes) == 0 {
		return true
	}
	for _, st := range e.AllowedSessionTypes {
		if st == t {
			return true
		}
	}
	return false
}

// TimerChallengeState is the durable state of a wait timer.
type TimerChallengeState struct {
	Identifier string
	StartedAt  time.Time
	Duration   time.Duration
	Active     bool
}

// Remaining is derived from wall-clock delta only, never a running counter.
func (s TimerChallengeState) Remaining(now time.Time) time.Duration {
	r := s.Duration - now.Sub(s.StartedAt)
	if r < 0 {
		return 0
	}
	return r
}

// TemporaryUnlock suppresses a block for Identifier until ExpiresAt.
type TemporaryUnlock struct {
	Identifier string
	ExpiresAt  time.Time
}

// SourceKind names which block source produced a decision.
type SourceKind string

const (
	SourceAdHoc    SourceKind = "adhoc"
	SourceGoal     SourceKind = "goal"
	SourceSchedule SourceKind = "schedule"
)

// BlockDecision is the single winning block for an identifier.
type BlockDecision struct {
	Source      SourceKind
	SourceID    string // blocked item, goal or schedule id
	Identifier  string // stored identifier that matched
	Kind        ItemKind
	DisplayName string
	Challenge   Challenge
}

// MatchMode selects exact or substring lookup.
type MatchMode int

const (
	MatchExact MatchMode = iota
	// MatchContains matches when either identifier contains the other.
	MatchContains
)

// ForegroundEvent is pushed by the host's real-time focus stream.
type ForegroundEvent struct {
	Package         string
	URL             string // set by browsers that expose the current address
	At              time.Time
	WindowActivated bool
}

// UsageSample is one entry from a polled usage-statistics query.
type UsageSample struct {
	Package string
	At      time.Time
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	RoleWatcher  DaemonRole = "watcher"
	RoleGuardian DaemonRole = "guardian"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry is the combined state of both daemons (for status command).
type RegistryEntry struct {
	WatcherPID    int
	GuardianPID   int
	LastHeartbeat int64
	AppVersion    string
}

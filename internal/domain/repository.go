package domain

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads so expiry logic is testable.
type Clock interface {
	Now() time.Time
}

// BlockedItemStore persists ad-hoc blocks.
type BlockedItemStore interface {
	// AddBlockedItem inserts a new item.
	AddBlockedItem(ctx context.Context, item BlockedItem) error

	// RemoveBlockedItem deletes the item for identifier. ErrNotFound if absent.
	RemoveBlockedItem(ctx context.Context, identifier string) error

	// ListBlockedItems returns every stored item, expired ones included.
	ListBlockedItems(ctx context.Context) ([]BlockedItem, error)

	// FindBlockedItem returns the unexpired item matching identifier, or nil.
	FindBlockedItem(ctx context.Context, identifier string, kind ItemKind, mode MatchMode, now time.Time) (*BlockedItem, error)

	// DeleteExpiredBlockedItems removes items whose expiry is before now.
	DeleteExpiredBlockedItems(ctx context.Context, now time.Time) (int, error)
}

// GoalStore persists goals and their items.
// There is intentionally no item delete.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal Goal) error
	AddGoalItem(ctx context.Context, item GoalItem) error
	GetGoal(ctx context.Context, id string) (*Goal, error)
	ListGoals(ctx context.Context) ([]Goal, error)

	// FindGoalItem returns an item of a goal that is not over at now, plus its goal.
	FindGoalItem(ctx context.Context, identifier string, kind ItemKind, mode MatchMode, now time.Time) (*GoalItem, *Goal, error)

	// CompleteExpiredGoals marks goals whose end time passed as completed.
	CompleteExpiredGoals(ctx context.Context, now time.Time) (int, error)

	// DeleteGoal removes a completed goal and its items.
	DeleteGoal(ctx context.Context, id string) error
}

// ScheduleStore persists time-window schedules.
type ScheduleStore interface {
	SaveSchedule(ctx context.Context, s Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// SetScheduleActive records (or clears, with nil) the running window snapshot.
	SetScheduleActive(ctx context.Context, id string, start, end *time.Time) error
}

// SessionStore persists session definitions and logs.
// StartSession and CompleteSession are atomic.
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	FindSessionBySchedule(ctx context.Context, scheduleID string) (*Session, error)

	// FindBrickedSession returns the session with IsCurrentlyBricked set, or nil.
	FindBrickedSession(ctx context.Context) (*Session, error)

	// StartSession sets the run timestamps and bricked flag and opens log.
	StartSession(ctx context.Context, sessionID string, start, end time.Time, log SessionLog) error

	// CompleteSession clears the run state and closes log in one write.
	CompleteSession(ctx context.Context, sessionID string, log SessionLog) error

	GetSessionLog(ctx context.Context, id string) (*SessionLog, error)
	OpenSessionLog(ctx context.Context, sessionID string) (*SessionLog, error)
	ListSessionLogs(ctx context.Context, sessionID string) ([]SessionLog, error)
	RecordBypassAttempt(ctx context.Context, logID string) error
	RecordEssentialAccess(ctx context.Context, logID, pkg string) error
}

// EssentialAppStore persists essential apps.
type EssentialAppStore interface {
	ListEssentialApps(ctx context.Context) ([]EssentialApp, error)
	AddEssentialApp(ctx context.Context, app EssentialApp) error

	// RemoveEssentialApp deletes a user-added entry. ErrSystemEssential for seeded ones.
	RemoveEssentialApp(ctx context.Context, pkg string) error
}

// UnlockStore persists temporary unlocks.
type UnlockStore interface {
	GrantUnlock(ctx context.Context, u TemporaryUnlock) error
	ActiveUnlock(ctx context.Context, identifier string, now time.Time) (*TemporaryUnlock, error)
	DeleteExpiredUnlocks(ctx context.Context, now time.Time) (int, error)
}

// TimerStore persists wait-timer challenge state.
type TimerStore interface {
	SaveTimerState(ctx context.Context, s TimerChallengeState) error
	GetTimerState(ctx context.Context, identifier string) (*TimerChallengeState, error)
	ClearTimerState(ctx context.Context, identifier string) error
}

// DaemonRegistry provides daemon discovery and registration.
type DaemonRegistry interface {
	// Register saves current daemon's PID.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat(role DaemonRole) error

	// IsPartnerAlive checks if partner daemon is running via PID.
	IsPartnerAlive(role DaemonRole) (bool, error)

	// GetAll returns full registry state (for status command).
	GetAll() (*RegistryEntry, error)

	// Clear removes all daemon state (for clean restart).
	Clear() error
}

// Store is the full persistent store.
type Store interface {
	BlockedItemStore
	GoalStore
	ScheduleStore
	SessionStore
	EssentialAppStore
	UnlockStore
	TimerStore
	Close() error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// ActiveWindowProber answers "what is focused right now" synchronously.
type ActiveWindowProber interface {
	ActiveWindow(ctx context.Context) (string, error)
}

// UsageSampler queries recent foreground usage statistics.
type UsageSampler interface {
	// RecentForeground returns samples observed at or after since, newest last.
	RecentForeground(ctx context.Context, since time.Time) ([]UsageSample, error)
}

// AppLister lists the user-facing apps running right now, foreground or not.
type AppLister interface {
	RunningApps(ctx context.Context) ([]string, error)
}

// SystemRoleProvider reports dynamic system roles (dialer, SMS, system UI, input method).
type SystemRoleProvider interface {
	IsSystemRole(ctx context.Context, pkg string) bool
}

// RendererCapabilities describes what an OverlayRenderer does on its own.
type RendererCapabilities struct {
	// PostsNotification is true when the renderer keeps its own status
	// notification up, so the enforcer must not post one.
	PostsNotification bool
}

// OverlayRenderer renders or removes the non-dismissible blocking surface.
// Calls are made while overlay state is locked and must not block.
type OverlayRenderer interface {
	Render(ctx context.Context, view OverlayView) error
	Remove(ctx context.Context) error
	Capabilities() RendererCapabilities
}

// OverlayReasserter is an optional OverlayRenderer extension for renderers
// that act on a blocked app rather than cover it. Reassert is called when
// the overlay is already showing and blocked surfaces again.
type OverlayReasserter interface {
	Reassert(ctx context.Context, blocked string) error
}

// NotificationSink shows a best-effort status notification.
type NotificationSink interface {
	ShowSession(ctx context.Context, name string, remaining time.Duration) error
	ShowWarning(ctx context.Context, message string) error
	Clear(ctx context.Context) error
}

// ChallengeRequest is what a ChallengePresenter shows for an ad-hoc block.
type ChallengeRequest struct {
	Decision      BlockDecision
	Observed      string
	WaitRemaining time.Duration // for wait challenges with a running timer
	WaitStarted   bool
	TapTarget     int
}

// ChallengePresenter shows the per-app/per-site challenge screen.
type ChallengePresenter interface {
	Present(ctx context.Context, req ChallengeRequest) error
}

// PermissionProbe reports whether overlay and sensing paths are usable.
type PermissionProbe interface {
	CanDrawOverlay(ctx context.Context) bool
	SensingEnabled(ctx context.Context) bool
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// AutostartManager registers the CLI so both daemons start at login.
type AutostartManager interface {
	// Install writes and loads the login service for execPath.
	Install(execPath string) error

	// Uninstall unloads and removes the login service.
	Uninstall() error

	IsInstalled() bool

	// NeedsUpdate reports whether the installed file differs from what
	// Install would write for execPath.
	NeedsUpdate(execPath string) bool

	// Path returns the service file path.
	Path() string
}

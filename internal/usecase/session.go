package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// SessionConfig holds session manager configuration.
type SessionConfig struct {
	MonitorInterval time.Duration // How often a running session checks for expiry
}

// DefaultSessionConfig returns default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{MonitorInterval: 10 * time.Second}
}

// SessionEventKind distinguishes session lifecycle events.
type SessionEventKind int

const (
	SessionStarted SessionEventKind = iota
	SessionEnded
)

// SessionEvent is delivered to subscribers after the store and memory agree.
type SessionEvent struct {
	Kind    SessionEventKind
	Session domain.Session
	Status  domain.SessionStatus
}

// ActiveSession is the in-memory view of the running session.
type ActiveSession struct {
	Session   domain.Session
	LogID     string
	StartedAt time.Time
	EndsAt    time.Time
}

// SessionManagerStore is the slice of the store the SessionManager uses.
type SessionManagerStore interface {
	domain.SessionStore
	domain.ScheduleStore
}

// SessionManager owns the single brick session.
// Only the SessionManager mutates session state. Writes go to the store
// first; memory changes only after the write succeeds.
type SessionManager struct {
	config SessionConfig
	store  SessionManagerStore
	clock  domain.Clock
	logger *zap.Logger

	mu            sync.Mutex // serializes start/complete/override/reconcile
	current       atomic.Pointer[ActiveSession]
	monitorCancel context.CancelFunc
	wg            sync.WaitGroup
	accessLogged  map[string]struct{}

	obsMu     sync.RWMutex
	observers []func(SessionEvent)
}

// NewSessionManager creates a session manager. Call Init before use.
func NewSessionManager(config SessionConfig, store SessionManagerStore, clock domain.Clock, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		config:       config,
		store:        store,
		clock:        clock,
		logger:       logger,
		accessLogged: make(map[string]struct{}),
	}
}

// Subscribe registers fn for lifecycle events. Events are delivered on the
// goroutine that caused them, after the manager's lock is released.
func (m *SessionManager) Subscribe(fn func(SessionEvent)) {
	m.obsMu.Lock()
	m.observers = append(m.observers, fn)
	m.obsMu.Unlock()
}

func (m *SessionManager) emit(ev *SessionEvent) {
	if ev == nil {
		return
	}
	m.obsMu.RLock()
	observers := append([]func(SessionEvent){}, m.observers...)
	m.obsMu.RUnlock()
	for _, fn := range observers {
		fn(*ev)
	}
}

// Init recovers a session left bricked by a previous process. An expired
// session is completed immediately; otherwise monitoring resumes.
func (m *SessionManager) Init(ctx context.Context) error {
	stored, err := m.store.FindBrickedSession(ctx)
	if err != nil {
		return fmt.Errorf("find bricked session: %w", err)
	}
	if stored == nil {
		return nil
	}
	m.mu.Lock()
	ev, err := m.adoptLocked(ctx, *stored)
	m.mu.Unlock()
	m.emit(ev)
	return err
}

func (m *SessionManager) adoptLocked(ctx context.Context, s domain.Session) (*SessionEvent, error) {
	if m.current.Load() != nil {
		return nil, nil
	}
	now := m.clock.Now()
	if s.CurrentStart == nil || s.CurrentEnd == nil {
		m.logger.Warn("bricked session without timestamps, ending it", zap.String("session", s.ID))
		start := now
		s.CurrentStart, s.CurrentEnd = &start, &start
	}

	logID, err := m.openLogFor(ctx, s)
	if err != nil {
		return nil, err
	}
	active := &ActiveSession{
		Session:   s,
		LogID:     logID,
		StartedAt: *s.CurrentStart,
		EndsAt:    *s.CurrentEnd,
	}

	if !now.Before(active.EndsAt) {
		m.logger.Info("recovered session already expired, completing",
			zap.String("session", s.ID),
			zap.Time("ended_at", active.EndsAt))
		return m.completeLocked(ctx, active, domain.StatusCompleted, "")
	}

	m.current.Store(active)
	m.accessLogged = make(map[string]struct{})
	m.startMonitorLocked(active)
	m.logger.Info("session resumed",
		zap.String("session", s.ID),
		zap.String("name", s.Name),
		zap.Duration("remaining", active.EndsAt.Sub(now)))
	return &SessionEvent{Kind: SessionStarted, Session: s, Status: domain.StatusOngoing}, nil
}

// openLogFor finds the open log of a bricked session, re-opening one if the
// store lost it.
func (m *SessionManager) openLogFor(ctx context.Context, s domain.Session) (string, error) {
	log, err := m.store.OpenSessionLog(ctx, s.ID)
	if err == nil {
		return log.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("open session log: %w", err)
	}
	fresh := domain.SessionLog{
		ID:                uuid.New().String(),
		SessionID:         s.ID,
		StartedAt:         *s.CurrentStart,
		ScheduledDuration: s.CurrentEnd.Sub(*s.CurrentStart),
		Status:            domain.StatusOngoing,
	}
	if err := m.store.StartSession(ctx, s.ID, *s.CurrentStart, *s.CurrentEnd, fresh); err != nil {
		return "", fmt.Errorf("reopen session log: %w", err)
	}
	return fresh.ID, nil
}

// SaveDefinition validates and persists a session definition.
func (m *SessionManager) SaveDefinition(ctx context.Context, s domain.Session) (*domain.Session, error) {
	if s.Type == "" {
		s.Type = domain.SessionFocus
	}
	if !s.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown session type %q", domain.ErrInvalidDefinition, s.Type)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("%w: session needs a name", domain.ErrInvalidDefinition)
	}
	if s.ScheduleID == "" && s.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: session needs a duration or a schedule", domain.ErrInvalidDefinition)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CurrentStart, s.CurrentEnd, s.IsCurrentlyBricked = nil, nil, false
	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &s, nil
}

// StartDurationSession starts a duration-based definition now.
func (m *SessionManager) StartDurationSession(ctx context.Context, sessionID string) error {
	def, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: session %s does not exist", domain.ErrInvalidDefinition, sessionID)
		}
		return fmt.Errorf("get session: %w", err)
	}
	if def.DurationMinutes <= 0 {
		return fmt.Errorf("%w: session %s has no duration", domain.ErrInvalidDefinition, sessionID)
	}

	m.mu.Lock()
	now := m.clock.Now()
	ev, err := m.startLocked(ctx, *def, now, now.Add(def.Duration()))
	m.mu.Unlock()
	m.emit(ev)
	return err
}

// QuickStart saves an ad-hoc focus definition and starts it.
func (m *SessionManager) QuickStart(ctx context.Context, minutes int, allowEmergency bool, allowlist []string) (*domain.Session, error) {
	def, err := m.SaveDefinition(ctx, domain.Session{
		Type:                   domain.SessionFocus,
		Name:                   fmt.Sprintf("Quick focus %dm", minutes),
		DurationMinutes:        minutes,
		AllowEmergencyOverride: allowEmergency,
		Allowlist:              allowlist,
	})
	if err != nil {
		return nil, err
	}
	if err := m.StartDurationSession(ctx, def.ID); err != nil {
		return nil, err
	}
	return def, nil
}

// StartScheduledSession starts the session owned by a whole-device schedule,
// ending at the next occurrence of the schedule's end time.
func (m *SessionManager) StartScheduledSession(ctx context.Context, sched domain.Schedule) error {
	if !sched.WholeDevice {
		return fmt.Errorf("%w: schedule %s is not whole-device", domain.ErrInvalidDefinition, sched.ID)
	}
	def, err := m.definitionForSchedule(ctx, sched)
	if err != nil {
		return err
	}

	m.mu.Lock()
	now := m.clock.Now()
	end := sched.NextEnd(now)
	ev, err := m.startLocked(ctx, *def, now, end)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := m.store.SetScheduleActive(ctx, sched.ID, &now, &end); err != nil {
		m.logger.Warn("failed to record schedule snapshot", zap.String("schedule", sched.ID), zap.Error(err))
	}
	m.emit(ev)
	return nil
}

func (m *SessionManager) definitionForSchedule(ctx context.Context, sched domain.Schedule) (*domain.Session, error) {
	sessionType := sched.SessionType
	if sessionType == "" {
		sessionType = domain.SessionSleepSchedule
	}
	def, err := m.store.FindSessionBySchedule(ctx, sched.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find schedule session: %w", err)
	}
	if def == nil {
		def = &domain.Session{ID: uuid.New().String(), ScheduleID: sched.ID}
	}
	def.Type = sessionType
	def.Name = sched.Name
	def.AllowEmergencyOverride = sched.AllowEmergencyOverride
	def.Allowlist = sched.Allowlist
	if err := m.store.SaveSession(ctx, *def); err != nil {
		return nil, fmt.Errorf("save schedule session: %w", err)
	}
	return def, nil
}

// RanInCurrentWindow reports whether the schedule's session already started
// during the window occurrence containing now.
func (m *SessionManager) RanInCurrentWindow(ctx context.Context, sched domain.Schedule, now time.Time) (bool, error) {
	def, err := m.store.FindSessionBySchedule(ctx, sched.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logs, err := m.store.ListSessionLogs(ctx, def.ID)
	if err != nil {
		return false, err
	}
	windowStart := sched.LastStart(now)
	for _, l := range logs {
		if !l.StartedAt.Before(windowStart) {
			return true, nil
		}
	}
	return false, nil
}

func (m *SessionManager) startLocked(ctx context.Context, def domain.Session, start, end time.Time) (*SessionEvent, error) {
	if m.current.Load() != nil {
		return nil, domain.ErrSessionActive
	}
	log := domain.SessionLog{
		ID:                uuid.New().String(),
		SessionID:         def.ID,
		StartedAt:         start,
		ScheduledDuration: end.Sub(start),
		Status:            domain.StatusOngoing,
	}
	if err := m.store.StartSession(ctx, def.ID, start, end, log); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	def.CurrentStart, def.CurrentEnd, def.IsCurrentlyBricked = &start, &end, true
	active := &ActiveSession{Session: def, LogID: log.ID, StartedAt: start, EndsAt: end}
	m.current.Store(active)
	m.accessLogged = make(map[string]struct{})
	m.startMonitorLocked(active)

	m.logger.Info("session started",
		zap.String("session", def.ID),
		zap.String("name", def.Name),
		zap.String("type", string(def.Type)),
		zap.Time("ends_at", end))
	return &SessionEvent{Kind: SessionStarted, Session: def, Status: domain.StatusOngoing}, nil
}

// CompleteCurrentSession closes the running session as COMPLETED.
// It is a no-op when nothing is running.
func (m *SessionManager) CompleteCurrentSession(ctx context.Context) error {
	m.mu.Lock()
	cur := m.current.Load()
	if cur == nil {
		m.mu.Unlock()
		return nil
	}
	ev, err := m.completeLocked(ctx, cur, domain.StatusCompleted, "")
	m.mu.Unlock()
	m.emit(ev)
	return err
}

// EmergencyOverride ends the running session early when it allows that.
func (m *SessionManager) EmergencyOverride(ctx context.Context, reason string) error {
	m.mu.Lock()
	cur := m.current.Load()
	if cur == nil {
		m.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	if !cur.Session.AllowEmergencyOverride {
		m.mu.Unlock()
		return domain.ErrEmergencyNotPermitted
	}
	ev, err := m.completeLocked(ctx, cur, domain.StatusEmergencyOverride, reason)
	m.mu.Unlock()
	m.emit(ev)
	return err
}

// completeLocked closes the log, then clears memory; the caller emits the
// returned event last.
func (m *SessionManager) completeLocked(ctx context.Context, cur *ActiveSession, status domain.SessionStatus, reason string) (*SessionEvent, error) {
	now := m.clock.Now()
	log := domain.SessionLog{
		ID:                cur.LogID,
		SessionID:         cur.Session.ID,
		StartedAt:         cur.StartedAt,
		EndedAt:           &now,
		ScheduledDuration: cur.EndsAt.Sub(cur.StartedAt),
		ActualDuration:    now.Sub(cur.StartedAt),
		Status:            status,
		OverrideReason:    reason,
	}
	if err := m.store.CompleteSession(ctx, cur.Session.ID, log); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	m.current.Store(nil)
	if m.monitorCancel != nil {
		m.monitorCancel()
		m.monitorCancel = nil
	}
	if cur.Session.ScheduleID != "" {
		if err := m.store.SetScheduleActive(ctx, cur.Session.ScheduleID, nil, nil); err != nil {
			m.logger.Warn("failed to clear schedule snapshot",
				zap.String("schedule", cur.Session.ScheduleID), zap.Error(err))
		}
	}

	m.logger.Info("session ended",
		zap.String("session", cur.Session.ID),
		zap.String("status", string(status)),
		zap.Duration("actual", log.ActualDuration),
		zap.String("reason", reason))

	ended := cur.Session
	ended.CurrentStart, ended.CurrentEnd, ended.IsCurrentlyBricked = nil, nil, false
	return &SessionEvent{Kind: SessionEnded, Session: ended, Status: status}, nil
}

func (m *SessionManager) startMonitorLocked(active *ActiveSession) {
	if m.monitorCancel != nil {
		m.monitorCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.monitorCancel = cancel
	m.wg.Add(1)
	go m.monitor(ctx, active.LogID)
}

// monitor completes the session once its end time passes.
func (m *SessionManager) monitor(ctx context.Context, logID string) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := m.current.Load()
			if cur == nil || cur.LogID != logID {
				return
			}
			if m.clock.Now().Before(cur.EndsAt) {
				continue
			}
			if m.expire(ctx, logID) {
				return
			}
		}
	}
}

func (m *SessionManager) expire(ctx context.Context, logID string) bool {
	m.mu.Lock()
	cur := m.current.Load()
	if ctx.Err() != nil || cur == nil || cur.LogID != logID {
		m.mu.Unlock()
		return true
	}
	ev, err := m.completeLocked(context.Background(), cur, domain.StatusCompleted, "")
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("failed to complete expired session, will retry", zap.Error(err))
		return false
	}
	m.emit(ev)
	return true
}

// Reconcile aligns memory with the store when another process started or
// ended a session.
func (m *SessionManager) Reconcile(ctx context.Context) error {
	stored, err := m.store.FindBrickedSession(ctx)
	if err != nil {
		return fmt.Errorf("find bricked session: %w", err)
	}

	var events []*SessionEvent
	m.mu.Lock()
	cur := m.current.Load()
	if cur != nil && (stored == nil || stored.ID != cur.Session.ID) {
		events = append(events, m.dropLocked(ctx, cur))
	}
	if stored != nil && (cur == nil || stored.ID != cur.Session.ID) {
		ev, aerr := m.adoptLocked(ctx, *stored)
		err = aerr
		events = append(events, ev)
	}
	m.mu.Unlock()

	for _, ev := range events {
		m.emit(ev)
	}
	return err
}

// dropLocked forgets a session that the store no longer considers bricked.
func (m *SessionManager) dropLocked(ctx context.Context, cur *ActiveSession) *SessionEvent {
	status := domain.StatusCompleted
	if log, err := m.store.GetSessionLog(ctx, cur.LogID); err == nil {
		status = log.Status
	}
	m.current.Store(nil)
	if m.monitorCancel != nil {
		m.monitorCancel()
		m.monitorCancel = nil
	}
	m.logger.Info("session ended by another process",
		zap.String("session", cur.Session.ID),
		zap.String("status", string(status)))
	ended := cur.Session
	ended.CurrentStart, ended.CurrentEnd, ended.IsCurrentlyBricked = nil, nil, false
	return &SessionEvent{Kind: SessionEnded, Session: ended, Status: status}
}

// IsPhoneBricked is the hot-path predicate. It never blocks.
func (m *SessionManager) IsPhoneBricked() bool {
	return m.current.Load() != nil
}

// Current returns a copy of the running session.
func (m *SessionManager) Current() (ActiveSession, bool) {
	cur := m.current.Load()
	if cur == nil {
		return ActiveSession{}, false
	}
	return *cur, true
}

// Remaining returns the time left in the running session.
func (m *SessionManager) Remaining() time.Duration {
	cur := m.current.Load()
	if cur == nil {
		return 0
	}
	r := cur.EndsAt.Sub(m.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}

// IsAppAllowedInCurrentSession checks the running session's explicit allowlist.
func (m *SessionManager) IsAppAllowedInCurrentSession(pkg string) bool {
	cur := m.current.Load()
	return cur != nil && cur.Session.Allows(pkg)
}

// RecordBypassAttempt increments the running session's bypass counter.
func (m *SessionManager) RecordBypassAttempt(ctx context.Context, pkg string) {
	cur := m.current.Load()
	if cur == nil {
		return
	}
	if err := m.store.RecordBypassAttempt(ctx, cur.LogID); err != nil {
		m.logger.Warn("failed to record bypass attempt", zap.String("package", pkg), zap.Error(err))
		return
	}
	m.logger.Info("bypass attempt", zap.String("session", cur.Session.ID), zap.String("package", pkg))
}

// RecordEssentialAccess logs the first access to pkg in the running session.
func (m *SessionManager) RecordEssentialAccess(ctx context.Context, pkg string) {
	cur := m.current.Load()
	if cur == nil {
		return
	}
	m.mu.Lock()
	if _, seen := m.accessLogged[pkg]; seen {
		m.mu.Unlock()
		return
	}
	m.accessLogged[pkg] = struct{}{}
	m.mu.Unlock()

	if err := m.store.RecordEssentialAccess(ctx, cur.LogID, pkg); err != nil {
		m.logger.Warn("failed to record essential access", zap.String("package", pkg), zap.Error(err))
	}
}

// Definitions lists stored session definitions.
func (m *SessionManager) Definitions(ctx context.Context) ([]domain.Session, error) {
	return m.store.ListSessions(ctx)
}

// Logs lists session logs; an empty sessionID lists all.
func (m *SessionManager) Logs(ctx context.Context, sessionID string) ([]domain.SessionLog, error) {
	return m.store.ListSessionLogs(ctx, sessionID)
}

// Close stops monitoring. The session stays bricked in the store.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.monitorCancel != nil {
		m.monitorCancel()
		m.monitorCancel = nil
	}
	m.mu.Unlock()
	m.wg.Wait()
}

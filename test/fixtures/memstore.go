package fixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// MemStore is an in-memory domain.Store with the same semantics as the
// SQLCipher store. Setting Err makes every call fail with it.
type MemStore struct {
	mu sync.Mutex

	Err error

	blocked    map[string]domain.BlockedItem // by identifier
	goals      map[string]domain.Goal
	schedules  map[string]domain.Schedule
	sessions   map[string]domain.Session
	logs       map[string]domain.SessionLog
	logOrder   []string
	essentials map[string]domain.EssentialApp
	unlocks    map[string]domain.TemporaryUnlock
	timers     map[string]domain.TimerChallengeState
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		blocked:    make(map[string]domain.BlockedItem),
		goals:      make(map[string]domain.Goal),
		schedules:  make(map[string]domain.Schedule),
		sessions:   make(map[string]domain.Session),
		logs:       make(map[string]domain.SessionLog),
		essentials: make(map[string]domain.EssentialApp),
		unlocks:    make(map[string]domain.TemporaryUnlock),
		timers:     make(map[string]domain.TimerChallengeState),
	}
}

// SetErr swaps the injected failure.
func (m *MemStore) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func match(observed, stored string, mode domain.MatchMode) bool {
	if observed == stored {
		return true
	}
	return mode == domain.MatchContains && domain.IdentifiersOverlap(observed, stored)
}

// --- BlockedItemStore ---

func (m *MemStore) AddBlockedItem(_ context.Context, item domain.BlockedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.blocked[item.Identifier] = item
	return nil
}

func (m *MemStore) RemoveBlockedItem(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.blocked[identifier]; !ok {
		return domain.ErrNotFound
	}
	delete(m.blocked, identifier)
	return nil
}

func (m *MemStore) ListBlockedItems(_ context.Context) ([]domain.BlockedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.BlockedItem, 0, len(m.blocked))
	for _, b := range m.blocked {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) FindBlockedItem(_ context.Context, identifier string, kind domain.ItemKind, mode domain.MatchMode, now time.Time) (*domain.BlockedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, b := range m.sortedBlocked() {
		if b.Kind != kind || b.IsExpired(now) {
			continue
		}
		if match(identifier, b.Identifier, mode) {
			item := b
			return &item, nil
		}
	}
	return nil, nil
}

func (m *MemStore) sortedBlocked() []domain.BlockedItem {
	out := make([]domain.BlockedItem, 0, len(m.blocked))
	for _, b := range m.blocked {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

func (m *MemStore) DeleteExpiredBlockedItems(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for id, b := range m.blocked {
		if b.IsExpired(now) {
			delete(m.blocked, id)
			n++
		}
	}
	return n, nil
}

// --- GoalStore ---

func (m *MemStore) CreateGoal(_ context.Context, goal domain.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	goal.Items = append([]domain.GoalItem(nil), goal.Items...)
	m.goals[goal.ID] = goal
	return nil
}

func (m *MemStore) AddGoalItem(_ context.Context, item domain.GoalItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	g, ok := m.goals[item.GoalID]
	if !ok {
		return domain.ErrNotFound
	}
	g.Items = append(g.Items, item)
	m.goals[g.ID] = g
	return nil
}

func (m *MemStore) GetGoal(_ context.Context, id string) (*domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	g, ok := m.goals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	g.Items = append([]domain.GoalItem(nil), g.Items...)
	return &g, nil
}

func (m *MemStore) ListGoals(_ context.Context) ([]domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.Goal, 0, len(m.goals))
	for _, g := range m.goals {
		g.Items = append([]domain.GoalItem(nil), g.Items...)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MemStore) FindGoalItem(_ context.Context, identifier string, kind domain.ItemKind, mode domain.MatchMode, now time.Time) (*domain.GoalItem, *domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, nil, m.Err
	}
	ids := make([]string, 0, len(m.goals))
	for id := range m.goals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		g := m.goals[id]
		if g.IsOver(now) {
			continue
		}
		for _, it := range g.Items {
			if it.Kind == kind && match(identifier, it.Identifier, mode) {
				item := it
				goal := g
				return &item, &goal, nil
			}
		}
	}
	return nil, nil, nil
}

func (m *MemStore) CompleteExpiredGoals(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for id, g := range m.goals {
		if !g.Completed && !now.Before(g.EndsAt()) {
			g.Completed = true
			m.goals[id] = g
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DeleteGoal(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	g, ok := m.goals[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !g.Completed {
		return domain.ErrGoalLocked
	}
	delete(m.goals, id)
	return nil
}

// --- ScheduleStore ---

func (m *MemStore) SaveSchedule(_ context.Context, s domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *MemStore) GetSchedule(_ context.Context, id string) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MemStore) ListSchedules(_ context.Context) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *MemStore) SetScheduleActive(_ context.Context, id string, start, end *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	s, ok := m.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.CurrentStart, s.CurrentEnd = start, end
	m.schedules[id] = s
	return nil
}

// --- SessionStore ---

func (m *MemStore) SaveSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if prev, ok := m.sessions[s.ID]; ok {
		// Definition edits never touch run state.
		s.CurrentStart, s.CurrentEnd, s.IsCurrentlyBricked = prev.CurrentStart, prev.CurrentEnd, prev.IsCurrentlyBricked
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MemStore) ListSessions(_ context.Context) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) FindSessionBySchedule(_ context.Context, scheduleID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.sessions {
		if s.ScheduleID == scheduleID {
			out := s
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemStore) FindBrickedSession(_ context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.sessions {
		if s.IsCurrentlyBricked {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemStore) StartSession(_ context.Context, sessionID string, start, end time.Time, log domain.SessionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range m.sessions {
		if other.IsCurrentlyBricked && other.ID != sessionID {
			return domain.ErrSessionActive
		}
	}
	s.CurrentStart, s.CurrentEnd, s.IsCurrentlyBricked = &start, &end, true
	m.sessions[sessionID] = s
	m.logs[log.ID] = log
	m.logOrder = append(m.logOrder, log.ID)
	return nil
}

func (m *MemStore) CompleteSession(_ context.Context, sessionID string, log domain.SessionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	prev, ok := m.logs[log.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if prev.Status != domain.StatusOngoing {
		return nil
	}
	log.BypassAttempts = prev.BypassAttempts
	log.EssentialAccess = prev.EssentialAccess
	s.CurrentStart, s.CurrentEnd, s.IsCurrentlyBricked = nil, nil, false
	m.sessions[sessionID] = s
	m.logs[log.ID] = log
	return nil
}

func (m *MemStore) GetSessionLog(_ context.Context, id string) (*domain.SessionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	l, ok := m.logs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (m *MemStore) OpenSessionLog(_ context.Context, sessionID string) (*domain.SessionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for i := len(m.logOrder) - 1; i >= 0; i-- {
		l := m.logs[m.logOrder[i]]
		if l.SessionID == sessionID && l.Status == domain.StatusOngoing {
			return &l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemStore) ListSessionLogs(_ context.Context, sessionID string) ([]domain.SessionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.SessionLog
	for _, id := range m.logOrder {
		l := m.logs[id]
		if sessionID == "" || l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemStore) RecordBypassAttempt(_ context.Context, logID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	l, ok := m.logs[logID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.Status == domain.StatusOngoing {
		l.BypassAttempts++
		m.logs[logID] = l
	}
	return nil
}

func (m *MemStore) RecordEssentialAccess(_ context.Context, logID, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	l, ok := m.logs[logID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.Status != domain.StatusOngoing {
		return nil
	}
	for _, p := range l.EssentialAccess {
		if p == pkg {
			return nil
		}
	}
	l.EssentialAccess = append(append([]string(nil), l.EssentialAccess...), pkg)
	m.logs[logID] = l
	return nil
}

// --- EssentialAppStore ---

func (m *MemStore) ListEssentialApps(_ context.Context) ([]domain.EssentialApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.EssentialApp, 0, len(m.essentials))
	for _, e := range m.essentials {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out, nil
}

func (m *MemStore) AddEssentialApp(_ context.Context, app domain.EssentialApp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if prev, ok := m.essentials[app.Package]; ok && prev.IsSystemEssential {
		return nil
	}
	m.essentials[app.Package] = app
	return nil
}

func (m *MemStore) RemoveEssentialApp(_ context.Context, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	e, ok := m.essentials[pkg]
	if !ok {
		return domain.ErrNotFound
	}
	if e.IsSystemEssential {
		return domain.ErrSystemEssential
	}
	delete(m.essentials, pkg)
	return nil
}

// --- UnlockStore ---

func (m *MemStore) GrantUnlock(_ context.Context, u domain.TemporaryUnlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.unlocks[u.Identifier] = u
	return nil
}

func (m *MemStore) ActiveUnlock(_ context.Context, identifier string, now time.Time) (*domain.TemporaryUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.unlocks[identifier]
	if !ok || !now.Before(u.ExpiresAt) {
		return nil, nil
	}
	return &u, nil
}

func (m *MemStore) DeleteExpiredUnlocks(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for id, u := range m.unlocks {
		if !now.Before(u.ExpiresAt) {
			delete(m.unlocks, id)
			n++
		}
	}
	return n, nil
}

// --- TimerStore ---

func (m *MemStore) SaveTimerState(_ context.Context, s domain.TimerChallengeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.timers[s.Identifier] = s
	return nil
}

func (m *MemStore) GetTimerState(_ context.Context, identifier string) (*domain.TimerChallengeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.timers[identifier]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) ClearTimerState(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.timers, identifier)
	return nil
}

func (m *MemStore) Close() error { return nil }

var _ domain.Store = (*MemStore)(nil)

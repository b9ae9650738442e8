package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// mockRegistry is a test double for domain.DaemonRegistry.
type mockRegistry struct {
	mu         sync.Mutex
	registered []domain.Daemon
	heartbeats int
	alive      bool
	aliveErr   error
}

func (m *mockRegistry) Register(d domain.Daemon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, d)
	return nil
}

func (m *mockRegistry) UpdateHeartbeat(domain.DaemonRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *mockRegistry) IsPartnerAlive(domain.DaemonRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive, m.aliveErr
}

func (m *mockRegistry) GetAll() (*domain.RegistryEntry, error) { return nil, nil }
func (m *mockRegistry) Clear() error                           { return nil }

func (m *mockRegistry) Heartbeats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}

// spawnRecorder records spawned roles.
type spawnRecorder struct {
	mu    sync.Mutex
	roles []domain.DaemonRole
	err   error
}

func (s *spawnRecorder) Spawn(role domain.DaemonRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = append(s.roles, role)
	return s.err
}

func (s *spawnRecorder) Roles() []domain.DaemonRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DaemonRole(nil), s.roles...)
}

type fakeSessions struct {
	inits, reconciles atomic.Int32
}

func (f *fakeSessions) Init(context.Context) error      { f.inits.Add(1); return nil }
func (f *fakeSessions) Reconcile(context.Context) error { f.reconciles.Add(1); return nil }

// blockingLoop runs until ctx is done, or returns err right away when set.
type blockingLoop struct {
	started atomic.Bool
	stopped atomic.Bool
	err     error
}

func (l *blockingLoop) Run(ctx context.Context) error {
	l.started.Store(true)
	if l.err != nil {
		return l.err
	}
	<-ctx.Done()
	l.stopped.Store(true)
	return nil
}

func fastWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconcileInterval:    5 * time.Millisecond,
		HeartbeatInterval:    5 * time.Millisecond,
		PartnerCheckInterval: time.Hour,
	}
}

func TestDefaultConfigs(t *testing.T) {
	w := DefaultWatcherConfig()
	assert.Equal(t, 5*time.Second, w.ReconcileInterval)
	assert.Equal(t, 30*time.Second, w.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, w.PartnerCheckInterval)

	g := DefaultGuardianConfig()
	assert.Equal(t, 10*time.Second, g.WatcherCheckInterval)
	assert.Equal(t, 30*time.Second, g.HeartbeatInterval)
}

func TestWatcher_RunsLoopsUntilCanceled(t *testing.T) {
	reg := &mockRegistry{alive: true}
	sessions := &fakeSessions{}
	enforcer, trigger := &blockingLoop{}, &blockingLoop{}
	spawn := &spawnRecorder{}

	w := NewWatcher(fastWatcherConfig(), sessions, reg, spawn.Spawn,
		domain.Daemon{PID: 42, Role: domain.RoleWatcher}, zap.NewNop(), enforcer, trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return enforcer.started.Load() && trigger.started.Load() &&
			sessions.reconciles.Load() > 0 && reg.Heartbeats() > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), sessions.inits.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.True(t, enforcer.stopped.Load())
	require.Len(t, reg.registered, 1)
	assert.Equal(t, 42, reg.registered[0].PID)
	assert.Empty(t, spawn.Roles())
}

func TestWatcher_LoopFailureStopsOthers(t *testing.T) {
	boom := errors.New("boom")
	healthy := &blockingLoop{}
	w := NewWatcher(fastWatcherConfig(), &fakeSessions{}, &mockRegistry{}, (&spawnRecorder{}).Spawn,
		domain.Daemon{PID: 1, Role: domain.RoleWatcher}, zap.NewNop(), healthy, &blockingLoop{err: boom})

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, healthy.stopped.Load())
}

func TestRestartPartner(t *testing.T) {
	tests := []struct {
		name      string
		self      domain.DaemonRole
		alive     bool
		aliveErr  error
		spawnErr  error
		wantSpawn []domain.DaemonRole
		want      bool
	}{
		{name: "guardian restarts dead watcher", self: domain.RoleGuardian, wantSpawn: []domain.DaemonRole{domain.RoleWatcher}, want: true},
		{name: "watcher restarts dead guardian", self: domain.RoleWatcher, wantSpawn: []domain.DaemonRole{domain.RoleGuardian}, want: true},
		{name: "alive partner is left alone", self: domain.RoleGuardian, alive: true},
		{name: "registry error skips", self: domain.RoleGuardian, aliveErr: errors.New("db locked")},
		{name: "spawn failure reported", self: domain.RoleGuardian, spawnErr: errors.New("exec"), wantSpawn: []domain.DaemonRole{domain.RoleWatcher}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &mockRegistry{alive: tt.alive, aliveErr: tt.aliveErr}
			spawn := &spawnRecorder{err: tt.spawnErr}
			got := restartPartner(reg, spawn.Spawn, tt.self, zap.NewNop())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSpawn, spawn.Roles())
		})
	}
}

func TestGuardian_Run(t *testing.T) {
	reg := &mockRegistry{}
	spawn := &spawnRecorder{}
	g := NewGuardian(GuardianConfig{WatcherCheckInterval: 5 * time.Millisecond, HeartbeatInterval: time.Hour},
		reg, spawn.Spawn, domain.Daemon{PID: 7, Role: domain.RoleGuardian}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(spawn.Roles()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.RoleWatcher, spawn.Roles()[0])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("guardian did not stop")
	}
}

package infra

import (
	"os"
	"strings"
	"sync"
)

// mockProcessManager is a test double for domain.ProcessManager.
type mockProcessManager struct {
	mu          sync.Mutex
	runningPIDs map[int]bool
	names       map[int]string
	killedPIDs  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []int
	for pid, name := range m.names {
		if m.runningPIDs[pid] && matchesProcessName(name, nameCandidates(pattern)) {
			found = append(found, pid)
		}
	}
	return found, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = running
}

// Spawn registers a running process with name.
func (m *mockProcessManager) Spawn(pid int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = true
	m.names[pid] = strings.ToLower(name)
}

func (m *mockProcessManager) Killed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.killedPIDs...)
}

// Package infra implements infrastructure concerns (encrypted store, process
// control, desktop sensing and overlay strategies).
package infra

import (
	"context"
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs whose process name contains pattern, ignoring case.
// A reverse-domain package such as "com.instagram.android" also matches a
// process named after one of its distinctive segments ("instagram").
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	candidates := nameCandidates(pattern)
	var found []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // exited
		}
		if matchesProcessName(name, candidates) {
			found = append(found, int(p.Pid))
		}
	}
	return found, nil
}

// genericSegments never identify an app on their own.
var genericSegments = map[string]bool{
	"com": true, "org": true, "net": true, "android": true, "app": true,
	"apps": true, "mobile": true, "client": true, "desktop": true,
}

func nameCandidates(pattern string) []string {
	lower := strings.ToLower(strings.TrimSpace(pattern))
	if lower == "" {
		return nil
	}
	out := []string{lower}
	parts := strings.Split(lower, ".")
	if len(parts) < 2 {
		return out
	}
	for _, seg := range parts[1:] {
		if len(seg) >= 4 && !genericSegments[seg] {
			out = append(out, seg)
		}
	}
	return out
}

func matchesProcessName(name string, candidates []string) bool {
	lower := strings.ToLower(name)
	for _, c := range candidates {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsRunning checks if a PID exists by sending signal 0.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// ProcessProbe reports whether the desktop enforcement paths work: process
// listing for sensing, signalling for the overlay strategy.
type ProcessProbe struct {
	pm domain.ProcessManager
}

// NewProcessProbe creates a probe over pm.
func NewProcessProbe(pm domain.ProcessManager) *ProcessProbe {
	return &ProcessProbe{pm: pm}
}

// CanDrawOverlay reports whether this process may signal processes.
func (p *ProcessProbe) CanDrawOverlay(_ context.Context) bool {
	return p.pm.IsRunning(p.pm.GetCurrentPID())
}

// SensingEnabled reports whether the process table is readable.
func (p *ProcessProbe) SensingEnabled(ctx context.Context) bool {
	pids, err := process.PidsWithContext(ctx)
	return err == nil && len(pids) > 0
}

var (
	_ domain.ProcessManager  = (*ProcessManagerImpl)(nil)
	_ domain.PermissionProbe = (*ProcessProbe)(nil)
)

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// Launcher spawns detached daemon processes by re-executing a binary with
// the hidden "daemon" command.
type Launcher struct {
	Executable string
	ExtraArgs  []string // forwarded flags such as --config and --data-dir
}

// NewLauncher returns a launcher for the running executable.
func NewLauncher(extraArgs ...string) (*Launcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &Launcher{Executable: exe, ExtraArgs: extraArgs}, nil
}

// Command builds the exec.Cmd for role without starting it.
func (l *Launcher) Command(role domain.DaemonRole) *exec.Cmd {
	args := append([]string{"daemon", "--role", string(role)}, l.ExtraArgs...)
	cmd := exec.Command(l.Executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	return cmd
}

// Start spawns a detached daemon for role.
func (l *Launcher) Start(role domain.DaemonRole) error {
	cmd := l.Command(role)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", role, err)
	}
	// Reap the child when it exits; the daemon outlives this call.
	go cmd.Wait()
	return nil
}

// StartBoth starts the watcher, then the guardian.
func (l *Launcher) StartBoth() error {
	if err := l.Start(domain.RoleWatcher); err != nil {
		return err
	}
	return l.Start(domain.RoleGuardian)
}

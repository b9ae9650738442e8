package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// AutostartLabel names the login service on every platform.
const AutostartLabel = "com.brickmon.agent"

// LaunchAgent plist template (macOS, runs as the user at login).
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>start</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>
</dict>
</plist>
`

// systemd user unit template (Linux). start forks the daemons and exits.
const systemdUnitTemplate = `[Unit]
Description=brickmon focus enforcement ({{.Label}})

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart={{.ExecutablePath}} start
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.ErrorLogPath}}

[Install]
WantedBy=default.target
`

type serviceConfig struct {
	Label          string
	ExecutablePath string
	LogPath        string
	ErrorLogPath   string
}

// CommandRunner runs a service manager command.
type CommandRunner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// AutostartManagerImpl implements domain.AutostartManager with a launchd
// LaunchAgent on macOS and a systemd user unit elsewhere.
type AutostartManagerImpl struct {
	launchd      bool
	path         string
	logPath      string
	errorLogPath string
	run          CommandRunner
}

// NewAutostartManager picks the service flavour for the running OS.
func NewAutostartManager(logPath, errorLogPath string) (domain.AutostartManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	if runtime.GOOS == "darwin" {
		path := filepath.Join(home, "Library/LaunchAgents", AutostartLabel+".plist")
		return NewAutostartManagerWithPath(true, path, logPath, errorLogPath, runCommand), nil
	}
	path := filepath.Join(home, ".config/systemd/user", AutostartLabel+".service")
	return NewAutostartManagerWithPath(false, path, logPath, errorLogPath, runCommand), nil
}

// NewAutostartManagerWithPath creates a manager at a specific path (for testing).
func NewAutostartManagerWithPath(launchd bool, path, logPath, errorLogPath string, run CommandRunner) *AutostartManagerImpl {
	return &AutostartManagerImpl{
		launchd:      launchd,
		path:         path,
		logPath:      logPath,
		errorLogPath: errorLogPath,
		run:          run,
	}
}

func (m *AutostartManagerImpl) content(execPath string) ([]byte, error) {
	tmplStr := systemdUnitTemplate
	if m.launchd {
		tmplStr = launchAgentTemplate
	}
	tmpl, err := template.New("service").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("parse service template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, serviceConfig{
		Label:          AutostartLabel,
		ExecutablePath: execPath,
		LogPath:        m.logPath,
		ErrorLogPath:   m.errorLogPath,
	}); err != nil {
		return nil, fmt.Errorf("render service template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the service file and loads it.
func (m *AutostartManagerImpl) Install(execPath string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	content, err := m.content(execPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, content, 0644); err != nil {
		return err
	}
	return m.load()
}

// Uninstall unloads (ignoring errors) and removes the service file.
func (m *AutostartManagerImpl) Uninstall() error {
	_ = m.unload()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *AutostartManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func (m *AutostartManagerImpl) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(m.path)
	if err != nil {
		return true
	}
	expected, err := m.content(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

func (m *AutostartManagerImpl) Path() string {
	return m.path
}

func (m *AutostartManagerImpl) load() error {
	if m.launchd {
		return m.run("launchctl", "load", m.path)
	}
	if err := m.run("systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return m.run("systemctl", "--user", "enable", filepath.Base(m.path))
}

func (m *AutostartManagerImpl) unload() error {
	if m.launchd {
		return m.run("launchctl", "unload", m.path)
	}
	return m.run("systemctl", "--user", "disable", filepath.Base(m.path))
}

var _ domain.AutostartManager = (*AutostartManagerImpl)(nil)

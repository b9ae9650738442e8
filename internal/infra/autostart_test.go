package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRunner struct {
	calls []string
	err   error
}

func (r *recordedRunner) run(name string, args ...string) error {
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	return r.err
}

func TestAutostartManager_InstallAndUninstall(t *testing.T) {
	tests := []struct {
		name        string
		launchd     bool
		file        string
		wantContent []string
		wantLoad    []string
		wantUnload  []string
	}{
		{
			name:        "launchd",
			launchd:     true,
			file:        AutostartLabel + ".plist",
			wantContent: []string{"<string>/opt/brickmon</string>", "<string>start</string>", "<string>" + AutostartLabel + "</string>"},
			wantLoad:    []string{"launchctl load "},
			wantUnload:  []string{"launchctl unload "},
		},
		{
			name:        "systemd",
			file:        AutostartLabel + ".service",
			wantContent: []string{"ExecStart=/opt/brickmon start", "StandardError=append:/tmp/err.log"},
			wantLoad:    []string{"systemctl --user daemon-reload", "systemctl --user enable " + AutostartLabel + ".service"},
			wantUnload:  []string{"systemctl --user disable " + AutostartLabel + ".service"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agents", tt.file)
			r := &recordedRunner{}
			m := NewAutostartManagerWithPath(tt.launchd, path, "/tmp/out.log", "/tmp/err.log", r.run)

			assert.False(t, m.IsInstalled())
			require.NoError(t, m.Install("/opt/brickmon"))
			assert.True(t, m.IsInstalled())
			assert.Equal(t, path, m.Path())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			for _, want := range tt.wantContent {
				assert.Contains(t, string(data), want)
			}
			require.Len(t, r.calls, len(tt.wantLoad))
			for i, want := range tt.wantLoad {
				assert.True(t, strings.HasPrefix(r.calls[i], want), r.calls[i])
			}

			r.calls = nil
			require.NoError(t, m.Uninstall())
			assert.False(t, m.IsInstalled())
			require.Len(t, r.calls, len(tt.wantUnload))
			assert.True(t, strings.HasPrefix(r.calls[0], tt.wantUnload[0]))
		})
	}
}

func TestAutostartManager_NeedsUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), AutostartLabel+".service")
	m := NewAutostartManagerWithPath(false, path, "/tmp/out.log", "/tmp/err.log", (&recordedRunner{}).run)

	assert.False(t, m.NeedsUpdate("/opt/brickmon"), "nothing installed")
	require.NoError(t, m.Install("/opt/brickmon"))
	assert.False(t, m.NeedsUpdate("/opt/brickmon"))
	assert.True(t, m.NeedsUpdate("/usr/local/bin/brickmon"))
}

func TestAutostartManager_LoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), AutostartLabel+".service")
	r := &recordedRunner{err: errors.New("no user bus")}
	m := NewAutostartManagerWithPath(false, path, "/tmp/out.log", "/tmp/err.log", r.run)

	assert.Error(t, m.Install("/opt/brickmon"))
	assert.True(t, m.IsInstalled(), "file stays for a later retry")
	assert.NoError(t, m.Uninstall(), "unload errors are ignored")
}

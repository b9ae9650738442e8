package infra

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// appLaunchers are the parents of user-facing apps per OS. A process started
// from a shell or by another app is not an app.
var appLaunchers = map[string]map[string]bool{
	"darwin": {"launchd": true},
	"linux": {
		"gnome-shell": true, "plasmashell": true, "kwin_x11": true, "kwin_wayland": true,
		"xfce4-panel": true, "xfdesktop": true, "xfwm4": true, "lxpanel": true,
		"cinnamon": true, "mutter": true, "openbox": true, "i3": true, "sway": true,
	},
}

// systemPrefixes hold OS services and helper binaries.
var systemPrefixes = []string{
	"/System/", "/Library/Apple/", "/Library/PrivilegedHelperTools/",
	"/usr/libexec/", "/usr/lib/", "/usr/sbin/", "/sbin/", "/lib/",
}

// helperMarkers appear in the paths of bundled helpers and extensions.
var helperMarkers = []string{".xpc/", ".appex/", ".framework/", "/Contents/Library/", "/Helpers/"}

// isUserApp classifies a process by its executable path and parent name.
// On macOS an app also has to run from an .app bundle.
func isUserApp(goos, exe, parent string) bool {
	if !appLaunchers[goos][strings.ToLower(parent)] {
		return false
	}
	if exe == "" {
		return goos != "darwin"
	}
	for _, p := range systemPrefixes {
		if strings.HasPrefix(exe, p) {
			return false
		}
	}
	for _, m := range helperMarkers {
		if strings.Contains(exe, m) {
			return false
		}
	}
	return goos != "darwin" || strings.Contains(exe, ".app/Contents/MacOS/")
}

type userApp struct {
	name    string
	created time.Time
}

// DesktopAppSampler reads user-facing apps from the process table. It serves
// as the desktop UsageSampler (an app launched inside the window counts as a
// foreground sample at its creation time) and as the AppLister that session
// enforcement sweeps.
type DesktopAppSampler struct {
	ownPID int
	uid    int
	goos   string
	ignore map[string]bool
}

// NewDesktopAppSampler creates a sampler that skips ownPID and the given
// process names.
func NewDesktopAppSampler(ownPID int, ignore ...string) *DesktopAppSampler {
	s := &DesktopAppSampler{
		ownPID: ownPID,
		uid:    os.Getuid(),
		goos:   runtime.GOOS,
		ignore: make(map[string]bool, len(ignore)),
	}
	for _, name := range ignore {
		s.ignore[strings.ToLower(name)] = true
	}
	return s
}

func (s *DesktopAppSampler) apps(ctx context.Context) ([]userApp, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[int32]string, len(procs))
	for _, p := range procs {
		if name, err := p.NameWithContext(ctx); err == nil {
			names[p.Pid] = name
		}
	}

	var apps []userApp
	for _, p := range procs {
		name := names[p.Pid]
		if int(p.Pid) == s.ownPID || name == "" || s.ignore[strings.ToLower(name)] {
			continue
		}
		uids, err := p.UidsWithContext(ctx)
		if err != nil || len(uids) == 0 || int(uids[0]) != s.uid {
			continue
		}
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		if !isUserApp(s.goos, exe, names[ppid]) {
			continue
		}
		created, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			continue // exited
		}
		apps = append(apps, userApp{name: strings.ToLower(name), created: time.UnixMilli(created)})
	}
	return apps, nil
}

// RecentForeground returns apps created at or after since, oldest first.
func (s *DesktopAppSampler) RecentForeground(ctx context.Context, since time.Time) ([]domain.UsageSample, error) {
	apps, err := s.apps(ctx)
	if err != nil {
		return nil, err
	}
	var samples []domain.UsageSample
	for _, a := range apps {
		if !a.created.Before(since) {
			samples = append(samples, domain.UsageSample{Package: a.name, At: a.created})
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].At.Before(samples[j].At) })
	return samples, nil
}

// RunningApps returns the distinct names of running apps, sorted.
func (s *DesktopAppSampler) RunningApps(ctx context.Context) ([]string, error) {
	apps, err := s.apps(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(apps))
	var out []string
	for _, a := range apps {
		if !seen[a.name] {
			seen[a.name] = true
			out = append(out, a.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ domain.UsageSampler = (*DesktopAppSampler)(nil)
	_ domain.AppLister    = (*DesktopAppSampler)(nil)
)

package fixtures

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// RecordingRenderer records every overlay render/remove/reassert call.
type RecordingRenderer struct {
	mu         sync.Mutex
	Views      []domain.OverlayView
	Removed    int
	Reasserted []string
	Caps       domain.RendererCapabilities
}

func (r *RecordingRenderer) Render(_ context.Context, view domain.OverlayView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Views = append(r.Views, view)
	return nil
}

func (r *RecordingRenderer) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Removed++
	return nil
}

func (r *RecordingRenderer) Reassert(_ context.Context, blocked string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reasserted = append(r.Reasserted, blocked)
	return nil
}

// ReassertCount returns how many times Reassert was called.
func (r *RecordingRenderer) ReassertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Reasserted)
}

func (r *RecordingRenderer) Capabilities() domain.RendererCapabilities { return r.Caps }

// LastView returns the most recent render, if any.
func (r *RecordingRenderer) LastView() (domain.OverlayView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Views) == 0 {
		return domain.OverlayView{}, false
	}
	return r.Views[len(r.Views)-1], true
}

// BlockedNames returns the non-empty blocked names of every render, in order.
func (r *RecordingRenderer) BlockedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, v := range r.Views {
		if v.Blocked != "" {
			names = append(names, v.Blocked)
		}
	}
	return names
}

// RemoveCount returns how many times Remove was called.
func (r *RecordingRenderer) RemoveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Removed
}

// RecordingPresenter records challenge presentations.
type RecordingPresenter struct {
	mu       sync.Mutex
	Requests []domain.ChallengeRequest
}

func (p *RecordingPresenter) Present(_ context.Context, req domain.ChallengeRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	return nil
}

// Count returns the number of presentations.
func (p *RecordingPresenter) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Last returns the latest presentation.
func (p *RecordingPresenter) Last() (domain.ChallengeRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return domain.ChallengeRequest{}, false
	}
	return p.Requests[len(p.Requests)-1], true
}

// RecordingNotifier records notification calls. Err makes every call fail.
type RecordingNotifier struct {
	mu       sync.Mutex
	Err      error
	Sessions []string
	Warnings []string
	Clears   int
}

func (n *RecordingNotifier) ShowSession(_ context.Context, name string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sessions = append(n.Sessions, name)
	return n.Err
}

func (n *RecordingNotifier) ShowWarning(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Warnings = append(n.Warnings, message)
	return n.Err
}

func (n *RecordingNotifier) Clear(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Clears++
	return n.Err
}

// WarningCount returns how many warnings were shown.
func (n *RecordingNotifier) WarningCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Warnings)
}

// StaticProbe is a PermissionProbe with fixed answers.
type StaticProbe struct {
	mu      sync.Mutex
	Overlay bool
	Sensing bool
}

// NewGrantedProbe has every permission granted.
func NewGrantedProbe() *StaticProbe { return &StaticProbe{Overlay: true, Sensing: true} }

func (p *StaticProbe) CanDrawOverlay(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Overlay
}

func (p *StaticProbe) SensingEnabled(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Sensing
}

// Set changes both answers.
func (p *StaticProbe) Set(overlay, sensing bool) {
	p.mu.Lock()
	p.Overlay, p.Sensing = overlay, sensing
	p.mu.Unlock()
}

// FakeUsage is a settable UsageSampler.
type FakeUsage struct {
	mu      sync.Mutex
	Samples []domain.UsageSample
	Err     error
}

func (u *FakeUsage) RecentForeground(_ context.Context, since time.Time) ([]domain.UsageSample, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, u.Err
	}
	var out []domain.UsageSample
	for _, s := range u.Samples {
		if !s.At.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Add appends a sample.
func (u *FakeUsage) Add(pkg string, at time.Time) {
	u.mu.Lock()
	u.Samples = append(u.Samples, domain.UsageSample{Package: pkg, At: at})
	u.mu.Unlock()
}

// FakeActiveWindow is a settable ActiveWindowProber.
type FakeActiveWindow struct {
	mu  sync.Mutex
	Pkg string
	Err error
}

func (w *FakeActiveWindow) ActiveWindow(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Pkg, w.Err
}

// Set changes the focused package.
func (w *FakeActiveWindow) Set(pkg string) {
	w.mu.Lock()
	w.Pkg = pkg
	w.mu.Unlock()
}

// FakeProcesses is a process table. It serves as a ProcessManager and
// lists every live process as a running app.
type FakeProcesses struct {
	mu     sync.Mutex
	names  map[int]string
	killed []int
}

// NewFakeProcesses creates an empty table.
func NewFakeProcesses() *FakeProcesses {
	return &FakeProcesses{names: make(map[int]string)}
}

// Spawn adds a live process.
func (p *FakeProcesses) Spawn(pid int, name string) {
	p.mu.Lock()
	p.names[pid] = strings.ToLower(name)
	p.mu.Unlock()
}

func (p *FakeProcesses) FindByName(pattern string) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pattern = strings.ToLower(pattern)
	var pids []int
	for pid, name := range p.names {
		if strings.Contains(name, pattern) {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

func (p *FakeProcesses) Kill(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.names, pid)
	p.killed = append(p.killed, pid)
	return nil
}

func (p *FakeProcesses) IsRunning(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.names[pid]
	return ok
}

// GetCurrentPID returns a pid no spawned process uses.
func (p *FakeProcesses) GetCurrentPID() int { return 1 }

func (p *FakeProcesses) RunningApps(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]bool, len(p.names))
	var out []string
	for _, name := range p.names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Killed returns killed pids in kill order.
func (p *FakeProcesses) Killed() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int{}, p.killed...)
}

var (
	_ domain.OverlayRenderer    = (*RecordingRenderer)(nil)
	_ domain.OverlayReasserter  = (*RecordingRenderer)(nil)
	_ domain.ChallengePresenter = (*RecordingPresenter)(nil)
	_ domain.NotificationSink   = (*RecordingNotifier)(nil)
	_ domain.PermissionProbe    = (*StaticProbe)(nil)
	_ domain.UsageSampler       = (*FakeUsage)(nil)
	_ domain.ActiveWindowProber = (*FakeActiveWindow)(nil)
	_ domain.ProcessManager     = (*FakeProcesses)(nil)
	_ domain.AppLister          = (*FakeProcesses)(nil)
)

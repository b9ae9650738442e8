package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// LogNotifier is the desktop NotificationSink: status lines go to the daemon log.
type LogNotifier struct {
	logger *zap.Logger

	mu      sync.Mutex
	session string
	warning string
}

// NewLogNotifier creates a notifier writing to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// ShowSession logs the session line when the session changes.
func (n *LogNotifier) ShowSession(_ context.Context, name string, remaining time.Duration) error {
	n.mu.Lock()
	changed := n.session != name
	n.session = name
	n.mu.Unlock()
	if changed {
		n.logger.Info("session notification", zap.String("session", name), zap.Duration("remaining", remaining))
	}
	return nil
}

// ShowWarning logs a standing warning once per distinct message.
func (n *LogNotifier) ShowWarning(_ context.Context, message string) error {
	n.mu.Lock()
	changed := n.warning != message
	n.warning = message
	n.mu.Unlock()
	if changed {
		n.logger.Warn("enforcement warning", zap.String("message", message))
	}
	return nil
}

// Clear drops the current session line and warning.
func (n *LogNotifier) Clear(_ context.Context) error {
	n.mu.Lock()
	n.session, n.warning = "", ""
	n.mu.Unlock()
	return nil
}

// ProcessPresenter is the desktop ChallengePresenter. It logs the challenge,
// which the user answers with `brickmon unlock`, and terminates a blocked app
// until the challenge is passed. Websites are only logged.
type ProcessPresenter struct {
	pm     domain.ProcessManager
	logger *zap.Logger
}

// NewProcessPresenter creates a presenter.
func NewProcessPresenter(pm domain.ProcessManager, logger *zap.Logger) *ProcessPresenter {
	return &ProcessPresenter{pm: pm, logger: logger}
}

// Present logs req and kills the blocked app's processes.
func (p *ProcessPresenter) Present(_ context.Context, req domain.ChallengeRequest) error {
	fields := []zap.Field{
		zap.String("identifier", req.Decision.Identifier),
		zap.String("source", string(req.Decision.Source)),
		zap.String("challenge", req.Decision.Challenge.String()),
	}
	if req.WaitStarted {
		fields = append(fields, zap.Duration("wait_remaining", req.WaitRemaining))
	}
	p.logger.Info("challenge required", fields...)

	if req.Decision.Kind != domain.KindApp || req.Observed == "" {
		return nil
	}
	pids, err := p.pm.FindByName(req.Observed)
	if err != nil {
		return err
	}
	own := p.pm.GetCurrentPID()
	for _, pid := range pids {
		if pid == own {
			continue
		}
		if err := p.pm.Kill(pid); err != nil {
			p.logger.Warn("failed to kill blocked app", zap.Int("pid", pid), zap.Error(err))
		}
	}
	return nil
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

var (
	_ domain.NotificationSink   = (*LogNotifier)(nil)
	_ domain.ChallengePresenter = (*ProcessPresenter)(nil)
	_ domain.Clock              = SystemClock{}
)

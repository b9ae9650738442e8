package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// ForegroundConfig holds foreground resolution configuration.
type ForegroundConfig struct {
	Freshness   time.Duration // usage samples older than this are ignored
	UsageWindow time.Duration // how far back usage stats are queried
}

// DefaultForegroundConfig returns default foreground configuration.
func DefaultForegroundConfig() ForegroundConfig {
	return ForegroundConfig{Freshness: 5 * time.Second, UsageWindow: 10 * time.Second}
}

// ForegroundResolver answers "what is in front right now".
// The pushed event stream is authoritative; the active window prober and the
// usage sampler are fallbacks in that order. A stale answer is no answer.
type ForegroundResolver struct {
	config ForegroundConfig
	prober domain.ActiveWindowProber // optional
	usage  domain.UsageSampler       // optional
	clock  domain.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	last    domain.ForegroundEvent
	hasLast bool
}

// NewForegroundResolver creates a resolver. prober and usage may be nil.
func NewForegroundResolver(config ForegroundConfig, prober domain.ActiveWindowProber, usage domain.UsageSampler, clock domain.Clock, logger *zap.Logger) *ForegroundResolver {
	return &ForegroundResolver{
		config: config,
		prober: prober,
		usage:  usage,
		clock:  clock,
		logger: logger,
	}
}

// Push records a foreground event from the sensing stream.
func (r *ForegroundResolver) Push(ev domain.ForegroundEvent) {
	if ev.Package == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = r.clock.Now()
	}
	r.mu.Lock()
	r.last, r.hasLast = ev, true
	r.mu.Unlock()
}

// Last returns the latest pushed event.
func (r *ForegroundResolver) Last() (domain.ForegroundEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasLast
}

// Current returns the foreground package, or false when it cannot be
// determined with confidence.
func (r *ForegroundResolver) Current(ctx context.Context) (string, bool) {
	if ev, ok := r.Last(); ok {
		return ev.Package, true
	}

	if r.prober != nil {
		pkg, err := r.prober.ActiveWindow(ctx)
		if err != nil {
			r.logger.Debug("active window probe failed", zap.Error(err))
		} else if pkg != "" {
			return pkg, true
		}
	}

	if r.usage == nil {
		return "", false
	}
	now := r.clock.Now()
	samples, err := r.usage.RecentForeground(ctx, now.Add(-r.config.UsageWindow))
	if err != nil {
		r.logger.Debug("usage sampling failed", zap.Error(err))
		return "", false
	}
	var newest *domain.UsageSample
	for i := range samples {
		if newest == nil || samples[i].At.After(newest.At) {
			newest = &samples[i]
		}
	}
	if newest == nil || now.Sub(newest.At) > r.config.Freshness {
		return "", false
	}
	return newest.Package, true
}

package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const refreshKey = "essentials"

// EssentialAppCache answers "is this package essential for this session
// type" from an in-memory snapshot. A stale snapshot is served while a
// refresh runs in the background. A cold lookup waits at most the lookup
// timeout and then fails closed.
type EssentialAppCache struct {
	store   domain.EssentialAppStore
	clock   domain.Clock
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	apps     map[string]domain.EssentialApp
	loadedAt time.Time
	loaded   bool
}

// NewEssentialAppCache creates a cache with the given TTL and cold lookup timeout.
func NewEssentialAppCache(store domain.EssentialAppStore, clock domain.Clock, ttl, timeout time.Duration, logger *zap.Logger) *EssentialAppCache {
	return &EssentialAppCache{
		store:   store,
		clock:   clock,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

// Warm loads the snapshot synchronously.
func (c *EssentialAppCache) Warm(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

// IsEssential reports whether pkg is essential during a sessionType session.
func (c *EssentialAppCache) IsEssential(ctx context.Context, pkg string, sessionType domain.SessionType) bool {
	apps, err := c.current(ctx)
	if err != nil {
		c.logger.Warn("essential apps lookup failed, treating as not essential",
			zap.String("package", pkg), zap.Error(err))
		return false
	}
	app, ok := apps[strings.ToLower(pkg)]
	return ok && app.AllowedIn(sessionType)
}

// Snapshot returns the apps allowed in sessionType, sorted by package. A cold
// cache is loaded with the lookup timeout; on failure the list is empty.
func (c *EssentialAppCache) Snapshot(ctx context.Context, sessionType domain.SessionType) []domain.EssentialApp {
	apps, err := c.current(ctx)
	if err != nil {
		c.logger.Warn("essential apps snapshot unavailable", zap.Error(err))
		return nil
	}
	out := make([]domain.EssentialApp, 0, len(apps))
	for _, app := range apps {
		if app.AllowedIn(sessionType) {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out
}

// current serves the loaded snapshot, refreshing it in the background once
// stale. A cold cache waits for the load at most the lookup timeout.
func (c *EssentialAppCache) current(ctx context.Context) (map[string]domain.EssentialApp, error) {
	c.mu.RLock()
	apps, loaded := c.apps, c.loaded
	fresh := loaded && c.clock.Now().Sub(c.loadedAt) < c.ttl
	c.mu.RUnlock()

	if loaded {
		if !fresh {
			c.refreshAsync()
		}
		return apps, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.load(context.Background())
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]domain.EssentialApp), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("essential apps lookup timed out after %s: %w", c.timeout, ctx.Err())
	}
}

// Invalidate marks the snapshot stale and refreshes it in the background.
func (c *EssentialAppCache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
	c.refreshAsync()
}

func (c *EssentialAppCache) refreshAsync() {
	c.group.DoChan(refreshKey, func() (interface{}, error) {
		apps, err := c.load(context.Background())
		if err != nil {
			c.logger.Warn("essential apps refresh failed, keeping stale snapshot", zap.Error(err))
		}
		return apps, err
	})
}

func (c *EssentialAppCache) load(ctx context.Context) (map[string]domain.EssentialApp, error) {
	list, err := c.store.ListEssentialApps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list essential apps: %w", err)
	}
	apps := make(map[string]domain.EssentialApp, len(list))
	for _, app := range list {
		apps[strings.ToLower(app.Package)] = app
	}

	c.mu.Lock()
	c.apps = apps
	c.loadedAt = c.clock.Now()
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("essential apps loaded", zap.Int("count", len(apps)))
	return apps, nil
}

// EssentialAppService edits the essential app list and keeps the cache in step.
type EssentialAppService struct {
	store  domain.EssentialAppStore
	cache  *EssentialAppCache
	logger *zap.Logger
}

// NewEssentialAppService creates the service. cache may be nil.
func NewEssentialAppService(store domain.EssentialAppStore, cache *EssentialAppCache, logger *zap.Logger) *EssentialAppService {
	return &EssentialAppService{store: store, cache: cache, logger: logger}
}

// Add stores a user-added essential app.
func (s *EssentialAppService) Add(ctx context.Context, pkg, name string, types ...domain.SessionType) error {
	pkg = strings.ToLower(strings.TrimSpace(pkg))
	if pkg == "" {
		return fmt.Errorf("%w: empty package", domain.ErrInvalidDefinition)
	}
	for _, t := range types {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown session type %q", domain.ErrInvalidDefinition, t)
		}
	}
	if name == "" {
		name = pkg
	}
	app := domain.EssentialApp{Package: pkg, Name: name, IsUserAdded: true, AllowedSessionTypes: types}
	if err := s.store.AddEssentialApp(ctx, app); err != nil {
		return fmt.Errorf("add essential app: %w", err)
	}
	s.invalidate()
	s.logger.Info("essential app added", zap.String("package", pkg))
	return nil
}

// Remove deletes a user-added essential app. System entries are refused.
func (s *EssentialAppService) Remove(ctx context.Context, pkg string) error {
	if err := s.store.RemoveEssentialApp(ctx, strings.ToLower(strings.TrimSpace(pkg))); err != nil {
		return err
	}
	s.invalidate()
	s.logger.Info("essential app removed", zap.String("package", pkg))
	return nil
}

// List returns every essential app.
func (s *EssentialAppService) List(ctx context.Context) ([]domain.EssentialApp, error) {
	return s.store.ListEssentialApps(ctx)
}

func (s *EssentialAppService) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

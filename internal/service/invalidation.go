package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codebyem/IndiaLimaYankee/internal/config"
	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/metrics"
	"github.com/codebyem/IndiaLimaYankee/internal/repository"
)

// Broadcaster delivers invalidation events to connected clients.
type Broadcaster interface {
	Broadcast(event models.InvalidationEvent)
}

// Invalidation triggers, used as metric labels.
const (
	TriggerSettings = "settings"
	TriggerReload   = "reload"
	TriggerManual   = "manual"
)

// ErrPersist wraps failures to store settings.
var ErrPersist = errors.New("failed to persist settings")

// InvalidationController publishes new settings snapshots and evicts the
// cache entries that depended on what changed.
type InvalidationController struct {
	state     *ConfigState
	cache     fetcher.Cache
	fetchers  *fetcher.Set
	repo      repository.SettingsRepository
	log       *zap.Logger
	fullClear bool
	now       func() time.Time

	// mu serializes writers. Readers never take it.
	mu          sync.Mutex
	broadcaster Broadcaster
}

// NewInvalidationController wires the controller. repo may be nil, in which
// case settings changes only live in memory.
func NewInvalidationController(state *ConfigState, cache fetcher.Cache, fetchers *fetcher.Set, repo repository.SettingsRepository, log *zap.Logger) *InvalidationController {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvalidationController{
		state:    state,
		cache:    cache,
		fetchers: fetchers,
		repo:     repo,
		log:      log,
		now:      time.Now,
	}
}

// SetFullClear makes every settings change clear the whole cache instead of
// only the affected domains.
func (c *InvalidationController) SetFullClear(on bool) {
	c.mu.Lock()
	c.fullClear = on
	c.mu.Unlock()
}

// SetBroadcaster attaches the event sink.
func (c *InvalidationController) SetBroadcaster(b Broadcaster) {
	c.mu.Lock()
	c.broadcaster = b
	c.mu.Unlock()
}

// OnConfigChange validates, persists and publishes the update. An update that
// changes nothing keeps the current version and evicts nothing.
func (c *InvalidationController) OnConfigChange(ctx context.Context, u models.SettingsUpdate) (models.InvalidationEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state.Current()
	next := ApplyUpdate(prev, u)
	if errs := config.ValidateSettings(next); len(errs) > 0 {
		return models.InvalidationEvent{}, errors.Join(errs...)
	}
	if next.Equal(prev) {
		return c.noop(prev), nil
	}

	if c.repo != nil {
		if err := c.repo.SaveSettings(ctx, SettingsValues(next)); err != nil {
			return models.InvalidationEvent{}, fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	return c.publish(prev, next, TriggerSettings), nil
}

// Reload publishes a snapshot rebuilt from the configuration file. Persisted
// settings still win over the file for the fields they cover.
func (c *InvalidationController) Reload(ctx context.Context, base *models.DashboardConfig) (models.InvalidationEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := base
	if c.repo != nil {
		rows, err := c.repo.ListSettings(ctx)
		if err != nil {
			return models.InvalidationEvent{}, fmt.Errorf("load settings: %w", err)
		}
		if next, err = ApplySettings(base, rows); err != nil {
			return models.InvalidationEvent{}, err
		}
	}
	if errs := config.ValidateSettings(next); len(errs) > 0 {
		return models.InvalidationEvent{}, errors.Join(errs...)
	}

	prev := c.state.Current()
	if next.Equal(prev) {
		return c.noop(prev), nil
	}
	cp := *next
	return c.publish(prev, &cp, TriggerReload), nil
}

// OnManualRefresh evicts every entry so the next read of each domain recomputes.
func (c *InvalidationController) OnManualRefresh(ctx context.Context) models.InvalidationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.cache.EvictAll()
	metrics.InvalidationsTotal.WithLabelValues(TriggerManual).Inc()
	event := models.InvalidationEvent{
		Type:      models.EventManualRefresh,
		Version:   c.state.Current().Version,
		Domains:   c.fetchers.Names(),
		Evicted:   n,
		Timestamp: c.now(),
	}
	c.log.Info("cache cleared", zap.Int("evicted", n))
	c.emit(event)
	return event
}

func (c *InvalidationController) noop(cur *models.DashboardConfig) models.InvalidationEvent {
	return models.InvalidationEvent{
		Type:      models.EventConfigChanged,
		Version:   cur.Version,
		Timestamp: c.now(),
	}
}

// publish must be called with mu held.
func (c *InvalidationController) publish(prev, next *models.DashboardConfig, trigger string) models.InvalidationEvent {
	next.Version = prev.Version + 1
	c.state.publish(next)

	fields := next.ChangedFields(prev)
	domains := union(c.fetchers.Affected(fields), next.ChangedTTLs(prev))

	var n int
	if c.fullClear && len(domains) > 0 {
		n = c.cache.EvictAll()
		domains = c.fetchers.Names()
	} else {
		for _, d := range domains {
			n += c.cache.EvictPrefix(fetcher.Prefix(d))
		}
	}

	changed := make([]string, 0, len(fields))
	for _, f := range fields {
		changed = append(changed, string(f))
	}

	metrics.InvalidationsTotal.WithLabelValues(trigger).Inc()
	metrics.ConfigVersion.Set(float64(next.Version))

	event := models.InvalidationEvent{
		Type:      models.EventConfigChanged,
		Version:   next.Version,
		Changed:   changed,
		Domains:   domains,
		Evicted:   n,
		Timestamp: c.now(),
	}
	c.log.Info("settings changed",
		zap.String("trigger", trigger),
		zap.Uint64("version", next.Version),
		zap.Strings("changed", changed),
		zap.Strings("domains", domains),
		zap.Int("evicted", n),
	)
	c.emit(event)
	return event
}

func (c *InvalidationController) emit(event models.InvalidationEvent) {
	if c.broadcaster != nil {
		c.broadcaster.Broadcast(event)
	}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

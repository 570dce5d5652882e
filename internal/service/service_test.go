package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
)

func testConfig() *models.DashboardConfig {
	return &models.DashboardConfig{
		AirportICAO: "EDLP",
		Home:        models.Coordinates{Lat: 51.963, Lon: 8.534},
		Timezone:    "Europe/Berlin",
		RefreshIntervals: models.RefreshIntervals{
			METAR: 300000, Flights: 30000, Weather: 300000, APOD: 3600000, Strava: 1800000,
		},
		TTLs: models.TTLs{
			METAR:  5 * time.Minute,
			TAF:    10 * time.Minute,
			APOD:   time.Hour,
			EPIC:   time.Hour,
			Sun:    time.Hour,
			Strava: 30 * time.Minute,
		},
	}
}

// fakeFetcher computes through the shared cache like the real adapters do.
type fakeFetcher struct {
	name         string
	deps         []models.ConfigField
	unconfigured bool
	cache        fetcher.Cache
	compute      func(ctx context.Context) (interface{}, error)
	probe        func(ctx context.Context) models.ServiceHealth
	calls        atomic.Int32
}

func (f *fakeFetcher) Name() string                     { return f.name }
func (f *fakeFetcher) DependsOn() []models.ConfigField { return f.deps }
func (f *fakeFetcher) Configured() bool                 { return !f.unconfigured }

func (f *fakeFetcher) Key(cfg *models.DashboardConfig) string {
	for _, d := range f.deps {
		if d == models.FieldAirport {
			return fetcher.Key(f.name, cfg.AirportICAO)
		}
		if d == models.FieldCoordinates {
			return fetcher.Key(f.name, cfg.Home.Key())
		}
	}
	return fetcher.Key(f.name, "static")
}

func (f *fakeFetcher) Fetch(ctx context.Context, cfg *models.DashboardConfig) (fetcher.Result, error) {
	return f.cache.GetOrCompute(ctx, f.Key(cfg), cfg.TTLs.For(f.name), func(ctx context.Context) (interface{}, error) {
		f.calls.Add(1)
		if f.compute == nil {
			return f.name + " payload", nil
		}
		return f.compute(ctx)
	})
}

func (f *fakeFetcher) Probe(ctx context.Context, _ *models.DashboardConfig) models.ServiceHealth {
	if f.probe == nil {
		return models.ServiceHealth{Name: f.name, Status: models.StatusOK}
	}
	return f.probe(ctx)
}

type fallbackFetcher struct {
	*fakeFetcher
	payload interface{}
}

func (f fallbackFetcher) Fallback() interface{} { return f.payload }

func newCache() *ttlcache.Store[interface{}] {
	return ttlcache.New[interface{}]()
}

type memoryRepo struct {
	mu      sync.Mutex
	values  map[string]string
	saveErr error
	saves   int
}

func (r *memoryRepo) ListSettings(context.Context) ([]models.Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Setting
	for k, v := range r.values {
		out = append(out, models.Setting{Key: k, Value: v})
	}
	return out, nil
}

func (r *memoryRepo) SaveSettings(_ context.Context, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.values == nil {
		r.values = make(map[string]string)
	}
	for k, v := range values {
		r.values[k] = v
	}
	r.saves++
	return nil
}

func (r *memoryRepo) Close() error { return nil }

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.InvalidationEvent
}

func (b *recordingBroadcaster) Broadcast(e models.InvalidationEvent) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) all() []models.InvalidationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.InvalidationEvent(nil), b.events...)
}

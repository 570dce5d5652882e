// Package fetcher holds one adapter per upstream data domain. Every adapter
// derives a cache key from its parameters, computes through the shared TTL
// cache and converts upstream problems into upstream.FetchError values.
package fetcher

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

// ErrNotConfigured is returned by adapters whose credentials are missing.
var ErrNotConfigured = errors.New("fetcher: not configured")

// Cache is the cache every adapter shares. Values are the payload types of package models.
type Cache = ttlcache.Cache[interface{}]

// Result is a payload plus its cache metadata.
type Result = ttlcache.Result[interface{}]

// Fetcher is one upstream domain.
type Fetcher interface {
	// Name is the data domain; every cache key of the adapter starts with Name()+"|".
	Name() string
	// DependsOn lists the settings the adapter's keys or payloads are derived from.
	DependsOn() []models.ConfigField
	// Configured is false when the adapter cannot run, e.g. missing credentials.
	Configured() bool
	// Key is the cache key for the given settings snapshot.
	Key(cfg *models.DashboardConfig) string
	// Fetch returns the cached payload or computes it.
	Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error)
	// Probe issues a lightweight direct request, bypassing the cache.
	Probe(ctx context.Context, cfg *models.DashboardConfig) models.ServiceHealth
}

// Fallbacker is implemented by adapters that have a static payload to show
// when fetching fails. Fallback payloads are never cached.
type Fallbacker interface {
	Fallback() interface{}
}

// Key joins the domain and its parameters into a cache key.
func Key(domain string, parts ...string) string {
	return strings.Join(append([]string{domain}, parts...), "|")
}

// Prefix is the key prefix owning every entry of domain.
func Prefix(domain string) string {
	return domain + "|"
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Cache        Cache
	Client       *upstream.Client
	ProbeTimeout time.Duration
	Logger       *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func (d Deps) probeTimeout() time.Duration {
	if d.ProbeTimeout > 0 {
		return d.ProbeTimeout
	}
	return 5 * time.Second
}

// Set is the ordered collection of registered adapters.
type Set struct {
	list   []Fetcher
	byName map[string]Fetcher
}

// NewSet registers fs in order. Later adapters with a duplicate name replace earlier ones.
func NewSet(fs ...Fetcher) *Set {
	s := &Set{byName: make(map[string]Fetcher, len(fs))}
	for _, f := range fs {
		if _, dup := s.byName[f.Name()]; !dup {
			s.list = append(s.list, f)
		} else {
			for i, old := range s.list {
				if old.Name() == f.Name() {
					s.list[i] = f
				}
			}
		}
		s.byName[f.Name()] = f
	}
	return s
}

// Get returns the adapter for domain.
func (s *Set) Get(domain string) (Fetcher, bool) {
	f, ok := s.byName[domain]
	return f, ok
}

// All returns every adapter in registration order.
func (s *Set) All() []Fetcher {
	out := make([]Fetcher, len(s.list))
	copy(out, s.list)
	return out
}

// Names returns the registered domains in registration order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.list))
	for _, f := range s.list {
		out = append(out, f.Name())
	}
	return out
}

// Affected returns the sorted domains whose adapters depend on any of changed.
func (s *Set) Affected(changed []models.ConfigField) []string {
	if len(changed) == 0 {
		return nil
	}
	want := make(map[models.ConfigField]bool, len(changed))
	for _, c := range changed {
		want[c] = true
	}
	var out []string
	for _, f := range s.list {
		for _, dep := range f.DependsOn() {
			if want[dep] {
				out = append(out, f.Name())
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// FallbackFor returns the static fallback payload of f, if it has one.
func FallbackFor(f Fetcher) (interface{}, bool) {
	fb, ok := f.(Fallbacker)
	if !ok {
		return nil, false
	}
	return fb.Fallback(), true
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

// HealthListener receives every completed report.
type HealthListener func(models.HealthReport)

// HealthMonitor probes every configured adapter and aggregates the results.
type HealthMonitor struct {
	fetchers *fetcher.Set
	state    *ConfigState
	log      *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	listeners []HealthListener
	last      *models.HealthReport
}

func NewHealthMonitor(fetchers *fetcher.Set, state *ConfigState, log *zap.Logger) *HealthMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthMonitor{fetchers: fetchers, state: state, log: log, now: time.Now}
}

// AddListener registers l for every future report.
func (h *HealthMonitor) AddListener(l HealthListener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()
}

// CheckAll probes all configured adapters concurrently. It never fails: a
// probe that panics is reported down.
func (h *HealthMonitor) CheckAll(ctx context.Context) models.HealthReport {
	cfg := h.state.Current()

	var (
		probed  []fetcher.Fetcher
		skipped []string
	)
	for _, f := range h.fetchers.All() {
		if f.Configured() {
			probed = append(probed, f)
		} else {
			skipped = append(skipped, f.Name())
		}
	}

	results := make([]models.ServiceHealth, len(probed))
	var g errgroup.Group
	for i, f := range probed {
		i, f := i, f
		g.Go(func() error {
			results[i] = h.probe(ctx, f, cfg)
			return nil
		})
	}
	_ = g.Wait()

	report := models.HealthReport{
		Timestamp:     h.now(),
		Services:      make(map[string]models.ServiceHealth, len(results)),
		NotConfigured: skipped,
	}
	for _, r := range results {
		report.Services[r.Name] = r
	}
	report.Status = Aggregate(report.Services)

	h.mu.Lock()
	h.last = &report
	listeners := append([]HealthListener(nil), h.listeners...)
	h.mu.Unlock()

	for _, l := range listeners {
		l(report)
	}
	if report.Status != models.StatusOK {
		h.log.Warn("upstream health degraded", zap.String("status", string(report.Status)), zap.Strings("down", down(report)))
	}
	return report
}

func (h *HealthMonitor) probe(ctx context.Context, f fetcher.Fetcher, cfg *models.DashboardConfig) (sh models.ServiceHealth) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("probe panicked", zap.String("service", f.Name()), zap.Any("panic", r))
			sh = models.ServiceHealth{
				Name:        f.Name(),
				Status:      models.StatusDown,
				LastChecked: h.now(),
				Detail:      fmt.Sprintf("probe panicked: %v", r),
			}
		}
	}()
	sh = f.Probe(ctx, cfg)
	sh.Name = f.Name()
	return sh
}

// Last returns the most recent report, if any.
func (h *HealthMonitor) Last() (models.HealthReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return models.HealthReport{}, false
	}
	return *h.last, true
}

// Run probes every interval until ctx is done.
func (h *HealthMonitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// Aggregate is ok when every service is ok, down when every service is down
// and degraded otherwise. No services at all counts as ok.
func Aggregate(services map[string]models.ServiceHealth) models.HealthStatus {
	if len(services) == 0 {
		return models.StatusOK
	}
	var ok, downCount int
	for _, s := range services {
		switch s.Status {
		case models.StatusOK:
			ok++
		case models.StatusDown:
			downCount++
		}
	}
	switch {
	case ok == len(services):
		return models.StatusOK
	case downCount == len(services):
		return models.StatusDown
	}
	return models.StatusDegraded
}

func down(r models.HealthReport) []string {
	var out []string
	for name, s := range r.Services {
		if s.Status != models.StatusOK {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

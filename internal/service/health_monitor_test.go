package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

func status(name string, s models.HealthStatus) *fakeFetcher {
	return &fakeFetcher{name: name, probe: func(context.Context) models.ServiceHealth {
		return models.ServiceHealth{Name: name, Status: s, LastChecked: time.Now()}
	}}
}

func TestAggregate(t *testing.T) {
	svc := func(statuses ...models.HealthStatus) map[string]models.ServiceHealth {
		out := make(map[string]models.ServiceHealth)
		for i, s := range statuses {
			out[string(rune('a'+i))] = models.ServiceHealth{Status: s}
		}
		return out
	}
	tests := []struct {
		name     string
		services map[string]models.ServiceHealth
		want     models.HealthStatus
	}{
		{"empty", svc(), models.StatusOK},
		{"all ok", svc(models.StatusOK, models.StatusOK), models.StatusOK},
		{"one down", svc(models.StatusOK, models.StatusDown), models.StatusDegraded},
		{"one degraded", svc(models.StatusOK, models.StatusDegraded), models.StatusDegraded},
		{"all down", svc(models.StatusDown, models.StatusDown), models.StatusDown},
		{"degraded and down", svc(models.StatusDegraded, models.StatusDown), models.StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.services))
		})
	}
}

func TestCheckAll_OKAndDown(t *testing.T) {
	h := NewHealthMonitor(fetcher.NewSet(
		status("metar", models.StatusOK),
		status("taf", models.StatusDown),
	), NewConfigState(testConfig()), nil)

	r := h.CheckAll(context.Background())
	assert.Equal(t, models.StatusDegraded, r.Status)
	assert.Equal(t, models.StatusOK, r.Services["metar"].Status)
	assert.Equal(t, models.StatusDown, r.Services["taf"].Status)
}

func TestCheckAll_AllDown(t *testing.T) {
	h := NewHealthMonitor(fetcher.NewSet(
		status("metar", models.StatusDown),
		status("taf", models.StatusDown),
	), NewConfigState(testConfig()), nil)

	assert.Equal(t, models.StatusDown, h.CheckAll(context.Background()).Status)
}

func TestCheckAll_PanickingProbeIsDown(t *testing.T) {
	boom := &fakeFetcher{name: "epic", probe: func(context.Context) models.ServiceHealth {
		panic("nil map")
	}}
	h := NewHealthMonitor(fetcher.NewSet(status("apod", models.StatusOK), boom), NewConfigState(testConfig()), nil)

	r := h.CheckAll(context.Background())
	require.Contains(t, r.Services, "epic")
	assert.Equal(t, models.StatusDown, r.Services["epic"].Status)
	assert.Contains(t, r.Services["epic"].Detail, "nil map")
	assert.Equal(t, models.StatusDegraded, r.Status)
}

func TestCheckAll_SkipsUnconfigured(t *testing.T) {
	var probed atomic.Bool
	strava := &fakeFetcher{name: "strava", unconfigured: true, probe: func(context.Context) models.ServiceHealth {
		probed.Store(true)
		return models.ServiceHealth{Status: models.StatusDown}
	}}
	h := NewHealthMonitor(fetcher.NewSet(status("sun", models.StatusOK), strava), NewConfigState(testConfig()), nil)

	r := h.CheckAll(context.Background())
	assert.False(t, probed.Load())
	assert.NotContains(t, r.Services, "strava")
	assert.Equal(t, []string{"strava"}, r.NotConfigured)
	assert.Equal(t, models.StatusOK, r.Status)
}

func TestCheckAll_NotifiesListenersAndKeepsLast(t *testing.T) {
	h := NewHealthMonitor(fetcher.NewSet(status("sun", models.StatusOK)), NewConfigState(testConfig()), nil)

	_, ok := h.Last()
	assert.False(t, ok)

	var got models.HealthReport
	h.AddListener(func(r models.HealthReport) { got = r })
	r := h.CheckAll(context.Background())

	assert.Equal(t, r.Status, got.Status)
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, r.Timestamp, last.Timestamp)
}

func TestCheckAll_ProbesRunConcurrently(t *testing.T) {
	slow := func(name string) *fakeFetcher {
		return &fakeFetcher{name: name, probe: func(context.Context) models.ServiceHealth {
			time.Sleep(100 * time.Millisecond)
			return models.ServiceHealth{Status: models.StatusOK}
		}}
	}
	h := NewHealthMonitor(fetcher.NewSet(slow("a"), slow("b"), slow("c"), slow("d")), NewConfigState(testConfig()), nil)

	start := time.Now()
	r := h.CheckAll(context.Background())
	assert.Less(t, time.Since(start), 350*time.Millisecond)
	assert.Len(t, r.Services, 4)
	assert.Equal(t, "a", r.Services["a"].Name)
}

func TestRun_StopsWithContext(t *testing.T) {
	var n atomic.Int32
	h := NewHealthMonitor(fetcher.NewSet(status("sun", models.StatusOK)), NewConfigState(testConfig()), nil)
	h.AddListener(func(models.HealthReport) { n.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

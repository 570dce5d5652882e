package metrics

import (
	"strings"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
)

// CacheObserver records cache events. Keys are labelled by their domain
// prefix so label cardinality stays bounded.
type CacheObserver struct{}

var _ ttlcache.Observer = CacheObserver{}

// Domain returns the part of key before the first "|".
func Domain(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}

func (CacheObserver) CacheHit(key string) {
	CacheHitsTotal.WithLabelValues(Domain(key)).Inc()
}

func (CacheObserver) CacheMiss(key string) {
	CacheMissesTotal.WithLabelValues(Domain(key)).Inc()
}

func (CacheObserver) CacheEvicted(reason string, n int) {
	CacheEvictionsTotal.WithLabelValues(reason).Add(float64(n))
}

func (CacheObserver) Computed(key string, took time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	UpstreamDurationSeconds.WithLabelValues(Domain(key), outcome).Observe(took.Seconds())
}

// HealthValue maps a status onto the gauge scale.
func HealthValue(s models.HealthStatus) float64 {
	switch s {
	case models.StatusOK:
		return 1
	case models.StatusDegraded:
		return 0.5
	}
	return 0
}

// RecordHealth publishes a report on the service health gauge.
func RecordHealth(r models.HealthReport) {
	for name, h := range r.Services {
		ServiceHealthStatus.WithLabelValues(name).Set(HealthValue(h.Status))
	}
	ServiceHealthStatus.WithLabelValues("overall").Set(HealthValue(r.Status))
}

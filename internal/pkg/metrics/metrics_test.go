package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
)

func TestDomain(t *testing.T) {
	assert.Equal(t, "metar", Domain("metar|EDDF"))
	assert.Equal(t, "sun", Domain("sun|51.9630,8.5340|2024-06-21"))
	assert.Equal(t, "plain", Domain("plain"))
}

func TestCacheObserverCountsByDomain(t *testing.T) {
	o := CacheObserver{}
	hits := testutil.ToFloat64(CacheHitsTotal.WithLabelValues("taf"))
	misses := testutil.ToFloat64(CacheMissesTotal.WithLabelValues("taf"))
	evicted := testutil.ToFloat64(CacheEvictionsTotal.WithLabelValues(ttlcache.EvictReasonPrefix))

	o.CacheHit("taf|EDDF")
	o.CacheHit("taf|EDLP")
	o.CacheMiss("taf|EDDF")
	o.CacheEvicted(ttlcache.EvictReasonPrefix, 3)
	o.Computed("taf|EDDF", 20*time.Millisecond, nil)
	o.Computed("taf|EDDF", time.Second, errors.New("boom"))

	assert.Equal(t, hits+2, testutil.ToFloat64(CacheHitsTotal.WithLabelValues("taf")))
	assert.Equal(t, misses+1, testutil.ToFloat64(CacheMissesTotal.WithLabelValues("taf")))
	assert.Equal(t, evicted+3, testutil.ToFloat64(CacheEvictionsTotal.WithLabelValues(ttlcache.EvictReasonPrefix)))
}

func TestRecordHealth(t *testing.T) {
	RecordHealth(models.HealthReport{
		Status: models.StatusDegraded,
		Services: map[string]models.ServiceHealth{
			"metar": {Status: models.StatusOK},
			"apod":  {Status: models.StatusDown},
		},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(ServiceHealthStatus.WithLabelValues("metar")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ServiceHealthStatus.WithLabelValues("apod")))
	assert.Equal(t, 0.5, testutil.ToFloat64(ServiceHealthStatus.WithLabelValues("overall")))
}

package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
)

// CacheObserver logs cache events at debug level and failed computations at warn.
type CacheObserver struct {
	log *zap.Logger
}

var _ ttlcache.Observer = CacheObserver{}

func NewCacheObserver(log *zap.Logger) CacheObserver {
	return CacheObserver{log: log.Named("cache")}
}

func (o CacheObserver) CacheHit(key string) {
	o.log.Debug("cache hit", zap.String("key", key))
}

func (o CacheObserver) CacheMiss(key string) {
	o.log.Debug("cache miss", zap.String("key", key))
}

func (o CacheObserver) CacheEvicted(reason string, n int) {
	o.log.Debug("cache evicted", zap.String("reason", reason), zap.Int("count", n))
}

func (o CacheObserver) Computed(key string, took time.Duration, err error) {
	if err != nil {
		o.log.Warn("upstream fetch failed", zap.String("key", key), zap.Duration("took", took), zap.Error(err))
		return
	}
	o.log.Debug("upstream fetch", zap.String("key", key), zap.Duration("took", took))
}

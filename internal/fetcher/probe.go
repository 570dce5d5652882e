package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

// probe runs check under the probe timeout and classifies the outcome:
// 2xx ok (degraded when slower than half the timeout), 429, 5xx and malformed
// payloads degraded, everything else down.
func probe(ctx context.Context, d Deps, name string, check func(ctx context.Context) error) models.ServiceHealth {
	timeout := d.probeTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := d.now()
	err := check(ctx)
	took := d.now().Sub(start)

	h := models.ServiceHealth{
		Name:        name,
		LastChecked: d.now(),
		LatencyMs:   took.Milliseconds(),
	}
	h.Status, h.Detail = classify(err, took, timeout)
	return h
}

func classify(err error, took, timeout time.Duration) (models.HealthStatus, string) {
	if err == nil {
		if took > timeout/2 {
			return models.StatusDegraded, fmt.Sprintf("slow response: %s", took.Round(time.Millisecond))
		}
		return models.StatusOK, ""
	}
	if errors.Is(err, ErrNotConfigured) {
		return models.StatusDown, "not configured"
	}

	var fe *upstream.FetchError
	if !errors.As(err, &fe) {
		return models.StatusDown, err.Error()
	}
	switch fe.Kind {
	case upstream.KindMalformed:
		return models.StatusDegraded, fe.Error()
	case upstream.KindRejected:
		if fe.Status == http.StatusTooManyRequests || fe.Status >= 500 {
			return models.StatusDegraded, fe.Error()
		}
		return models.StatusDown, fe.Error()
	default:
		if fe.Timeout() {
			return models.StatusDown, "timeout: " + fe.Error()
		}
		return models.StatusDown, fe.Error()
	}
}

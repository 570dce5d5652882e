package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/metrics"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/tracing"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

// KindNotConfigured marks fields whose adapter is missing credentials.
const KindNotConfigured = "NotConfigured"

// Composite views.
const (
	ViewHome     = "home"
	ViewAviation = "aviation"
	ViewSpace    = "space"
)

// ErrUnknownView is returned for a view name that is not registered.
var ErrUnknownView = errors.New("unknown view")

// Orchestrator answers dashboard views by fanning out to the adapters a view
// needs. One failed field never fails the view.
type Orchestrator struct {
	fetchers *fetcher.Set
	state    *ConfigState
	views    map[string][]string
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewOrchestrator registers the composite views plus one single-field view
// per adapter. Composite views only list adapters that are registered.
func NewOrchestrator(fetchers *fetcher.Set, state *ConfigState, timeout time.Duration, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		fetchers: fetchers,
		state:    state,
		views:    make(map[string][]string),
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
	composite := map[string][]string{
		ViewHome:     models.AllDomains(),
		ViewAviation: {models.DomainMETAR, models.DomainTAF},
		ViewSpace:    {models.DomainAPOD, models.DomainEPIC, models.DomainSun},
	}
	for name, domains := range composite {
		for _, d := range domains {
			if _, ok := fetchers.Get(d); ok {
				o.views[name] = append(o.views[name], d)
			}
		}
	}
	for _, d := range fetchers.Names() {
		o.views[d] = []string{d}
	}
	return o
}

// Views returns the registered view names, sorted.
func (o *Orchestrator) Views() []string {
	out := make([]string, 0, len(o.views))
	for name := range o.views {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BuildView fetches every field of the view concurrently under the view
// deadline. Fields still running at the deadline get a timeout marker; their
// computations keep running and fill the cache for the next request.
func (o *Orchestrator) BuildView(ctx context.Context, name string) (*models.ViewResult, error) {
	domains, ok := o.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	cfg := o.state.Current()

	ctx, span := tracing.StartSpan(ctx, "orchestrator.build_view",
		attribute.String("view", name),
		attribute.Int64("config.version", int64(cfg.Version)),
	)
	defer span.End()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	results := make([]models.FieldResult, len(domains))
	var g errgroup.Group
	for i, d := range domains {
		i, d := i, d
		g.Go(func() error {
			f, _ := o.fetchers.Get(d)
			results[i] = o.field(ctx, f, cfg)
			return nil
		})
	}
	_ = g.Wait()

	view := &models.ViewResult{
		View:          name,
		ConfigVersion: cfg.Version,
		GeneratedAt:   o.now(),
		Fields:        make(map[string]models.FieldResult, len(domains)),
	}
	for i, d := range domains {
		view.Fields[d] = results[i]
		if !results[i].OK {
			metrics.ViewFieldFailuresTotal.WithLabelValues(name, d, results[i].Error.Kind).Inc()
		}
	}
	if failed := view.Failed(); len(failed) > 0 {
		sort.Strings(failed)
		span.SetAttributes(attribute.StringSlice("fields.failed", failed))
		o.log.Warn("view partially failed", zap.String("view", name), zap.Strings("fields", failed))
	}
	return view, nil
}

// Field fetches one domain against the current settings.
func (o *Orchestrator) Field(ctx context.Context, domain string) (models.FieldResult, error) {
	f, ok := o.fetchers.Get(domain)
	if !ok {
		return models.FieldResult{}, fmt.Errorf("%w: %s", ErrUnknownView, domain)
	}
	return o.field(ctx, f, o.state.Current()), nil
}

// StravaDetailed computes the statistics page from the cached activity list.
func (o *Orchestrator) StravaDetailed(ctx context.Context) (models.FieldResult, error) {
	f, ok := o.fetchers.Get(models.DomainStrava)
	if !ok {
		return models.FieldResult{}, fmt.Errorf("%w: %s", ErrUnknownView, models.DomainStrava)
	}
	d, ok := f.(interface {
		Detailed(context.Context, *models.DashboardConfig) (fetcher.Result, error)
	})
	if !ok {
		return models.FieldResult{}, fmt.Errorf("%w: strava detail", ErrUnknownView)
	}
	cfg := o.state.Current()
	if !f.Configured() {
		return notConfigured(f), nil
	}
	r, err := d.Detailed(ctx, cfg)
	return toField(f, r, err), nil
}

func (o *Orchestrator) field(ctx context.Context, f fetcher.Fetcher, cfg *models.DashboardConfig) models.FieldResult {
	if !f.Configured() {
		return notConfigured(f)
	}
	ctx, span := tracing.StartSpan(ctx, "fetcher."+f.Name(), attribute.String("cache.key", f.Key(cfg)))
	defer span.End()

	r, err := f.Fetch(ctx, cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Bool("cache.hit", r.Hit), attribute.Bool("cache.stale", r.Stale))
	}
	return toField(f, r, err)
}

func notConfigured(f fetcher.Fetcher) models.FieldResult {
	return models.FieldResult{
		Error: &models.FieldError{Kind: KindNotConfigured, Message: f.Name() + " is not configured"},
	}
}

func toField(f fetcher.Fetcher, r fetcher.Result, err error) models.FieldResult {
	if err != nil {
		fr := models.FieldResult{Error: fieldError(f.Name(), err)}
		if fb, ok := fetcher.FallbackFor(f); ok {
			fr.Data = fb
			fr.Fallback = true
		}
		return fr
	}
	computed, expires := r.ComputedAt, r.ExpiresAt
	return models.FieldResult{
		OK:         true,
		Data:       r.Value,
		Cached:     r.Hit,
		Stale:      r.Stale,
		ComputedAt: &computed,
		ExpiresAt:  &expires,
	}
}

func fieldError(name string, err error) *models.FieldError {
	var fe *upstream.FetchError
	switch {
	case errors.As(err, &fe):
		return &models.FieldError{Kind: string(fe.Kind), Message: fe.Error(), Timeout: fe.Timeout()}
	case errors.Is(err, fetcher.ErrNotConfigured):
		return &models.FieldError{Kind: KindNotConfigured, Message: name + " is not configured"}
	case errors.Is(err, context.DeadlineExceeded):
		return &models.FieldError{Kind: string(upstream.KindUnavailable), Message: name + ": timed out", Timeout: true}
	case errors.Is(err, context.Canceled):
		return &models.FieldError{Kind: string(upstream.KindUnavailable), Message: name + ": request canceled"}
	}
	return &models.FieldError{Kind: string(upstream.KindUnavailable), Message: err.Error()}
}

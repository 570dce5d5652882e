package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

const (
	stravaPerPage = 30
	// Tokens are renewed this long before they expire.
	stravaEarlyExpiry = 5 * time.Minute
)

// StravaConfig holds the API location and the OAuth2 refresh-token grant.
type StravaConfig struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Strava serves recent activities. The cache stores the raw activity list;
// summaries are computed on every read so they follow the clock and timezone.
type Strava struct {
	d      Deps
	cfg    StravaConfig
	tokens *tokenSource
}

func NewStrava(d Deps, cfg StravaConfig) *Strava {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	hc := &http.Client{Transport: d.Client.HTTPClient().Transport, Timeout: d.Client.Timeout()}
	ts := &tokenSource{
		conf:         conf,
		ctx:          context.WithValue(context.Background(), oauth2.HTTPClient, hc),
		refreshToken: cfg.RefreshToken,
	}
	ts.reset()
	return &Strava{d: d, cfg: cfg, tokens: ts}
}

func (s *Strava) Name() string { return models.DomainStrava }

func (s *Strava) DependsOn() []models.ConfigField { return nil }

func (s *Strava) Configured() bool {
	return s.cfg.ClientID != "" && s.cfg.ClientSecret != "" && s.cfg.RefreshToken != ""
}

func (s *Strava) Key(*models.DashboardConfig) string {
	return Key(models.DomainStrava, "activities")
}

// Fetch returns the widget summary computed from the cached activity list.
func (s *Strava) Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	r, acts, err := s.activities(ctx, cfg)
	if err != nil {
		return Result{}, err
	}
	r.Value = Summarize(acts, s.d.now(), cfg.Location())
	return r, nil
}

// Detailed returns the statistics page payload computed from the cached activity list.
func (s *Strava) Detailed(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	r, acts, err := s.activities(ctx, cfg)
	if err != nil {
		return Result{}, err
	}
	r.Value = Detail(acts, s.d.now(), cfg.Location())
	return r, nil
}

func (s *Strava) activities(ctx context.Context, cfg *models.DashboardConfig) (Result, models.StravaActivities, error) {
	if !s.Configured() {
		return Result{}, nil, ErrNotConfigured
	}
	r, err := s.d.Cache.GetOrCompute(ctx, s.Key(cfg), cfg.TTLs.Strava, func(ctx context.Context) (interface{}, error) {
		return s.list(ctx)
	})
	if err != nil {
		return Result{}, nil, err
	}
	acts, ok := r.Value.(models.StravaActivities)
	if !ok {
		return Result{}, nil, upstream.Malformed(s.Name(), fmt.Errorf("unexpected cached value %T", r.Value))
	}
	return r, acts, nil
}

func (s *Strava) list(ctx context.Context) (models.StravaActivities, error) {
	var acts models.StravaActivities
	req := upstream.Request{
		Source: s.Name(),
		URL:    strings.TrimRight(s.cfg.APIURL, "/") + "/athlete/activities",
		Query:  url.Values{"per_page": {strconv.Itoa(stravaPerPage)}},
	}
	err := s.authorized(ctx, func(header http.Header) error {
		req.Header = header
		return s.d.Client.GetJSON(ctx, req, &acts)
	})
	if err != nil {
		return nil, err
	}
	s.d.logger().Info("fetched strava activities", zap.Int("count", len(acts)))
	return acts, nil
}

// authorized runs call with a bearer header. A 401 renews the token and retries once.
func (s *Strava) authorized(ctx context.Context, call func(http.Header) error) error {
	header, err := s.header()
	if err != nil {
		return err
	}
	err = call(header)

	var fe *upstream.FetchError
	if !errors.As(err, &fe) || fe.Kind != upstream.KindRejected || fe.Status != http.StatusUnauthorized {
		return err
	}
	s.d.logger().Warn("strava rejected the access token, renewing")
	s.tokens.reset()
	if header, err = s.header(); err != nil {
		return err
	}
	return call(header)
}

func (s *Strava) header() (http.Header, error) {
	tok, err := s.tokens.Token()
	if err != nil {
		return nil, tokenError(s.Name(), err)
	}
	return http.Header{"Authorization": {"Bearer " + tok.AccessToken}}, nil
}

func tokenError(source string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return upstream.Rejected(source, re.Response.StatusCode, "token refresh failed")
	}
	return upstream.Unavailable(source, fmt.Errorf("token refresh: %w", err))
}

func (s *Strava) Probe(ctx context.Context, _ *models.DashboardConfig) models.ServiceHealth {
	return probe(ctx, s.d, s.Name(), func(ctx context.Context) error {
		if !s.Configured() {
			return ErrNotConfigured
		}
		var athlete struct {
			ID int64 `json:"id"`
		}
		req := upstream.Request{Source: s.Name(), URL: strings.TrimRight(s.cfg.APIURL, "/") + "/athlete"}
		return s.authorized(ctx, func(header http.Header) error {
			req.Header = header
			return s.d.Client.GetJSON(ctx, req, &athlete)
		})
	})
}

// tokenSource hands out access tokens from the refresh-token grant. Tokens are
// reused until five minutes before expiry; reset forces a renewal.
type tokenSource struct {
	conf *oauth2.Config
	ctx  context.Context

	mu           sync.Mutex
	refreshToken string
	reuse        oauth2.TokenSource
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	t.mu.Lock()
	src := t.reuse
	t.mu.Unlock()
	return src.Token()
}

func (t *tokenSource) reset() {
	t.mu.Lock()
	t.reuse = oauth2.ReuseTokenSourceWithExpiry(nil, refresher{t}, stravaEarlyExpiry)
	t.mu.Unlock()
}

// refresher performs one refresh-token grant per call. Strava rotates refresh
// tokens, so the newest one is kept for the next grant.
type refresher struct{ t *tokenSource }

func (r refresher) Token() (*oauth2.Token, error) {
	r.t.mu.Lock()
	rt := r.t.refreshToken
	r.t.mu.Unlock()

	tok, err := r.t.conf.TokenSource(r.t.ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" && tok.RefreshToken != rt {
		r.t.mu.Lock()
		r.t.refreshToken = tok.RefreshToken
		r.t.mu.Unlock()
	}
	return tok, nil
}

package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

// SunConfig locates the sunrise-sunset provider.
type SunConfig struct {
	BaseURL string
}

type sunResponse struct {
	Results struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"results"`
	Status string `json:"status"`
}

// Sun serves sunrise and sunset for the home coordinates.
type Sun struct {
	d   Deps
	cfg SunConfig
}

func NewSun(d Deps, cfg SunConfig) *Sun {
	return &Sun{d: d, cfg: cfg}
}

func (s *Sun) Name() string { return models.DomainSun }

func (s *Sun) DependsOn() []models.ConfigField {
	return []models.ConfigField{models.FieldCoordinates, models.FieldTimezone}
}

func (s *Sun) Configured() bool { return s.cfg.BaseURL != "" }

func (s *Sun) date(cfg *models.DashboardConfig) string {
	return s.d.now().In(cfg.Location()).Format("2006-01-02")
}

func (s *Sun) Key(cfg *models.DashboardConfig) string {
	return Key(models.DomainSun, cfg.Home.Key(), cfg.Location().String(), s.date(cfg))
}

func (s *Sun) Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	home, loc, date := cfg.Home, cfg.Location(), s.date(cfg)
	key := Key(models.DomainSun, home.Key(), loc.String(), date)
	return s.d.Cache.GetOrCompute(ctx, key, cfg.TTLs.Sun, func(ctx context.Context) (interface{}, error) {
		return s.get(ctx, home, date, loc)
	})
}

func (s *Sun) request(home models.Coordinates, date string) upstream.Request {
	q := url.Values{
		"lat":       {strconv.FormatFloat(home.Lat, 'f', -1, 64)},
		"lng":       {strconv.FormatFloat(home.Lon, 'f', -1, 64)},
		"formatted": {"0"},
	}
	if date != "" {
		q.Set("date", date)
	}
	return upstream.Request{Source: s.Name(), URL: strings.TrimRight(s.cfg.BaseURL, "/") + "/json", Query: q}
}

func (s *Sun) get(ctx context.Context, home models.Coordinates, date string, loc *time.Location) (models.SunTimes, error) {
	var r sunResponse
	if err := s.d.Client.GetJSON(ctx, s.request(home, date), &r); err != nil {
		return models.SunTimes{}, err
	}
	if r.Status != "" && r.Status != "OK" {
		return models.SunTimes{}, upstream.Rejected(s.Name(), 0, "api status "+r.Status)
	}
	rise, err := time.Parse(time.RFC3339, r.Results.Sunrise)
	if err != nil {
		return models.SunTimes{}, upstream.Malformed(s.Name(), fmt.Errorf("sunrise: %w", err))
	}
	set, err := time.Parse(time.RFC3339, r.Results.Sunset)
	if err != nil {
		return models.SunTimes{}, upstream.Malformed(s.Name(), fmt.Errorf("sunset: %w", err))
	}
	return models.SunTimes{
		Sunrise:    rise.In(loc).Format("15:04"),
		Sunset:     set.In(loc).Format("15:04"),
		SunriseUTC: rise.UTC(),
		SunsetUTC:  set.UTC(),
		Timezone:   loc.String(),
	}, nil
}

func (s *Sun) Probe(ctx context.Context, cfg *models.DashboardConfig) models.ServiceHealth {
	return probe(ctx, s.d, s.Name(), func(ctx context.Context) error {
		_, err := s.get(ctx, cfg.Home, "", time.UTC)
		return err
	})
}

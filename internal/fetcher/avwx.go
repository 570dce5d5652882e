package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

// AVWXConfig locates the aviation weather provider.
type AVWXConfig struct {
	BaseURL string
	Token   string
}

func (c AVWXConfig) request(source, report, station string) upstream.Request {
	return upstream.Request{
		Source: source,
		URL:    strings.TrimRight(c.BaseURL, "/") + "/api/" + report + "/" + url.PathEscape(station),
		Header: http.Header{"Authorization": {"BEARER " + c.Token}},
	}
}

// NormalizeICAO upper-cases and trims a station identifier.
func NormalizeICAO(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type avwxValue struct {
	Value *float64 `json:"value"`
	Repr  string   `json:"repr"`
}

func (v *avwxValue) number() *float64 {
	if v == nil {
		return nil
	}
	return v.Value
}

type avwxTime struct {
	Repr string `json:"repr"`
	Dt   string `json:"dt"`
}

func (t *avwxTime) String() string {
	if t == nil {
		return ""
	}
	if t.Dt != "" {
		return t.Dt
	}
	return t.Repr
}

type avwxMETAR struct {
	Station       string     `json:"station"`
	Raw           string     `json:"raw"`
	FlightRules   string     `json:"flight_rules"`
	WindDirection *avwxValue `json:"wind_direction"`
	WindSpeed     *avwxValue `json:"wind_speed"`
	Temperature   *avwxValue `json:"temperature"`
	Dewpoint      *avwxValue `json:"dewpoint"`
	Visibility    *avwxValue `json:"visibility"`
	Altimeter     *avwxValue `json:"altimeter"`
	Time          *avwxTime  `json:"time"`
}

type avwxTAF struct {
	Station  string `json:"station"`
	Raw      string `json:"raw"`
	Forecast []struct {
		Raw         string    `json:"raw"`
		Type        string    `json:"type"`
		StartTime   *avwxTime `json:"start_time"`
		EndTime     *avwxTime `json:"end_time"`
		FlightRules string    `json:"flight_rules"`
	} `json:"forecast"`
}

// METAR serves routine weather reports for the configured airport.
type METAR struct {
	d   Deps
	cfg AVWXConfig
}

func NewMETAR(d Deps, cfg AVWXConfig) *METAR {
	return &METAR{d: d, cfg: cfg}
}

func (m *METAR) Name() string { return models.DomainMETAR }

func (m *METAR) DependsOn() []models.ConfigField {
	return []models.ConfigField{models.FieldAirport}
}

func (m *METAR) Configured() bool { return m.cfg.Token != "" }

func (m *METAR) Key(cfg *models.DashboardConfig) string {
	return Key(models.DomainMETAR, NormalizeICAO(cfg.AirportICAO))
}

func (m *METAR) Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	return m.FetchStation(ctx, cfg.AirportICAO, cfg.TTLs.METAR)
}

// FetchStation reads the report of an arbitrary station through the cache.
func (m *METAR) FetchStation(ctx context.Context, station string, ttl time.Duration) (Result, error) {
	if !m.Configured() {
		return Result{}, ErrNotConfigured
	}
	station = NormalizeICAO(station)
	return m.d.Cache.GetOrCompute(ctx, Key(models.DomainMETAR, station), ttl, func(ctx context.Context) (interface{}, error) {
		return m.get(ctx, station)
	})
}

func (m *METAR) get(ctx context.Context, station string) (models.METAR, error) {
	var raw avwxMETAR
	if err := m.d.Client.GetJSON(ctx, m.cfg.request(m.Name(), "metar", station), &raw); err != nil {
		return models.METAR{}, err
	}
	if raw.Raw == "" {
		return models.METAR{}, upstream.Malformed(m.Name(), errors.New("report has no raw text"))
	}
	out := models.METAR{
		Station:       raw.Station,
		Raw:           raw.Raw,
		FlightRules:   raw.FlightRules,
		WindDirection: raw.WindDirection.number(),
		WindSpeed:     raw.WindSpeed.number(),
		Temperature:   raw.Temperature.number(),
		Dewpoint:      raw.Dewpoint.number(),
		Visibility:    raw.Visibility.number(),
		Altimeter:     raw.Altimeter.number(),
		ObservedAt:    raw.Time.String(),
	}
	if out.Station == "" {
		out.Station = station
	}
	return out, nil
}

func (m *METAR) Probe(ctx context.Context, cfg *models.DashboardConfig) models.ServiceHealth {
	return probe(ctx, m.d, m.Name(), func(ctx context.Context) error {
		if !m.Configured() {
			return ErrNotConfigured
		}
		_, err := m.get(ctx, NormalizeICAO(cfg.AirportICAO))
		return err
	})
}

// TAF serves terminal aerodrome forecasts for the configured airport.
type TAF struct {
	d   Deps
	cfg AVWXConfig
}

func NewTAF(d Deps, cfg AVWXConfig) *TAF {
	return &TAF{d: d, cfg: cfg}
}

func (t *TAF) Name() string { return models.DomainTAF }

func (t *TAF) DependsOn() []models.ConfigField {
	return []models.ConfigField{models.FieldAirport}
}

func (t *TAF) Configured() bool { return t.cfg.Token != "" }

func (t *TAF) Key(cfg *models.DashboardConfig) string {
	return Key(models.DomainTAF, NormalizeICAO(cfg.AirportICAO))
}

func (t *TAF) Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	if !t.Configured() {
		return Result{}, ErrNotConfigured
	}
	station := NormalizeICAO(cfg.AirportICAO)
	return t.d.Cache.GetOrCompute(ctx, t.Key(cfg), cfg.TTLs.TAF, func(ctx context.Context) (interface{}, error) {
		return t.get(ctx, station)
	})
}

func (t *TAF) get(ctx context.Context, station string) (models.TAF, error) {
	var raw avwxTAF
	if err := t.d.Client.GetJSON(ctx, t.cfg.request(t.Name(), "taf", station), &raw); err != nil {
		return models.TAF{}, err
	}
	if raw.Raw == "" {
		return models.TAF{}, upstream.Malformed(t.Name(), errors.New("forecast has no raw text"))
	}
	out := models.TAF{Station: raw.Station, Raw: raw.Raw, Forecast: make([]models.TAFPeriod, 0, len(raw.Forecast))}
	if out.Station == "" {
		out.Station = station
	}
	for _, p := range raw.Forecast {
		out.Forecast = append(out.Forecast, models.TAFPeriod{
			Raw:         p.Raw,
			Type:        p.Type,
			Start:       p.StartTime.String(),
			End:         p.EndTime.String(),
			FlightRules: p.FlightRules,
		})
	}
	return out, nil
}

func (t *TAF) Probe(ctx context.Context, cfg *models.DashboardConfig) models.ServiceHealth {
	return probe(ctx, t.d, t.Name(), func(ctx context.Context) error {
		if !t.Configured() {
			return ErrNotConfigured
		}
		_, err := t.get(ctx, NormalizeICAO(cfg.AirportICAO))
		return err
	})
}

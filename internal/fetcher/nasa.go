package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

const (
	explanationLimit = 150
	epicCandidates   = 3
	epicDateLayout   = "2006-01-02 15:04:05"
)

// NASAConfig locates the NASA open APIs and the EPIC image archive.
type NASAConfig struct {
	BaseURL        string
	APIKey         string
	EPICArchiveURL string
	// ValidateImages issues a HEAD for every image URL before accepting it.
	ValidateImages bool
}

func (c NASAConfig) request(source, path string, query url.Values) upstream.Request {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.APIKey)
	return upstream.Request{
		Source: source,
		URL:    strings.TrimRight(c.BaseURL, "/") + path,
		Query:  query,
	}
}

type apodResponse struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	MediaType   string `json:"media_type"`
	Explanation string `json:"explanation"`
	Date        string `json:"date"`
}

// APOD serves the astronomy picture of the day. When today's entry cannot
// be used it falls back to yesterday's image.
type APOD struct {
	d   Deps
	cfg NASAConfig
}

func NewAPOD(d Deps, cfg NASAConfig) *APOD {
	return &APOD{d: d, cfg: cfg}
}

func (a *APOD) Name() string { return models.DomainAPOD }

// DependsOn is empty: the date in the key already follows the timezone.
func (a *APOD) DependsOn() []models.ConfigField { return nil }

func (a *APOD) Configured() bool { return a.cfg.APIKey != "" }

func (a *APOD) day(cfg *models.DashboardConfig) time.Time {
	return a.d.now().In(cfg.Location())
}

func (a *APOD) Key(cfg *models.DashboardConfig) string {
	return Key(models.DomainAPOD, a.day(cfg).Format("2006-01-02"))
}

func (a *APOD) Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	if !a.Configured() {
		return Result{}, ErrNotConfigured
	}
	day := a.day(cfg)
	key := Key(models.DomainAPOD, day.Format("2006-01-02"))
	return a.d.Cache.GetOrCompute(ctx, key, cfg.TTLs.APOD, func(ctx context.Context) (interface{}, error) {
		return a.resolve(ctx, day)
	})
}

func (a *APOD) resolve(ctx context.Context, day time.Time) (models.APOD, error) {
	p, err := a.current(ctx)
	if err == nil {
		return p, nil
	}
	a.d.logger().Warn("apod unavailable, trying previous day", zap.Error(err))

	prev, perr := a.get(ctx, url.Values{"date": {day.AddDate(0, 0, -1).Format("2006-01-02")}})
	if perr == nil && prev.MediaType == "image" && prev.URL != "" {
		return toAPOD(prev, models.APODSourceYesterday), nil
	}
	return models.APOD{}, err
}

func (a *APOD) current(ctx context.Context) (models.APOD, error) {
	r, err := a.get(ctx, nil)
	if err != nil {
		return models.APOD{}, err
	}
	if r.URL == "" {
		return models.APOD{}, upstream.Malformed(a.Name(), errors.New("entry has no url"))
	}
	if r.MediaType == "video" {
		r.URL = embedURL(r.URL)
		return toAPOD(r, models.APODSourceToday), nil
	}
	if a.cfg.ValidateImages {
		if err := a.d.Client.Head(ctx, a.Name(), r.URL); err != nil {
			return models.APOD{}, err
		}
	}
	return toAPOD(r, models.APODSourceToday), nil
}

func (a *APOD) get(ctx context.Context, query url.Values) (apodResponse, error) {
	var r apodResponse
	err := a.d.Client.GetJSON(ctx, a.cfg.request(a.Name(), "/planetary/apod", query), &r)
	return r, err
}

func toAPOD(r apodResponse, source string) models.APOD {
	mt := r.MediaType
	if mt == "" {
		mt = "image"
	}
	return models.APOD{
		Title:       r.Title,
		URL:         r.URL,
		MediaType:   mt,
		Explanation: truncate(r.Explanation, explanationLimit),
		Date:        r.Date,
		Source:      source,
	}
}

func (a *APOD) Fallback() interface{} {
	return models.APOD{
		Title:       "Hubble Ultra Deep Field",
		URL:         "https://cdn.esahubble.org/archives/images/screen/heic0611b.jpg",
		MediaType:   "image",
		Explanation: "The Hubble Ultra Deep Field, a look into the depths of the universe.",
		Source:      models.APODSourceFallback,
	}
}

func (a *APOD) Probe(ctx context.Context, _ *models.DashboardConfig) models.ServiceHealth {
	return probe(ctx, a.d, a.Name(), func(ctx context.Context) error {
		if !a.Configured() {
			return ErrNotConfigured
		}
		_, err := a.get(ctx, nil)
		return err
	})
}

// embedURL rewrites YouTube watch links into embeddable player links.
func embedURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.TrimPrefix(u.Host, "www.")
	switch {
	case host == "youtube.com" && u.Path == "/watch":
		if id := u.Query().Get("v"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case host == "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	}
	return raw
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

type epicItem struct {
	Image   string `json:"image"`
	Caption string `json:"caption"`
	Date    string `json:"date"`
}

// EPIC serves the newest full-disc Earth image whose archive file is reachable.
type EPIC struct {
	d   Deps
	cfg NASAConfig
}

func NewEPIC(d Deps, cfg NASAConfig) *EPIC {
	return &EPIC{d: d, cfg: cfg}
}

func (e *EPIC) Name() string { return models.DomainEPIC }

func (e *EPIC) DependsOn() []models.ConfigField { return nil }

func (e *EPIC) Configured() bool { return e.cfg.APIKey != "" }

func (e *EPIC) Key(*models.DashboardConfig) string {
	return Key(models.DomainEPIC, "natural")
}

func (e *EPIC) Fetch(ctx context.Context, cfg *models.DashboardConfig) (Result, error) {
	if !e.Configured() {
		return Result{}, ErrNotConfigured
	}
	return e.d.Cache.GetOrCompute(ctx, e.Key(cfg), cfg.TTLs.EPIC, func(ctx context.Context) (interface{}, error) {
		return e.latest(ctx)
	})
}

func (e *EPIC) list(ctx context.Context) ([]epicItem, error) {
	var items []epicItem
	if err := e.d.Client.GetJSON(ctx, e.cfg.request(e.Name(), "/EPIC/api/natural", nil), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, upstream.Malformed(e.Name(), errors.New("no images listed"))
	}
	return items, nil
}

func (e *EPIC) latest(ctx context.Context) (models.EPIC, error) {
	items, err := e.list(ctx)
	if err != nil {
		return models.EPIC{}, err
	}
	if len(items) > epicCandidates {
		items = items[:epicCandidates]
	}

	var lastErr error
	for _, it := range items {
		imageURL, err := e.archiveURL(it)
		if err != nil {
			lastErr = err
			continue
		}
		if e.cfg.ValidateImages {
			if err := e.d.Client.Head(ctx, e.Name(), imageURL); err != nil {
				e.d.logger().Warn("epic image not reachable", zap.String("url", imageURL), zap.Error(err))
				lastErr = err
				continue
			}
		}
		caption := it.Caption
		if caption == "" {
			caption = "Earth from Space"
		}
		return models.EPIC{Caption: caption, URL: imageURL, Date: it.Date}, nil
	}
	return models.EPIC{}, lastErr
}

func (e *EPIC) archiveURL(it epicItem) (string, error) {
	if it.Image == "" {
		return "", upstream.Malformed(e.Name(), errors.New("item has no image name"))
	}
	t, err := time.Parse(epicDateLayout, it.Date)
	if err != nil {
		return "", upstream.Malformed(e.Name(), fmt.Errorf("bad date %q: %w", it.Date, err))
	}
	return fmt.Sprintf("%s/natural/%s/jpg/%s.jpg",
		strings.TrimRight(e.cfg.EPICArchiveURL, "/"), t.Format("2006/01/02"), it.Image), nil
}

func (e *EPIC) Fallback() interface{} {
	return models.EPIC{
		Caption: "NASA Earth Observatory",
		URL:     "https://eoimages.gsfc.nasa.gov/images/imagerecords/73000/73909/world.topo.bathy.200412.3x5400x2700.jpg",
		Date:    "Archive Image",
	}
}

func (e *EPIC) Probe(ctx context.Context, _ *models.DashboardConfig) models.ServiceHealth {
	return probe(ctx, e.d, e.Name(), func(ctx context.Context) error {
		if !e.Configured() {
			return ErrNotConfigured
		}
		_, err := e.list(ctx)
		return err
	})
}

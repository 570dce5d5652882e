package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/codebyem/IndiaLimaYankee/internal/config"
	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/logger"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
	"github.com/codebyem/IndiaLimaYankee/internal/service"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

// CacheHeader reports how a single-field response was served.
const CacheHeader = "X-Cache"

// Values of CacheHeader.
const (
	CacheHit   = "HIT"
	CacheMiss  = "MISS"
	CacheStale = "STALE"
)

// FallbackHeader is set when a field failed and its static fallback was served.
const FallbackHeader = "X-Fallback"

// StationFetcher reads the METAR of an arbitrary station through the cache.
type StationFetcher interface {
	Configured() bool
	FetchStation(ctx context.Context, station string, ttl time.Duration) (fetcher.Result, error)
}

// CacheInspector exposes cache diagnostics.
type CacheInspector interface {
	Stats() ttlcache.Stats
	Entries() []ttlcache.EntryInfo
}

// Features are the optional parts of the dashboard the front end toggles on.
type Features struct {
	StravaEnabled bool `json:"strava_enabled"`
}

// Deps are the collaborators of Handler. Stations, Dinos and Cache may be nil.
type Deps struct {
	Orchestrator *service.Orchestrator
	Health       *service.HealthMonitor
	Invalidation *service.InvalidationController
	State        *service.ConfigState
	Stations     StationFetcher
	Dinos        *service.DinoStore
	Cache        CacheInspector
	Features     Features
	Logger       *zap.Logger
	Now          func() time.Time
}

// Handler manages HTTP request handlers
type Handler struct {
	Deps
}

// NewHandler creates a new HTTP handler
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{Deps: d}
}

// SetupRoutes configures API routes
func SetupRoutes(router *mux.Router, h *Handler) {
	api := router.PathPrefix("/api").Subrouter()

	for _, domain := range []string{
		models.DomainMETAR, models.DomainTAF, models.DomainAPOD,
		models.DomainEPIC, models.DomainSun, models.DomainStrava,
	} {
		api.HandleFunc("/"+domain, h.GetField(domain)).Methods(http.MethodGet)
	}
	api.HandleFunc("/sunmoon", h.GetField(models.DomainSun)).Methods(http.MethodGet)
	api.HandleFunc("/strava/detailed", h.GetStravaDetailed).Methods(http.MethodGet)
	api.HandleFunc("/view/{name}", h.GetView).Methods(http.MethodGet)

	api.HandleFunc("/config", h.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	api.HandleFunc("/refresh", h.Refresh).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPost)
	api.HandleFunc("/test-airport/{icao}", h.TestAirport).Methods(http.MethodGet)

	api.HandleFunc("/dino", h.GetDino).Methods(http.MethodGet)
	api.HandleFunc("/dino/{name}", h.GetDinoByName).Methods(http.MethodGet)
	api.HandleFunc("/cache", h.GetCache).Methods(http.MethodGet)
}

// gone reports whether the client has already disconnected; nothing is written then.
func gone(r *http.Request) bool {
	return r.Context().Err() != nil
}

// GetField handles GET /api/{domain}
func (h *Handler) GetField(domain string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := h.Orchestrator.Field(r.Context(), domain)
		if err != nil {
			respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), logger.FromContext(r.Context()))
			return
		}
		h.respondField(w, r, f)
	}
}

// GetStravaDetailed handles GET /api/strava/detailed
func (h *Handler) GetStravaDetailed(w http.ResponseWriter, r *http.Request) {
	f, err := h.Orchestrator.StravaDetailed(r.Context())
	if err != nil {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), logger.FromContext(r.Context()))
		return
	}
	h.respondField(w, r, f)
}

func (h *Handler) respondField(w http.ResponseWriter, r *http.Request, f models.FieldResult) {
	if gone(r) {
		return
	}
	switch {
	case f.OK:
		w.Header().Set(CacheHeader, cacheStatus(f))
		respondJSON(w, http.StatusOK, f.Data)
	case f.Fallback:
		w.Header().Set(CacheHeader, CacheMiss)
		w.Header().Set(FallbackHeader, "true")
		respondJSON(w, http.StatusOK, f.Data)
	default:
		status, code := fieldStatus(f.Error)
		respondErrorWithCode(w, status, code, f.Error.Message, logger.FromContext(r.Context()))
	}
}

func cacheStatus(f models.FieldResult) string {
	switch {
	case f.Stale:
		return CacheStale
	case f.Cached:
		return CacheHit
	}
	return CacheMiss
}

// fieldStatus maps a field error onto an HTTP status and error code.
func fieldStatus(e *models.FieldError) (int, string) {
	switch {
	case e.Kind == service.KindNotConfigured:
		return http.StatusServiceUnavailable, ErrCodeNotConfigured
	case e.Timeout:
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case e.Kind == string(upstream.KindUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUpstream
	}
	return http.StatusBadGateway, ErrCodeUpstream
}

// GetView handles GET /api/view/{name}
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	view, err := h.Orchestrator.BuildView(r.Context(), name)
	if err != nil {
		respondStructuredError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), logger.FromContext(r.Context()),
			map[string]string{"views": strings.Join(h.Orchestrator.Views(), ",")})
		return
	}
	if gone(r) {
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type configResponse struct {
	Version          uint64                  `json:"version"`
	AirportICAO      string                  `json:"airport_icao"`
	Coordinates      models.Coordinates      `json:"coordinates"`
	Timezone         string                  `json:"timezone"`
	RefreshIntervals models.RefreshIntervals `json:"refresh_intervals"`
	Caching          map[string]string       `json:"caching"`
	Features         Features                `json:"features"`
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.State.Current()
	caching := make(map[string]string, len(models.AllDomains()))
	for _, d := range models.AllDomains() {
		caching[d] = ttlLabel(cfg.TTLs.For(d))
	}
	respondJSON(w, http.StatusOK, configResponse{
		Version:          cfg.Version,
		AirportICAO:      cfg.AirportICAO,
		Coordinates:      cfg.Home,
		Timezone:         cfg.Timezone,
		RefreshIntervals: cfg.RefreshIntervals,
		Caching:          caching,
		Features:         h.Features,
	})
}

// ttlLabel renders d the way the settings page shows it, e.g. "5 minutes".
func ttlLabel(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	}
	return plural(int64(d/time.Second), "second")
}

// GetHealth handles GET /api/health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.Health.CheckAll(r.Context())
	if gone(r) {
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Refresh handles GET|POST /api/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	event := h.Invalidation.OnManualRefresh(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": fmt.Sprintf("cache cleared, %d entries evicted", event.Evicted),
		"event":   event,
	})
}

type settingsResponse struct {
	Version     uint64  `json:"version"`
	AirportICAO string  `json:"airport_icao"`
	HomeLat     float64 `json:"home_lat"`
	HomeLon     float64 `json:"home_lon"`
	Timezone    string  `json:"timezone"`
}

func toSettings(cfg *models.DashboardConfig) settingsResponse {
	return settingsResponse{
		Version:     cfg.Version,
		AirportICAO: cfg.AirportICAO,
		HomeLat:     cfg.Home.Lat,
		HomeLon:     cfg.Home.Lon,
		Timezone:    cfg.Timezone,
	}
}

// GetSettings handles GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toSettings(h.State.Current()))
}

// UpdateSettings handles POST /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	var u models.SettingsUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body: "+err.Error(), reqID)
		return
	}
	if u.Empty() {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "no settings given", reqID)
		return
	}

	event, err := h.Invalidation.OnConfigChange(r.Context(), u)
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			respondStructuredError(w, http.StatusBadRequest, ErrCodeValidationFailed, ve.Message, reqID, validationDetails(err))
			return
		}
		logger.For(r.Context(), h.Logger).Error("settings update failed", zap.Error(err))
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to save settings", reqID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settings": toSettings(h.State.Current()),
		"event":    event,
	})
}

// validationDetails maps every field of a joined validation error to its message.
func validationDetails(err error) map[string]string {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		var ve *config.ValidationError
		if errors.As(e, &ve) {
			out[ve.Field] = ve.Message
		}
	}
	return out
}

// TestAirport handles GET /api/test-airport/{icao}
func (h *Handler) TestAirport(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())
	icao := fetcher.NormalizeICAO(mux.Vars(r)["icao"])
	if err := config.ValidateICAO(icao); err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), reqID)
		return
	}
	if h.Stations == nil || !h.Stations.Configured() {
		respondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "metar is not configured", reqID)
		return
	}

	res, err := h.Stations.FetchStation(r.Context(), icao, h.State.Current().TTLs.METAR)
	if gone(r) {
		return
	}
	if err != nil {
		var fe *upstream.FetchError
		if errors.As(err, &fe) && fe.Kind == upstream.KindRejected && fe.Status >= 400 && fe.Status < 500 {
			respondJSON(w, http.StatusNotFound, map[string]interface{}{
				"valid":   false,
				"station": icao,
				"error":   fe.Error(),
			})
			return
		}
		status, code := fieldStatus(&models.FieldError{
			Kind:    string(upstream.KindOf(err)),
			Timeout: upstream.IsTimeout(err),
		})
		respondErrorWithCode(w, status, code, err.Error(), reqID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"station": icao,
		"metar":   res.Value,
	})
}

// GetDino handles GET /api/dino
func (h *Handler) GetDino(w http.ResponseWriter, r *http.Request) {
	if h.Dinos == nil {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "no dino data loaded", logger.FromContext(r.Context()))
		return
	}
	d, ok := h.Dinos.Today(h.Now(), h.State.Current().Location())
	if !ok {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "no dino data loaded", logger.FromContext(r.Context()))
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// GetDinoByName handles GET /api/dino/{name}
func (h *Handler) GetDinoByName(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if h.Dinos != nil {
		if d, ok := h.Dinos.ByName(name); ok {
			respondJSON(w, http.StatusOK, d)
			return
		}
	}
	respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("dino %q not found", name), logger.FromContext(r.Context()))
}

// GetCache handles GET /api/cache
func (h *Handler) GetCache(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		respondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "cache diagnostics unavailable", logger.FromContext(r.Context()))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":   h.Cache.Stats(),
		"entries": h.Cache.Entries(),
	})
}

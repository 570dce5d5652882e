package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

var icaoPattern = regexp.MustCompile(`^[A-Z0-9]{4}$`)

// ValidateICAO checks an already normalised station identifier.
func ValidateICAO(icao string) error {
	if !icaoPattern.MatchString(icao) {
		return &ValidationError{Field: "airport_icao", Message: fmt.Sprintf("ICAO must be 4 letters or digits, got %q", icao)}
	}
	return nil
}

// ValidateSettings checks the user-changeable part of a snapshot.
func ValidateSettings(d *models.DashboardConfig) []error {
	var errs []error

	if err := ValidateICAO(d.AirportICAO); err != nil {
		errs = append(errs, err)
	}
	if d.Home.Lat < -90 || d.Home.Lat > 90 {
		errs = append(errs, &ValidationError{
			Field:   "home_lat",
			Message: fmt.Sprintf("latitude must be between -90 and 90, got %g", d.Home.Lat),
		})
	}
	if d.Home.Lon < -180 || d.Home.Lon > 180 {
		errs = append(errs, &ValidationError{
			Field:   "home_lon",
			Message: fmt.Sprintf("longitude must be between -180 and 180, got %g", d.Home.Lon),
		})
	}
	if d.Timezone == "" {
		errs = append(errs, &ValidationError{Field: "timezone", Message: "timezone is required"})
	} else if _, err := time.LoadLocation(d.Timezone); err != nil {
		errs = append(errs, &ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", d.Timezone)})
	}
	for _, domain := range models.AllDomains() {
		if d.TTLs.For(domain) <= 0 {
			errs = append(errs, &ValidationError{
				Field:   domain + "_ttl_sec",
				Message: "ttl must be positive",
			})
		}
	}
	return errs
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port),
		})
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 || (c.GRPCPort != 0 && c.GRPCPort == c.Port) {
		errs = append(errs, &ValidationError{
			Field:   "grpc_port",
			Message: fmt.Sprintf("grpc_port must be 0 or a free port between 1 and 65535, got %d", c.GRPCPort),
		})
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel),
		})
	}

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, &ValidationError{
			Field:   "database_driver",
			Message: fmt.Sprintf("database_driver must be sqlite or postgres, got %q", c.DatabaseDriver),
		})
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, &ValidationError{Field: "database_dsn", Message: "database_dsn is required"})
	}

	errs = append(errs, ValidateSettings(c.Dashboard())...)

	for field, v := range map[string]int64{
		"refresh_metar_ms":   c.RefreshMETARMs,
		"refresh_flights_ms": c.RefreshFlightsMs,
		"refresh_weather_ms": c.RefreshWeatherMs,
		"refresh_apod_ms":    c.RefreshAPODMs,
		"refresh_strava_ms":  c.RefreshStravaMs,
	} {
		if v <= 0 {
			errs = append(errs, &ValidationError{Field: field, Message: "refresh interval must be positive"})
		}
	}

	for field, v := range map[string]int{
		"upstream_timeout_sec": c.UpstreamTimeoutSec,
		"probe_timeout_sec":    c.ProbeTimeoutSec,
		"view_timeout_sec":     c.ViewTimeoutSec,
		"cache_max_entries":    c.CacheMaxEntries,
	} {
		if v <= 0 {
			errs = append(errs, &ValidationError{Field: field, Message: "must be positive"})
		}
	}

	if c.StaleGraceSec < 0 {
		errs = append(errs, &ValidationError{Field: "stale_grace_sec", Message: "must not be negative"})
	}
	if c.CacheCleanupIntervalSec < 0 {
		errs = append(errs, &ValidationError{Field: "cache_cleanup_interval_sec", Message: "must not be negative"})
	}
	if c.HealthCheckIntervalSec < 0 {
		errs = append(errs, &ValidationError{Field: "health_check_interval_sec", Message: "must not be negative"})
	}
	if c.UpstreamRatePerSec < 0 || (c.UpstreamRatePerSec > 0 && c.UpstreamBurst < 1) {
		errs = append(errs, &ValidationError{
			Field:   "upstream_rate_per_sec",
			Message: "rate must not be negative and needs a burst of at least 1",
		})
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "tracing_sampling_rate",
			Message: fmt.Sprintf("sampling rate must be between 0 and 1, got %g", c.TracingSamplingRate),
		})
	}

	return errs
}

// Join combines validation errors into one error, or nil.
func Join(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

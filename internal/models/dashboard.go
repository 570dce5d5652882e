package models

import (
	"fmt"
	"time"
	// The kiosk image may ship without a zoneinfo database.
	_ "time/tzdata"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key renders the coordinates at fixed precision so equal positions produce equal cache keys.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// RefreshIntervals are the browser polling periods, in milliseconds.
type RefreshIntervals struct {
	METAR   int64 `json:"metar"`
	Flights int64 `json:"flights"`
	Weather int64 `json:"weather"`
	APOD    int64 `json:"apod"`
	Strava  int64 `json:"strava"`
}

// TTLs holds the cache lifetime of every data domain.
type TTLs struct {
	METAR  time.Duration
	TAF    time.Duration
	APOD   time.Duration
	EPIC   time.Duration
	Sun    time.Duration
	Strava time.Duration
}

// For returns the TTL of the named domain, or zero when the domain is unknown.
func (t TTLs) For(domain string) time.Duration {
	switch domain {
	case DomainMETAR:
		return t.METAR
	case DomainTAF:
		return t.TAF
	case DomainAPOD:
		return t.APOD
	case DomainEPIC:
		return t.EPIC
	case DomainSun:
		return t.Sun
	case DomainStrava:
		return t.Strava
	}
	return 0
}

// Data domains. Each one is served by exactly one fetcher and owns the cache
// keys that start with its name.
const (
	DomainMETAR  = "metar"
	DomainTAF    = "taf"
	DomainAPOD   = "apod"
	DomainEPIC   = "epic"
	DomainSun    = "sun"
	DomainStrava = "strava"
)

// ConfigField names a DashboardConfig field a fetcher may derive its keys or payloads from.
type ConfigField string

const (
	FieldAirport     ConfigField = "airport"
	FieldCoordinates ConfigField = "coordinates"
	FieldTimezone    ConfigField = "timezone"
)

// DashboardConfig is one immutable version of the process-wide settings.
// Readers keep the snapshot they loaded for the whole request.
type DashboardConfig struct {
	Version          uint64           `json:"version"`
	AirportICAO      string           `json:"airport_icao"`
	Home             Coordinates      `json:"coordinates"`
	Timezone         string           `json:"timezone"`
	RefreshIntervals RefreshIntervals `json:"refresh_intervals"`
	TTLs             TTLs             `json:"-"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c *DashboardConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ChangedFields lists the fields that differ between prev and c. Version and
// TTLs are not reported.
func (c *DashboardConfig) ChangedFields(prev *DashboardConfig) []ConfigField {
	var out []ConfigField
	if prev.AirportICAO != c.AirportICAO {
		out = append(out, FieldAirport)
	}
	if prev.Home.Key() != c.Home.Key() {
		out = append(out, FieldCoordinates)
	}
	if prev.Timezone != c.Timezone {
		out = append(out, FieldTimezone)
	}
	return out
}

// ChangedTTLs lists the domains whose TTL differs between prev and c.
func (c *DashboardConfig) ChangedTTLs(prev *DashboardConfig) []string {
	var out []string
	for _, d := range AllDomains() {
		if prev.TTLs.For(d) != c.TTLs.For(d) {
			out = append(out, d)
		}
	}
	return out
}

// Equal reports whether both snapshots carry the same settings, ignoring Version.
func (c *DashboardConfig) Equal(o *DashboardConfig) bool {
	return c.AirportICAO == o.AirportICAO &&
		c.Home == o.Home &&
		c.Timezone == o.Timezone &&
		c.RefreshIntervals == o.RefreshIntervals &&
		c.TTLs == o.TTLs
}

// AllDomains returns every data domain in display order.
func AllDomains() []string {
	return []string{DomainMETAR, DomainTAF, DomainSun, DomainAPOD, DomainEPIC, DomainStrava}
}

// SettingsUpdate is a partial change to the persisted settings. Nil fields are left unchanged.
type SettingsUpdate struct {
	AirportICAO *string  `json:"airport_icao,omitempty"`
	HomeLat     *float64 `json:"home_lat,omitempty"`
	HomeLon     *float64 `json:"home_lon,omitempty"`
	Timezone    *string  `json:"timezone,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (u SettingsUpdate) Empty() bool {
	return u.AirportICAO == nil && u.HomeLat == nil && u.HomeLon == nil && u.Timezone == nil
}

// Setting is one persisted key/value row.
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Persisted setting keys.
const (
	SettingAirportICAO = "airport_icao"
	SettingHomeLat     = "home_lat"
	SettingHomeLon     = "home_lon"
	SettingTimezone    = "timezone"
)

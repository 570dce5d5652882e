package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

type Config struct {
	Port               int      `mapstructure:"port"`
	GRPCPort           int      `mapstructure:"grpc_port"` // 0 = gRPC health service disabled
	LogLevel           string   `mapstructure:"log_level"`
	LogFile            string   `mapstructure:"log_file"` // empty = stderr only
	LogMaxSizeMB       int      `mapstructure:"log_max_size_mb"`
	LogMaxBackups      int      `mapstructure:"log_max_backups"`
	LogMaxAgeDays      int      `mapstructure:"log_max_age_days"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RequestTimeoutSec  int      `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`

	DatabaseDriver string `mapstructure:"database_driver"` // sqlite or postgres
	DatabaseDSN    string `mapstructure:"database_dsn"`

	AirportICAO string  `mapstructure:"airport_icao"`
	HomeLat     float64 `mapstructure:"home_lat"`
	HomeLon     float64 `mapstructure:"home_lon"`
	Timezone    string  `mapstructure:"timezone"`

	METARTTLSec  int `mapstructure:"metar_ttl_sec"`
	TAFTTLSec    int `mapstructure:"taf_ttl_sec"`
	APODTTLSec   int `mapstructure:"apod_ttl_sec"`
	EPICTTLSec   int `mapstructure:"epic_ttl_sec"`
	SunTTLSec    int `mapstructure:"sun_ttl_sec"`
	StravaTTLSec int `mapstructure:"strava_ttl_sec"`

	RefreshMETARMs   int64 `mapstructure:"refresh_metar_ms"`
	RefreshFlightsMs int64 `mapstructure:"refresh_flights_ms"`
	RefreshWeatherMs int64 `mapstructure:"refresh_weather_ms"`
	RefreshAPODMs    int64 `mapstructure:"refresh_apod_ms"`
	RefreshStravaMs  int64 `mapstructure:"refresh_strava_ms"`

	StaleGraceSec           int  `mapstructure:"stale_grace_sec"` // serve the last success this long past expiry when a refresh fails
	CacheMaxEntries         int  `mapstructure:"cache_max_entries"`
	CacheCleanupIntervalSec int  `mapstructure:"cache_cleanup_interval_sec"` // 0 = no janitor
	FullClearOnConfigChange bool `mapstructure:"full_clear_on_config_change"`

	UpstreamTimeoutSec     int     `mapstructure:"upstream_timeout_sec"`
	ProbeTimeoutSec        int     `mapstructure:"probe_timeout_sec"`
	ViewTimeoutSec         int     `mapstructure:"view_timeout_sec"`
	UpstreamRatePerSec     float64 `mapstructure:"upstream_rate_per_sec"` // 0 = no limit
	UpstreamBurst          int     `mapstructure:"upstream_burst"`
	HealthCheckIntervalSec int     `mapstructure:"health_check_interval_sec"` // 0 = probe only on request
	ValidateImages         bool    `mapstructure:"validate_images"`

	AVWXBaseURL    string `mapstructure:"avwx_base_url"`
	AVWXToken      string `mapstructure:"avwx_token"`
	NASABaseURL    string `mapstructure:"nasa_base_url"`
	NASAAPIKey     string `mapstructure:"nasa_api_key"`
	EPICArchiveURL string `mapstructure:"epic_archive_url"`
	SunBaseURL     string `mapstructure:"sun_base_url"`

	StravaAPIURL       string `mapstructure:"strava_api_url"`
	StravaTokenURL     string `mapstructure:"strava_token_url"`
	StravaClientID     string `mapstructure:"strava_client_id"`
	StravaClientSecret string `mapstructure:"strava_client_secret"`
	StravaRefreshToken string `mapstructure:"strava_refresh_token"`

	DinoDataFile string `mapstructure:"dino_data_file"`

	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TracingEndpoint     string  `mapstructure:"tracing_endpoint"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 5000)
	v.SetDefault("grpc_port", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "aviation_dashboard.log")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 5)
	v.SetDefault("log_max_age_days", 28)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("shutdown_timeout_sec", 15)

	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_dsn", "./aviation_dashboard.db")

	v.SetDefault("airport_icao", "EDLP")
	v.SetDefault("home_lat", 51.963)
	v.SetDefault("home_lon", 8.534)
	v.SetDefault("timezone", "Europe/Berlin")

	v.SetDefault("metar_ttl_sec", 300)
	v.SetDefault("taf_ttl_sec", 600)
	v.SetDefault("apod_ttl_sec", 3600)
	v.SetDefault("epic_ttl_sec", 3600)
	v.SetDefault("sun_ttl_sec", 3600)
	v.SetDefault("strava_ttl_sec", 1800)

	v.SetDefault("refresh_metar_ms", 300000)
	v.SetDefault("refresh_flights_ms", 30000)
	v.SetDefault("refresh_weather_ms", 300000)
	v.SetDefault("refresh_apod_ms", 3600000)
	v.SetDefault("refresh_strava_ms", 1800000)

	v.SetDefault("stale_grace_sec", 0)
	v.SetDefault("cache_max_entries", 1024)
	v.SetDefault("cache_cleanup_interval_sec", 300)
	v.SetDefault("full_clear_on_config_change", false)

	v.SetDefault("upstream_timeout_sec", 10)
	v.SetDefault("probe_timeout_sec", 5)
	v.SetDefault("view_timeout_sec", 12)
	v.SetDefault("upstream_rate_per_sec", 5)
	v.SetDefault("upstream_burst", 10)
	v.SetDefault("health_check_interval_sec", 0)
	v.SetDefault("validate_images", true)

	v.SetDefault("avwx_base_url", "https://avwx.rest")
	v.SetDefault("avwx_token", "")
	v.SetDefault("nasa_base_url", "https://api.nasa.gov")
	v.SetDefault("nasa_api_key", "DEMO_KEY")
	v.SetDefault("epic_archive_url", "https://epic.gsfc.nasa.gov/archive")
	v.SetDefault("sun_base_url", "https://api.sunrise-sunset.org")

	v.SetDefault("strava_api_url", "https://www.strava.com/api/v3")
	v.SetDefault("strava_token_url", "https://www.strava.com/oauth/token")
	v.SetDefault("strava_client_id", "")
	v.SetDefault("strava_client_secret", "")
	v.SetDefault("strava_refresh_token", "")

	v.SetDefault("dino_data_file", "dinos.json")

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sampling_rate", 0.1)
}

// legacyEnv are the unprefixed variables older deployments set. The prefixed
// DASHBOARD_ variable wins when both are present.
var legacyEnv = map[string]string{
	"nasa_api_key":         "NASA_API_KEY",
	"avwx_token":           "AVWX_TOKEN",
	"strava_client_id":     "STRAVA_CLIENT_ID",
	"strava_client_secret": "STRAVA_CLIENT_SECRET",
	"strava_refresh_token": "STRAVA_REFRESH_TOKEN",
	"home_lat":             "HOME_LAT",
	"home_lon":             "HOME_LON",
	"dino_data_file":       "DINO_DATA_FILE",
	"database_dsn":         "SETTINGS_DB",
}

// Loader reads configuration from DASHBOARD_ environment variables, an
// optional YAML file and defaults, highest precedence first.
type Loader struct {
	v    *viper.Viper
	path string

	mu      sync.Mutex
	current *Config
}

// NewLoader returns a loader for path. An empty path searches
// /etc/aviation-dashboard/, $HOME/.aviation-dashboard and the working directory for config.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/aviation-dashboard/")
		v.AddConfigPath("$HOME/.aviation-dashboard")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, "DASHBOARD_"+strings.ToUpper(key), legacy)
	}

	return &Loader{v: v, path: path}
}

// Load reads every source and returns the resulting Config.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}
	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Load reads configuration from the default search paths.
func Load() (*Config, error) {
	return NewLoader("").Load()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// File returns the config file in use, or "" when running on defaults and env.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the config file whenever it changes and hands every valid
// result to onChange. Invalid edits are logged and ignored. It reports false
// when there is no config file to watch.
func (l *Loader) Watch(log *zap.Logger, onChange func(*Config)) bool {
	if l.File() == "" {
		return false
	}
	if _, err := os.Stat(l.File()); err != nil {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.unmarshal()
		if err != nil {
			log.Warn("config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			log.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(Join(errs)))
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		log.Info("config reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// Current returns the last successfully loaded Config.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Dashboard converts the settings part of the config into a snapshot at version 0.
func (c *Config) Dashboard() *models.DashboardConfig {
	return &models.DashboardConfig{
		AirportICAO: strings.ToUpper(strings.TrimSpace(c.AirportICAO)),
		Home:        models.Coordinates{Lat: c.HomeLat, Lon: c.HomeLon},
		Timezone:    c.Timezone,
		RefreshIntervals: models.RefreshIntervals{
			METAR:   c.RefreshMETARMs,
			Flights: c.RefreshFlightsMs,
			Weather: c.RefreshWeatherMs,
			APOD:    c.RefreshAPODMs,
			Strava:  c.RefreshStravaMs,
		},
		TTLs: models.TTLs{
			METAR:  seconds(c.METARTTLSec),
			TAF:    seconds(c.TAFTTLSec),
			APOD:   seconds(c.APODTTLSec),
			EPIC:   seconds(c.EPICTTLSec),
			Sun:    seconds(c.SunTTLSec),
			Strava: seconds(c.StravaTTLSec),
		},
	}
}

func (c *Config) UpstreamTimeout() time.Duration { return seconds(c.UpstreamTimeoutSec) }
func (c *Config) ProbeTimeout() time.Duration    { return seconds(c.ProbeTimeoutSec) }
func (c *Config) ViewTimeout() time.Duration     { return seconds(c.ViewTimeoutSec) }
func (c *Config) StaleGrace() time.Duration      { return seconds(c.StaleGraceSec) }
func (c *Config) CacheCleanupInterval() time.Duration {
	return seconds(c.CacheCleanupIntervalSec)
}
func (c *Config) HealthCheckInterval() time.Duration { return seconds(c.HealthCheckIntervalSec) }

// StravaEnabled reports whether every Strava credential is present.
func (c *Config) StravaEnabled() bool {
	return c.StravaClientID != "" && c.StravaClientSecret != "" && c.StravaRefreshToken != ""
}

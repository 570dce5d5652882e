package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "EDLP", cfg.AirportICAO)
	assert.Equal(t, 51.963, cfg.HomeLat)
	assert.Equal(t, 8.534, cfg.HomeLon)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 300, cfg.METARTTLSec)
	assert.Equal(t, 600, cfg.TAFTTLSec)
	assert.Equal(t, int64(30000), cfg.RefreshFlightsMs)
	assert.False(t, cfg.FullClearOnConfigChange)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "port: 8080\nairport_icao: eddf\nmetar_ttl_sec: 120\nallowed_origins:\n  - http://kiosk.local\n")

	t.Setenv("DASHBOARD_PORT", "9090")
	t.Setenv("NASA_API_KEY", "legacy-key")
	t.Setenv("STRAVA_REFRESH_TOKEN", "legacy-refresh")
	t.Setenv("DASHBOARD_STRAVA_REFRESH_TOKEN", "prefixed-refresh")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, path, l.File())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 120, cfg.METARTTLSec)
	assert.Equal(t, []string{"http://kiosk.local"}, cfg.AllowedOrigins)
	assert.Equal(t, "legacy-key", cfg.NASAAPIKey)
	assert.Equal(t, "prefixed-refresh", cfg.StravaRefreshToken)
	assert.Same(t, cfg, l.Current())

	d := cfg.Dashboard()
	assert.Equal(t, "EDDF", d.AirportICAO)
	assert.Equal(t, 2*time.Minute, d.TTLs.METAR)
	assert.Equal(t, time.Hour, d.TTLs.APOD)
	assert.Equal(t, int64(300000), d.RefreshIntervals.METAR)
}

func TestLoad_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "port: [not, a, number\n")
	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.yaml")).Load()
	require.NoError(t, err)

	cfg.Port = 0
	cfg.AirportICAO = "ED"
	cfg.HomeLat = 91
	cfg.Timezone = "Mars/Olympus"
	cfg.SunTTLSec = 0
	cfg.DatabaseDriver = "mysql"

	errs := cfg.Validate()
	fields := map[string]bool{}
	for _, e := range errs {
		var ve *ValidationError
		require.True(t, errors.As(e, &ve))
		fields[ve.Field] = true
	}
	for _, f := range []string{"port", "airport_icao", "home_lat", "timezone", "sun_ttl_sec", "database_driver"} {
		assert.True(t, fields[f], "expected an error for %s", f)
	}
	assert.False(t, fields["home_lon"])
	assert.Contains(t, Join(errs).Error(), "configuration validation failed")
	assert.NoError(t, Join(nil))
}

func TestValidateICAO(t *testing.T) {
	assert.NoError(t, ValidateICAO("EDLP"))
	assert.NoError(t, ValidateICAO("K2J3"))
	assert.Error(t, ValidateICAO("edlp"))
	assert.Error(t, ValidateICAO("EDL"))
	assert.Error(t, ValidateICAO("ED-P"))
}

func TestWatch_ReloadsValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "airport_icao: EDLP\n")

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)

	var got atomic.Value
	require.True(t, l.Watch(zap.NewNop(), func(c *Config) { got.Store(c.AirportICAO) }))

	writeFile(t, path, "airport_icao: EDDF\n")
	require.Eventually(t, func() bool {
		v, _ := got.Load().(string)
		return v == "EDDF"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "EDDF", l.Current().AirportICAO)
}

func TestWatch_WithoutFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := l.Load()
	require.NoError(t, err)
	assert.False(t, l.Watch(zap.NewNop(), func(*Config) {}))
}

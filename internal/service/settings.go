package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/codebyem/IndiaLimaYankee/internal/config"
	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

// ConfigState holds the active settings snapshot. Readers load the pointer
// once per request; writers go through the InvalidationController.
type ConfigState struct {
	cur atomic.Pointer[models.DashboardConfig]
}

// NewConfigState publishes initial as version 1.
func NewConfigState(initial *models.DashboardConfig) *ConfigState {
	c := *initial
	if c.Version == 0 {
		c.Version = 1
	}
	s := &ConfigState{}
	s.cur.Store(&c)
	return s
}

// Current returns the active snapshot. Callers must not modify it.
func (s *ConfigState) Current() *models.DashboardConfig {
	return s.cur.Load()
}

func (s *ConfigState) publish(next *models.DashboardConfig) {
	s.cur.Store(next)
}

// ApplyUpdate returns a copy of cur with the non-nil fields of u applied.
// The version is left unchanged.
func ApplyUpdate(cur *models.DashboardConfig, u models.SettingsUpdate) *models.DashboardConfig {
	next := *cur
	if u.AirportICAO != nil {
		next.AirportICAO = fetcher.NormalizeICAO(*u.AirportICAO)
	}
	if u.HomeLat != nil {
		next.Home.Lat = *u.HomeLat
	}
	if u.HomeLon != nil {
		next.Home.Lon = *u.HomeLon
	}
	if u.Timezone != nil {
		next.Timezone = strings.TrimSpace(*u.Timezone)
	}
	return &next
}

// ApplySettings overlays persisted rows on base. Unknown keys are ignored.
func ApplySettings(base *models.DashboardConfig, rows []models.Setting) (*models.DashboardConfig, error) {
	var u models.SettingsUpdate
	for _, row := range rows {
		switch row.Key {
		case models.SettingAirportICAO:
			v := row.Value
			u.AirportICAO = &v
		case models.SettingHomeLat, models.SettingHomeLon:
			f, err := strconv.ParseFloat(row.Value, 64)
			if err != nil {
				return nil, &config.ValidationError{Field: row.Key, Message: fmt.Sprintf("stored value %q is not a number", row.Value)}
			}
			if row.Key == models.SettingHomeLat {
				u.HomeLat = &f
			} else {
				u.HomeLon = &f
			}
		case models.SettingTimezone:
			v := row.Value
			u.Timezone = &v
		}
	}
	return ApplyUpdate(base, u), nil
}

// SettingsValues renders the persisted part of cfg.
func SettingsValues(cfg *models.DashboardConfig) map[string]string {
	return map[string]string{
		models.SettingAirportICAO: cfg.AirportICAO,
		models.SettingHomeLat:     strconv.FormatFloat(cfg.Home.Lat, 'f', -1, 64),
		models.SettingHomeLon:     strconv.FormatFloat(cfg.Home.Lon, 'f', -1, 64),
		models.SettingTimezone:    cfg.Timezone,
	}
}

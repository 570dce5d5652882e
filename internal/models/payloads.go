package models

import "time"

// METAR is a decoded routine weather report.
type METAR struct {
	Station       string   `json:"station"`
	Raw           string   `json:"raw"`
	FlightRules   string   `json:"flight_rules"`
	WindDirection *float64 `json:"wind_direction"`
	WindSpeed     *float64 `json:"wind_speed"`
	Temperature   *float64 `json:"temperature"`
	Dewpoint      *float64 `json:"dewpoint"`
	Visibility    *float64 `json:"visibility"`
	Altimeter     *float64 `json:"altimeter"`
	ObservedAt    string   `json:"observed_at,omitempty"`
}

// TAF is a terminal aerodrome forecast.
type TAF struct {
	Station  string      `json:"station"`
	Raw      string      `json:"raw"`
	Forecast []TAFPeriod `json:"forecast"`
}

// TAFPeriod is one change group of a TAF.
type TAFPeriod struct {
	Raw         string `json:"raw"`
	Type        string `json:"type"`
	Start       string `json:"start_time,omitempty"`
	End         string `json:"end_time,omitempty"`
	FlightRules string `json:"flight_rules,omitempty"`
}

// APOD sources.
const (
	APODSourceToday     = "today"
	APODSourceYesterday = "yesterday"
	APODSourceFallback  = "fallback"
)

// APOD is the astronomy picture of the day.
type APOD struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	MediaType   string `json:"media_type"`
	Explanation string `json:"explanation"`
	Date        string `json:"date,omitempty"`
	Source      string `json:"source"`
}

// EPIC is a full-disc Earth image.
type EPIC struct {
	Caption string `json:"caption"`
	URL     string `json:"url"`
	Date    string `json:"date"`
}

// SunTimes are sunrise and sunset for the home coordinates, rendered in the configured timezone.
type SunTimes struct {
	Sunrise    string    `json:"sunrise"`
	Sunset     string    `json:"sunset"`
	SunriseUTC time.Time `json:"sunrise_utc"`
	SunsetUTC  time.Time `json:"sunset_utc"`
	Timezone   string    `json:"timezone"`
}

// StravaActivity is the subset of a Strava activity the dashboard reads.
type StravaActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	StartDate          time.Time `json:"start_date"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
}

// StravaActivities is the cached activity list, newest first.
type StravaActivities []StravaActivity

// StravaSummary is the compact widget shown on the home screen.
type StravaSummary struct {
	DisplayStat   string `json:"display_stat"`
	DisplayLabel  string `json:"display_label"`
	Streak        int    `json:"streak"`
	MonthDistance string `json:"month_distance,omitempty"`
	WeekCount     int    `json:"week_count"`
}

// StravaDetailed is the statistics page payload.
type StravaDetailed struct {
	Streak        int           `json:"streak"`
	MonthDistance string        `json:"month_distance"`
	WeekCount     int           `json:"week_count"`
	Latest        StravaLatest  `json:"latest"`
	Weekly        StravaWeekly  `json:"weekly"`
	Heatmap       []bool        `json:"heatmap"`
	Records       StravaRecords `json:"records"`
}

type StravaLatest struct {
	Name      string  `json:"name"`
	Distance  string  `json:"distance"`
	Time      string  `json:"time"`
	Pace      string  `json:"pace"`
	Elevation float64 `json:"elevation"`
}

type StravaWeekly struct {
	Run   string `json:"run"`
	Ride  string `json:"ride"`
	Swim  string `json:"swim"`
	Total string `json:"total"`
}

type StravaRecords struct {
	LongestRun   string `json:"longest_run"`
	Fastest5K    string `json:"fastest_5k"`
	MaxElevation string `json:"max_elevation"`
}

// Dino is one entry of the dinosaur data file.
type Dino struct {
	Name     string `json:"name"`
	Fact     string `json:"fact"`
	Period   string `json:"period,omitempty"`
	Diet     string `json:"diet,omitempty"`
	Length   string `json:"length,omitempty"`
	Weight   string `json:"weight,omitempty"`
	Location string `json:"location,omitempty"`
	Image    string `json:"image,omitempty"`
}

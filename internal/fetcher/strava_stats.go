package fetcher

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

const (
	labelMonthDistance = "KM MONTH"
	labelStreak        = "DAY STREAK"
	labelNoData        = "NO DATA"
	// A streak replaces the month distance on the widget from this length on.
	streakDisplayMin = 7
	fiveKMinMeters   = 4500
	fiveKMaxMeters   = 5500
)

func newestFirst(acts models.StravaActivities) models.StravaActivities {
	out := make(models.StravaActivities, len(acts))
	copy(out, acts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out
}

func localDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Streak counts consecutive days with at least one activity, ending today.
func Streak(acts models.StravaActivities, now time.Time, loc *time.Location) int {
	days := make(map[string]bool, len(acts))
	for _, a := range acts {
		days[localDay(a.StartDate, loc)] = true
	}
	today := now.In(loc)
	n := 0
	for days[today.AddDate(0, 0, -n).Format("2006-01-02")] {
		n++
	}
	return n
}

func monthStart(now time.Time, loc *time.Location) time.Time {
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, loc)
}

func since(acts models.StravaActivities, from time.Time) models.StravaActivities {
	var out models.StravaActivities
	for _, a := range acts {
		if !a.StartDate.Before(from) {
			out = append(out, a)
		}
	}
	return out
}

func kilometres(acts models.StravaActivities, activityType string) float64 {
	var m float64
	for _, a := range acts {
		if activityType == "" || a.Type == activityType {
			m += a.Distance
		}
	}
	return m / 1000
}

// Summarize builds the home screen widget.
func Summarize(acts models.StravaActivities, now time.Time, loc *time.Location) models.StravaSummary {
	if len(acts) == 0 {
		return models.StravaSummary{DisplayStat: "--", DisplayLabel: labelNoData}
	}

	streak := Streak(acts, now, loc)
	month := fmt.Sprintf("%.1f", kilometres(since(acts, monthStart(now, loc)), ""))
	s := models.StravaSummary{
		DisplayStat:   month,
		DisplayLabel:  labelMonthDistance,
		Streak:        streak,
		MonthDistance: month,
		WeekCount:     len(since(acts, now.Add(-7*24*time.Hour))),
	}
	if streak >= streakDisplayMin {
		s.DisplayStat = fmt.Sprintf("%d", streak)
		s.DisplayLabel = labelStreak
	}
	return s
}

// Detail builds the statistics page. Without activities every figure is zero
// and the records read "--".
func Detail(acts models.StravaActivities, now time.Time, loc *time.Location) models.StravaDetailed {
	if len(acts) == 0 {
		return models.StravaDetailed{
			MonthDistance: "0.0",
			Latest:        models.StravaLatest{Name: labelNoData, Distance: "0.0", Time: "0:00", Pace: "--:--"},
			Weekly:        models.StravaWeekly{Run: "0.0", Ride: "0.0", Swim: "0.0", Total: "0.0"},
			Heatmap:       make([]bool, 7),
			Records:       records(nil),
		}
	}
	acts = newestFirst(acts)
	week := since(acts, now.Add(-7*24*time.Hour))

	latest := acts[0]
	d := models.StravaDetailed{
		Streak:        Streak(acts, now, loc),
		MonthDistance: fmt.Sprintf("%.1f", kilometres(since(acts, monthStart(now, loc)), "")),
		WeekCount:     len(week),
		Latest: models.StravaLatest{
			Name:      latest.Name,
			Distance:  fmt.Sprintf("%.1f", latest.Distance/1000),
			Time:      FormatDuration(latest.MovingTime),
			Pace:      FormatPace(latest.MovingTime, latest.Distance),
			Elevation: math.Round(latest.TotalElevationGain),
		},
	}

	run, ride, swim := kilometres(week, "Run"), kilometres(week, "Ride"), kilometres(week, "Swim")
	d.Weekly = models.StravaWeekly{
		Run:   fmt.Sprintf("%.1f", run),
		Ride:  fmt.Sprintf("%.1f", ride),
		Swim:  fmt.Sprintf("%.1f", swim),
		Total: fmt.Sprintf("%.1f", run+ride+swim),
	}

	active := make(map[string]bool, len(acts))
	for _, a := range acts {
		active[localDay(a.StartDate, loc)] = true
	}
	today := now.In(loc)
	d.Heatmap = make([]bool, 7)
	for i := range d.Heatmap {
		d.Heatmap[i] = active[today.AddDate(0, 0, i-6).Format("2006-01-02")]
	}

	d.Records = records(acts)
	return d
}

func records(acts models.StravaActivities) models.StravaRecords {
	var longest, maxElev float64
	fastest := 0
	for _, a := range acts {
		if a.TotalElevationGain > maxElev {
			maxElev = a.TotalElevationGain
		}
		if a.Type != "Run" {
			continue
		}
		if a.Distance > longest {
			longest = a.Distance
		}
		if a.Distance >= fiveKMinMeters && a.Distance <= fiveKMaxMeters && a.MovingTime > 0 {
			if fastest == 0 || a.MovingTime < fastest {
				fastest = a.MovingTime
			}
		}
	}

	r := models.StravaRecords{LongestRun: "--", Fastest5K: "--", MaxElevation: "--"}
	if longest > 0 {
		r.LongestRun = fmt.Sprintf("%.1f km", longest/1000)
	}
	if fastest > 0 {
		r.Fastest5K = FormatDuration(fastest)
	}
	if maxElev > 0 {
		r.MaxElevation = fmt.Sprintf("%.0fm", math.Round(maxElev))
	}
	return r
}

// FormatDuration renders seconds as H:MM:SS, or M:SS below one hour.
func FormatDuration(seconds int) string {
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatPace renders minutes per kilometre as M:SS.
func FormatPace(movingSeconds int, meters float64) string {
	if meters <= 0 || movingSeconds <= 0 {
		return "--:--"
	}
	perKm := int(math.Round(float64(movingSeconds) / (meters / 1000)))
	return fmt.Sprintf("%d:%02d", perKm/60, perKm%60)
}

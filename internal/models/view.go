package models

import "time"

// FieldError marks a view field whose data could not be produced.
type FieldError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Timeout bool   `json:"timeout,omitempty"`
}

// FieldResult is one field of a view: either data or an error marker.
type FieldResult struct {
	OK         bool        `json:"ok"`
	Data       interface{} `json:"data,omitempty"`
	Error      *FieldError `json:"error,omitempty"`
	Cached     bool        `json:"cached"`
	Stale      bool        `json:"stale,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
	ComputedAt *time.Time  `json:"computed_at,omitempty"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

// ViewResult is a composed response. Failed fields never blank out healthy ones.
type ViewResult struct {
	View          string                 `json:"view"`
	ConfigVersion uint64                 `json:"config_version"`
	GeneratedAt   time.Time              `json:"generated_at"`
	Fields        map[string]FieldResult `json:"fields"`
}

// Failed lists the names of the fields that carry an error marker.
func (v *ViewResult) Failed() []string {
	var out []string
	for name, f := range v.Fields {
		if !f.OK {
			out = append(out, name)
		}
	}
	return out
}

// Invalidation event types pushed to websocket clients.
const (
	EventConfigChanged = "config_changed"
	EventManualRefresh = "manual_refresh"
)

// InvalidationEvent describes one eviction triggered by a settings change or a manual refresh.
type InvalidationEvent struct {
	Type      string    `json:"type"`
	Version   uint64    `json:"version"`
	Changed   []string  `json:"changed,omitempty"`
	Domains   []string  `json:"domains,omitempty"`
	Evicted   int       `json:"evicted"`
	Timestamp time.Time `json:"timestamp"`
}

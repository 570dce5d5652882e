package models

import "time"

// HealthStatus is the state of one upstream service or of the whole dashboard.
type HealthStatus string

const (
	StatusOK       HealthStatus = "ok"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
)

// ServiceHealth is the outcome of one probe. It is never persisted.
type ServiceHealth struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	LastChecked time.Time    `json:"last_checked"`
	Detail      string       `json:"detail,omitempty"`
	LatencyMs   int64        `json:"latency_ms"`
}

// HealthReport aggregates every probed service.
type HealthReport struct {
	Status        HealthStatus             `json:"status"`
	Timestamp     time.Time                `json:"timestamp"`
	Services      map[string]ServiceHealth `json:"services"`
	NotConfigured []string                 `json:"not_configured,omitempty"`
}

package api

import "context"

// SystemStatus represents the health state of the service or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the result of one health check.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthReport contains the full health report.
type HealthReport struct {
	SystemStatus   SystemStatus      `json:"system_status"`
	ActiveSessions int               `json:"active_sessions"`
	OpenPrompts    int               `json:"open_prompts"`
	Components     []ComponentHealth `json:"components"`
}

// aggregate returns the worst component status.
func aggregate(components []ComponentHealth) SystemStatus {
	status := StatusHealthy
	for _, c := range components {
		if c.Status == StatusCritical {
			return StatusCritical
		}
		if c.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

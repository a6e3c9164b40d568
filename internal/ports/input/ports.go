// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
)

// ActionCaller defines the primary port for service action calls.
type ActionCaller interface {
	// Call dispatches a fully qualified action, "<service>.<action>".
	Call(ctx context.Context, action string, params map[string]any) (any, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy            bool              // Overall health status
	Ready              bool              // Ready to accept requests
	ServicesRegistered int               // Number of registered services
	Components         map[string]string // Component statuses
}

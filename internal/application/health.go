package application

import (
	"context"
	"time"

	"github.com/ambrazasp/geofields/internal/ports/input"
	"github.com/ambrazasp/geofields/internal/ports/output"
)

const pingTimeout = 2 * time.Second

var _ input.HealthChecker = (*HealthService)(nil)

// HealthService provides health check functionality.
type HealthService struct {
	registry *ServiceRegistry
	db       output.Database
}

// NewHealthService creates a new health service.
func NewHealthService(registry *ServiceRegistry, db output.Database) *HealthService {
	return &HealthService{
		registry: registry,
		db:       db,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady returns true if the database answers.
func (s *HealthService) IsReady(ctx context.Context) bool {
	return s.ping(ctx) == nil
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"database": "ok",
	}

	err := s.ping(ctx)
	if err != nil {
		components["database"] = err.Error()
	}

	return input.HealthDetails{
		Healthy:            s.IsHealthy(ctx),
		Ready:              err == nil,
		ServicesRegistered: s.registry.ServiceCount(),
		Components:         components,
	}
}

func (s *HealthService) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.Ping(ctx)
}

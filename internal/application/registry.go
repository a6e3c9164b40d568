// Package application contains the application services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/input"
	"github.com/ambrazasp/geofields/internal/ports/output"
)

var _ input.ActionCaller = (*ServiceRegistry)(nil)

// ServiceRegistry holds the record services and dispatches calls between
// them.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]*Service
	metrics  output.MetricsCollector
	logger   *slog.Logger
}

// NewServiceRegistry creates a new service registry.
func NewServiceRegistry(metrics output.MetricsCollector, logger *slog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]*Service),
		metrics:  metrics,
		logger:   logger,
	}
}

// Register adds a service. Names must be unique.
func (r *ServiceRegistry) Register(svc *Service) error {
	r.mu.Lock()
	if _, ok := r.services[svc.Name()]; ok {
		r.mu.Unlock()
		return &domain.ConfigError{
			Field:   "services." + svc.Name(),
			Message: "service already registered",
		}
	}
	r.services[svc.Name()] = svc
	count := len(r.services)
	r.mu.Unlock()

	r.metrics.SetServicesRegistered(count)
	r.logger.Info("service registered",
		"service", svc.Name(),
		"table", svc.Table(),
		"geometry_fields", len(svc.Bindings()),
	)
	return nil
}

// GetService returns a registered service by name.
func (r *ServiceRegistry) GetService(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, name)
	}
	return svc, nil
}

// ListServices returns all registered services ordered by name.
func (r *ServiceRegistry) ListServices() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		return services[i].Name() < services[j].Name()
	})
	return services
}

// ServiceCount returns the number of registered services.
func (r *ServiceRegistry) ServiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// Call dispatches a fully qualified action, "<service>.<action>".
func (r *ServiceRegistry) Call(ctx context.Context, action string, params map[string]any) (any, error) {
	name, act, ok := strings.Cut(action, ".")
	if !ok || name == "" || act == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrActionNotFound, action)
	}
	svc, err := r.GetService(name)
	if err != nil {
		return nil, err
	}
	return svc.Call(ctx, act, params)
}

// Populate fills the requested geometry fields of rows listed from the named
// service by running their populate strategies. Fields are fetched
// concurrently; rows are only modified once every fetch succeeded.
func (r *ServiceRegistry) Populate(ctx context.Context, service string, rows []output.Row, fields []string) error {
	if len(rows) == 0 || len(fields) == 0 {
		return nil
	}
	svc, err := r.GetService(service)
	if err != nil {
		return err
	}

	strategies := make([]*domain.PopulateStrategy, len(fields))
	for i, field := range fields {
		b, ok := svc.Binding(field)
		if !ok || b.Populate == nil {
			return fmt.Errorf("%w: %s.%s", domain.ErrFieldNotFound, service, field)
		}
		strategies[i] = b.Populate
	}

	results := make([]map[string]any, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, strategy := range strategies {
		i, strategy := i, strategy
		g.Go(func() error {
			ids := make([]any, 0, len(rows))
			for _, row := range rows {
				if id, ok := row[strategy.KeyField]; ok && id != nil {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				return nil
			}

			params := make(map[string]any, len(strategy.Params)+1)
			for k, v := range strategy.Params {
				params[k] = v
			}
			params["id"] = ids

			out, err := r.Call(gctx, strategy.Action, params)
			if err != nil {
				return fmt.Errorf("populating %s: %w", fields[i], err)
			}
			results[i] = mappingOf(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, field := range fields {
		key := strategies[i].KeyField
		for _, row := range rows {
			row[field] = results[i][idKey(row[key])]
		}
	}
	return nil
}

// mappingOf converts a many-id action result to a generic mapping.
func mappingOf(v any) map[string]any {
	out := make(map[string]any)
	switch t := v.(type) {
	case map[string]any:
		return t
	case map[string]float64:
		for k, val := range t {
			out[k] = val
		}
	case map[string]*geojson.FeatureCollection:
		for k, fc := range t {
			out[k] = fc
		}
	}
	return out
}

package application

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/output"
)

// Validation messages.
const (
	MsgInvalidGeometry  = "Invalid geometry"
	MsgSingleFeature    = "Feature collection accepts only one feature"
	MsgInvalidGeomTypes = "Invalid geometry types. Availble - "
	MsgGeometryRequired = "Geometry is required"
)

// ConstraintGeometry is the constraint name of geometry validation errors.
const ConstraintGeometry = "geometry"

// ValidateGeometry is the default geometry validator.
//
// An empty value is accepted when the stored record already holds geometry,
// and otherwise unless the field is required. A non-multi field accepts at
// most one feature. A configured type list restricts geometry types. Finally
// the document must be structurally valid.
func ValidateGeometry(_ context.Context, p ValidateParams) (bool, string) {
	cfg := p.Field.Geom
	if cfg == nil {
		cfg = domain.DefaultGeomConfig()
	}

	if geojson.IsEmpty(p.Value) {
		if p.Entity != nil && !geojson.IsEmpty(p.Entity[p.Field.Name]) {
			return true, ""
		}
		if cfg.Required {
			return false, MsgGeometryRequired
		}
		return true, ""
	}

	doc, err := geojson.Parse(p.Value)
	if err == nil {
		if !cfg.Multi && len(geojson.Features(doc)) > 1 {
			return false, MsgSingleFeature
		}
		if len(cfg.Types) > 0 {
			if res := geojson.ValidateGeometryTypes(cfg.Types, doc); !res.Valid {
				return false, MsgInvalidGeomTypes + strings.Join(cfg.Types, ",")
			}
		}
	}

	if res := geojson.Validate(p.Value); !res.Valid {
		return false, res.Error
	}
	return true, ""
}

// EntityValidator runs the validation hooks of geometry fields before writes.
type EntityValidator struct {
	service string
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewEntityValidator creates a new entity validator.
func NewEntityValidator(service string, metrics output.MetricsCollector, logger *slog.Logger) *EntityValidator {
	return &EntityValidator{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// Validate checks the payload against every binding with a validation hook,
// in declaration order. The first failure is returned as a
// *domain.ValidationError; later fields are not checked.
func (v *EntityValidator) Validate(
	ctx context.Context,
	bindings []*FieldBinding,
	payload, existing output.Row,
	params map[string]any,
) error {
	for _, b := range bindings {
		if b.Validate == nil {
			continue
		}

		value := payload[b.Field.Name]
		valid, msg := b.Validate(ctx, ValidateParams{
			Value:  value,
			Field:  &b.Field,
			Entity: existing,
			Root:   payload,
			Params: params,
		})
		if valid {
			continue
		}
		if msg == "" {
			msg = MsgInvalidGeometry
		}

		v.metrics.IncValidationFailures(v.service, b.Field.Name)
		v.logger.Debug("geometry rejected", "service", v.service, "field", b.Field.Name, "reason", msg)

		return &domain.ValidationError{
			Field:      b.Field.Name,
			Value:      value,
			Constraint: ConstraintGeometry,
			Message:    msg,
		}
	}
	return nil
}

package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// Action names exposed by every service with geometry fields.
const (
	ActionFeatureCollection = "_getFeatureCollectionFromGeom"
	ActionGeometryArea      = "_getGeometryArea"
)

// ValidateParams is the input of a geometry validation hook.
type ValidateParams struct {
	Value  any            // Incoming value of the field
	Field  *domain.Field  // Field being validated
	Entity output.Row     // Stored record, nil on create
	Root   output.Row     // Whole incoming payload
	Params map[string]any // Extra action parameters
}

// ValidateFunc checks a geometry value. It returns true when the value is
// acceptable, or false and a message.
type ValidateFunc func(ctx context.Context, p ValidateParams) (bool, string)

// SetFunc transforms an incoming field value before it is written.
type SetFunc func(ctx context.Context, value any) (any, error)

// FilterFunc rewrites a filter value of a field into a raw SQL condition.
// An empty RawFilter means the value imposes no constraint.
type FilterFunc func(ctx context.Context, value any) domain.RawFilter

type validatorKind int

const (
	validatorDefault validatorKind = iota
	validatorMethod
	validatorInline
)

// ValidatorSpec selects the validation hook of a field.
type ValidatorSpec struct {
	kind   validatorKind
	method string
	fn     ValidateFunc
}

// DefaultValidator selects the builtin geometry validator.
func DefaultValidator() ValidatorSpec {
	return ValidatorSpec{kind: validatorDefault}
}

// MethodValidator selects a validation method registered on the service.
func MethodValidator(name string) ValidatorSpec {
	return ValidatorSpec{kind: validatorMethod, method: name}
}

// InlineValidator selects the given function.
func InlineValidator(fn ValidateFunc) ValidatorSpec {
	return ValidatorSpec{kind: validatorInline, fn: fn}
}

// FieldBinding is the behavior attached to one geometry field.
type FieldBinding struct {
	Field    domain.Field
	Populate *domain.PopulateStrategy
	Set      SetFunc      // nil for area fields
	Filter   FilterFunc   // nil for area fields
	Validate ValidateFunc // nil for area fields
}

// Binder attaches geometry behavior to the fields of one service.
type Binder struct {
	service    string
	primaryKey string
	srid       int
	builder    sqlfrag.Builder
	normalizer *Normalizer
	methods    map[string]ValidateFunc
	validators map[string]ValidatorSpec
	logger     *slog.Logger
}

// NewBinder creates a binder for the named service. methods are the
// validation methods a field may name; validators override the validator
// of individual fields by name.
func NewBinder(
	service, primaryKey string,
	srid int,
	builder sqlfrag.Builder,
	normalizer *Normalizer,
	methods map[string]ValidateFunc,
	validators map[string]ValidatorSpec,
	logger *slog.Logger,
) *Binder {
	if primaryKey == "" {
		primaryKey = domain.DefaultPrimaryKey
	}
	return &Binder{
		service:    service,
		primaryKey: primaryKey,
		srid:       srid,
		builder:    builder,
		normalizer: normalizer,
		methods:    methods,
		validators: validators,
		logger:     logger,
	}
}

// Bind returns the bindings of every geometry field, in declaration order.
// An unsupported geometry type or an unresolvable validator is a
// *domain.ConfigError.
func (b *Binder) Bind(fields []domain.Field) ([]*FieldBinding, error) {
	var bindings []*FieldBinding
	for _, f := range fields {
		if !f.IsGeometry() {
			continue
		}
		binding, err := b.bindField(f)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func (b *Binder) bindField(f domain.Field) (*FieldBinding, error) {
	binding := &FieldBinding{Field: f}

	switch t := f.Geom.EffectiveType(); t {
	case domain.GeomTypeGeom:
		binding.Populate = &domain.PopulateStrategy{
			KeyField: b.primaryKey,
			Action:   b.service + "." + ActionFeatureCollection,
			Params: map[string]any{
				"properties": f.Geom.Properties,
				"field":      f.Column(),
			},
		}
		binding.Set = b.setFunc()
		binding.Filter = b.filterFunc(f)

		validate, err := b.resolveValidator(f)
		if err != nil {
			return nil, err
		}
		binding.Validate = validate

	case domain.GeomTypeArea:
		source := f.Geom.Field
		if source == "" {
			source = f.Name
		}
		binding.Populate = &domain.PopulateStrategy{
			KeyField: b.primaryKey,
			Action:   b.service + "." + ActionGeometryArea,
			Params: map[string]any{
				"field":   source,
				"asField": f.Name,
			},
		}

	default:
		return nil, &domain.ConfigError{
			Field:   fmt.Sprintf("%s.fields.%s.geom.type", b.service, f.Name),
			Message: fmt.Sprintf("%q is not supported", t),
		}
	}

	b.logger.Debug("bound geometry field",
		"service", b.service,
		"field", f.Name,
		"type", f.Geom.EffectiveType(),
	)
	return binding, nil
}

// setFunc normalizes incoming documents to a geometry value, keeping the
// original value when normalization yields nothing.
func (b *Binder) setFunc() SetFunc {
	return func(ctx context.Context, value any) (any, error) {
		text, ok, err := b.normalizer.Normalize(ctx, value)
		if err != nil {
			return nil, err
		}
		if !ok {
			return value, nil
		}
		return output.GeometryValue{WKT: text, SRID: b.srid}, nil
	}
}

// filterFunc rewrites a document filter into an intersection test on the
// field's column.
func (b *Binder) filterFunc(f domain.Field) FilterFunc {
	column := sqlfrag.Ident(f.Column())
	return func(_ context.Context, value any) domain.RawFilter {
		doc, err := geojson.Parse(value)
		if err != nil {
			b.logger.Debug("ignoring non-geojson filter value", "field", f.Name, "error", err)
			return domain.RawFilter{}
		}
		sql, err := b.builder.Intersects(column, doc, b.srid)
		if err != nil {
			b.logger.Debug("ignoring unencodable filter value", "field", f.Name, "error", err)
			return domain.RawFilter{}
		}
		return domain.RawFilter{SQL: sql}
	}
}

func (b *Binder) resolveValidator(f domain.Field) (ValidateFunc, error) {
	spec, ok := b.validators[f.Name]
	if !ok {
		spec = DefaultValidator()
		if f.Geom.Validate != "" {
			spec = MethodValidator(f.Geom.Validate)
		}
	}

	switch spec.kind {
	case validatorMethod:
		fn, ok := b.methods[spec.method]
		if !ok || fn == nil {
			return nil, &domain.ConfigError{
				Field:   fmt.Sprintf("%s.fields.%s.geom.validate", b.service, f.Name),
				Message: fmt.Sprintf("method %q is not defined", spec.method),
			}
		}
		return fn, nil
	case validatorInline:
		if spec.fn == nil {
			return nil, &domain.ConfigError{
				Field:   fmt.Sprintf("%s.fields.%s.geom.validate", b.service, f.Name),
				Message: "inline validator is nil",
			}
		}
		return spec.fn, nil
	}
	return ValidateGeometry, nil
}

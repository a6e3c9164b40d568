package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// Lifecycle actions with geometry hooks.
const (
	ActionList    = "list"
	ActionFind    = "find"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionReplace = "replace"
)

// actionAliases maps the public action names to the populate actions.
var actionAliases = map[string]string{
	"feature_collection": ActionFeatureCollection,
	"geometry_area":      ActionGeometryArea,
}

// ServiceConfig declares one record service.
type ServiceConfig struct {
	Name       string
	Table      string                   // Defaults to Name
	PrimaryKey string                   // Defaults to "id"
	Fields     []domain.Field           // In declaration order
	SRID       int                      // Target SRID of generated SQL, 0 disables transforms
	Methods    map[string]ValidateFunc  // Validation methods fields may name
	Validators map[string]ValidatorSpec // Per-field validator overrides
}

// ActionParams are the parameters a lifecycle hook may rewrite.
type ActionParams struct {
	Query    any            // list and find filter
	Entity   output.Row     // create, update and replace payload
	Existing output.Row     // Stored record for update and replace
	Extra    map[string]any // Remaining action parameters
}

// Service is a record service with geometry fields.
type Service struct {
	name       string
	table      string
	primaryKey string
	srid       int
	fields     []domain.Field
	bindings   []*FieldBinding
	byName     map[string]*FieldBinding

	db         output.Database
	normalizer *Normalizer
	filters    *FilterRewriter
	validator  *EntityValidator
	populator  *Populator
	logger     *slog.Logger
}

// NewService binds the geometry fields of cfg. Binding errors are returned
// as *domain.ConfigError.
func NewService(
	cfg ServiceConfig,
	db output.Database,
	builder sqlfrag.Builder,
	normalizer *Normalizer,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) (*Service, error) {
	if cfg.Name == "" {
		return nil, &domain.ConfigError{Field: "name", Message: "service name is required"}
	}
	if cfg.Table == "" {
		cfg.Table = cfg.Name
	}
	if cfg.PrimaryKey == "" {
		cfg.PrimaryKey = domain.DefaultPrimaryKey
	}

	logger = logger.With("service", cfg.Name)

	binder := NewBinder(cfg.Name, cfg.PrimaryKey, cfg.SRID, builder, normalizer, cfg.Methods, cfg.Validators, logger)
	bindings, err := binder.Bind(cfg.Fields)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*FieldBinding, len(bindings))
	for _, b := range bindings {
		byName[b.Field.Name] = b
	}

	return &Service{
		name:       cfg.Name,
		table:      cfg.Table,
		primaryKey: cfg.PrimaryKey,
		srid:       cfg.SRID,
		fields:     cfg.Fields,
		bindings:   bindings,
		byName:     byName,
		db:         db,
		normalizer: normalizer,
		filters:    NewFilterRewriter(cfg.Name, bindings, metrics, logger),
		validator:  NewEntityValidator(cfg.Name, metrics, logger),
		populator:  NewPopulator(cfg.Name, cfg.Table, cfg.PrimaryKey, cfg.SRID, db, builder, metrics, logger),
		logger:     logger,
	}, nil
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Table returns the table backing the service.
func (s *Service) Table() string { return s.table }

// PrimaryKey returns the primary key column.
func (s *Service) PrimaryKey() string { return s.primaryKey }

// SRID returns the target SRID of generated SQL.
func (s *Service) SRID() int { return s.srid }

// Fields returns the declared fields.
func (s *Service) Fields() []domain.Field { return s.fields }

// Bindings returns the geometry field bindings in declaration order.
func (s *Service) Bindings() []*FieldBinding { return s.bindings }

// Binding returns the binding of a geometry field.
func (s *Service) Binding(field string) (*FieldBinding, bool) {
	b, ok := s.byName[field]
	return b, ok
}

// Before runs the geometry hooks of action. list and find rewrite the
// filter; create, update and replace validate the payload and then
// normalize its geometry values. Other actions are left untouched.
func (s *Service) Before(ctx context.Context, action string, p *ActionParams) error {
	switch action {
	case ActionList, ActionFind:
		p.Query = s.ApplyGeomFilter(ctx, p.Query)
		return nil
	case ActionCreate, ActionUpdate, ActionReplace:
		if err := s.ValidateGeomFields(ctx, p.Entity, p.Existing, p.Extra); err != nil {
			return err
		}
		return s.applySetters(ctx, p.Entity)
	}
	return nil
}

// ApplyGeomFilter rewrites the geometry keys of a list or find filter.
func (s *Service) ApplyGeomFilter(ctx context.Context, query any) any {
	return s.filters.Apply(ctx, query)
}

// ValidateGeomFields validates the geometry fields of a payload.
func (s *Service) ValidateGeomFields(ctx context.Context, payload, existing output.Row, params map[string]any) error {
	return s.validator.Validate(ctx, s.bindings, payload, existing, params)
}

// ParseGeom normalizes a GeoJSON document to stored text.
func (s *Service) ParseGeom(ctx context.Context, v any) (string, bool, error) {
	return s.normalizer.Normalize(ctx, v)
}

func (s *Service) applySetters(ctx context.Context, entity output.Row) error {
	for _, b := range s.bindings {
		if b.Set == nil {
			continue
		}
		value, ok := entity[b.Field.Name]
		if !ok {
			continue
		}
		set, err := b.Set(ctx, value)
		if err != nil {
			return &domain.QueryError{Service: s.name, Field: b.Field.Name, Err: err}
		}
		entity[b.Field.Name] = set
	}
	return nil
}

// Call runs one of the service actions. The populate actions are also
// reachable as feature_collection and geometry_area.
func (s *Service) Call(ctx context.Context, action string, params map[string]any) (any, error) {
	if name, ok := actionAliases[action]; ok {
		action = name
	}

	switch action {
	case ActionFeatureCollection:
		return s.featureCollectionAction(ctx, params)
	case ActionGeometryArea:
		return s.geometryAreaAction(ctx, params)
	case ActionList:
		return s.List(ctx, params["query"])
	case ActionFind:
		return s.Find(ctx, params["query"])
	}
	return nil, fmt.Errorf("%w: %s.%s", domain.ErrActionNotFound, s.name, action)
}

func (s *Service) featureCollectionAction(ctx context.Context, params map[string]any) (any, error) {
	ids, multi, err := idsParam(params["id"])
	if err != nil {
		return nil, err
	}
	field, _ := params["field"].(string)
	if field == "" {
		return nil, &domain.ValidationError{Field: "field", Constraint: "required", Message: "field is required"}
	}
	props, err := propertiesParam(params["properties"])
	if err != nil {
		return nil, err
	}

	result, err := s.populator.FeatureCollections(ctx, ids, field, props)
	if err != nil {
		return nil, err
	}
	if !multi {
		if fc, ok := result[idKey(ids[0])]; ok {
			return fc, nil
		}
		return nil, nil
	}
	return result, nil
}

func (s *Service) geometryAreaAction(ctx context.Context, params map[string]any) (any, error) {
	ids, multi, err := idsParam(params["id"])
	if err != nil {
		return nil, err
	}
	field, _ := params["field"].(string)
	if field == "" {
		return nil, &domain.ValidationError{Field: "field", Constraint: "required", Message: "field is required"}
	}
	as, _ := params["asField"].(string)

	result, err := s.populator.GeometryAreas(ctx, ids, field, as)
	if err != nil {
		return nil, err
	}
	if !multi {
		if area, ok := result[idKey(ids[0])]; ok {
			return area, nil
		}
		return nil, nil
	}
	return result, nil
}

// List returns the plain fields of the records matching query. Geometry keys
// of query are rewritten first.
func (s *Service) List(ctx context.Context, query any) ([]output.Row, error) {
	p := &ActionParams{Query: query}
	if err := s.Before(ctx, ActionList, p); err != nil {
		return nil, err
	}
	return s.selectRows(ctx, p.Query)
}

// Find returns the first record matching query, or domain.ErrNoRows.
func (s *Service) Find(ctx context.Context, query any) (output.Row, error) {
	p := &ActionParams{Query: query}
	if err := s.Before(ctx, ActionFind, p); err != nil {
		return nil, err
	}
	rows, err := s.selectRows(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoRows
	}
	return rows[0], nil
}

func (s *Service) selectRows(ctx context.Context, query any) ([]output.Row, error) {
	q := s.db.From(s.table).Column(s.primaryKey)
	for _, f := range s.fields {
		if f.IsGeometry() || f.Name == s.primaryKey {
			continue
		}
		q = q.ColumnAs(f.Column(), f.Name)
	}
	q = s.applyFilter(q, query)

	rows, err := q.All(ctx)
	if err != nil {
		return nil, &domain.QueryError{Service: s.name, Err: err}
	}
	return rows, nil
}

// applyFilter adds the conditions of a rewritten filter. Raw filters are
// spliced, lists become membership tests and scalars equality tests. Values
// that resolve to no usable clause impose no constraint.
func (s *Service) applyFilter(q output.SelectBuilder, query any) output.SelectBuilder {
	if query == nil {
		return q
	}
	filter, ok := query.(map[string]any)
	if !ok {
		s.logger.Warn("ignoring opaque filter", "type", fmt.Sprintf("%T", query))
		return q
	}

	for key, value := range filter {
		column := s.column(key)
		switch v := value.(type) {
		case domain.RawFilter:
			if !v.IsEmpty() {
				q = q.WhereRaw(v.SQL)
			}
		case []any:
			q = q.WhereIn(column, v)
		case map[string]any, nil:
			s.logger.Debug("ignoring unresolvable filter value", "key", key)
		default:
			q = q.Where(column, v)
		}
	}
	return q
}

func (s *Service) column(name string) string {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Column()
		}
	}
	return name
}

// Create validates and normalizes entity and inserts it. It returns the
// primary key of the new record.
func (s *Service) Create(ctx context.Context, entity output.Row) (any, error) {
	p := &ActionParams{Entity: cloneRow(entity)}
	if err := s.Before(ctx, ActionCreate, p); err != nil {
		return nil, err
	}

	start := time.Now()
	id, err := s.db.Insert(ctx, s.table, s.toColumns(p.Entity), s.primaryKey)
	if err != nil {
		return nil, &domain.QueryError{Service: s.name, Err: err}
	}
	s.logger.Debug("record created", "id", id, "duration_ms", time.Since(start).Milliseconds())
	return id, nil
}

// Update applies a partial update to the record with the given id.
func (s *Service) Update(ctx context.Context, id any, entity output.Row) error {
	return s.write(ctx, ActionUpdate, id, entity)
}

// Replace overwrites the record with the given id.
func (s *Service) Replace(ctx context.Context, id any, entity output.Row) error {
	return s.write(ctx, ActionReplace, id, entity)
}

func (s *Service) write(ctx context.Context, action string, id any, entity output.Row) error {
	existing, err := s.stored(ctx, id)
	if err != nil {
		return err
	}

	p := &ActionParams{Entity: cloneRow(entity), Existing: existing}
	if err := s.Before(ctx, action, p); err != nil {
		return err
	}
	if len(p.Entity) == 0 {
		return nil
	}

	n, err := s.db.Update(ctx, s.table, s.primaryKey, id, s.toColumns(p.Entity))
	if err != nil {
		return &domain.QueryError{Service: s.name, Err: err}
	}
	if n == 0 {
		return domain.ErrNoRows
	}
	return nil
}

// stored fetches the raw geometry columns of a record, enough to tell which
// geometry fields already hold a value.
func (s *Service) stored(ctx context.Context, id any) (output.Row, error) {
	q := s.db.From(s.table).Column(s.primaryKey)
	for _, b := range s.bindings {
		if b.Validate != nil {
			q = q.ColumnAs(b.Field.Column(), b.Field.Name)
		}
	}
	row, err := q.Where(s.primaryKey, id).First(ctx)
	if errors.Is(err, domain.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, &domain.QueryError{Service: s.name, Err: err}
	}
	return row, nil
}

// toColumns maps payload keys to storage columns, dropping keys that are
// not declared fields and area fields, which are derived.
func (s *Service) toColumns(entity output.Row) output.Row {
	values := make(output.Row, len(entity))
	for _, f := range s.fields {
		v, ok := entity[f.Name]
		if !ok {
			continue
		}
		if f.IsGeometry() {
			if f.Geom.EffectiveType() == domain.GeomTypeArea {
				continue
			}
			// Documents that normalized to nothing keep their raw value on
			// the entity but are not written.
			if _, isGeom := v.(output.GeometryValue); !isGeom && v != nil {
				continue
			}
		}
		values[f.Column()] = v
	}
	return values
}

func cloneRow(r output.Row) output.Row {
	out := make(output.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

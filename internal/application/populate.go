package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// Populator reads geometry and area values of stored records by primary key.
type Populator struct {
	service    string
	table      string
	primaryKey string
	srid       int
	db         output.Database
	builder    sqlfrag.Builder
	metrics    output.MetricsCollector
	logger     *slog.Logger
}

// NewPopulator creates a populator for the given table.
func NewPopulator(
	service, table, primaryKey string,
	srid int,
	db output.Database,
	builder sqlfrag.Builder,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *Populator {
	if primaryKey == "" {
		primaryKey = domain.DefaultPrimaryKey
	}
	return &Populator{
		service:    service,
		table:      table,
		primaryKey: primaryKey,
		srid:       srid,
		db:         db,
		builder:    builder,
		metrics:    metrics,
		logger:     logger,
	}
}

// FeatureCollections returns the geometry of field for every id as a
// feature collection, keyed by the id's string form. props selects stored
// columns copied into the properties of every feature.
func (p *Populator) FeatureCollections(
	ctx context.Context,
	ids []any,
	field string,
	props domain.Properties,
) (map[string]*geojson.FeatureCollection, error) {
	q := p.db.From(p.table).
		Column(p.primaryKey).
		Raw(p.builder.AsGeoJSON(sqlfrag.Ident(field), "geom", p.srid, &sqlfrag.GeoJSONOptions{}))
	for _, key := range props.Keys() {
		q = q.ColumnAs(props.Column(key), key)
	}

	rows, err := p.query(ctx, ActionFeatureCollection, field, p.whereIDs(q, ids))
	if err != nil {
		return nil, err
	}

	result := make(map[string]*geojson.FeatureCollection, len(rows))
	for _, row := range rows {
		var properties map[string]any
		if props.Len() > 0 {
			properties = make(map[string]any, props.Len())
			for _, key := range props.Keys() {
				properties[key] = row[key]
			}
		}

		var g *geojson.Geometry
		if !geojson.IsEmpty(row["geom"]) {
			g, err = geojson.ParseGeometry(row["geom"])
			if err != nil {
				return nil, &domain.QueryError{Service: p.service, Field: field, Err: err}
			}
		}
		result[idKey(row[p.primaryKey])] = geojson.FromGeometry(g, properties)
	}
	return result, nil
}

// GeometryAreas returns the area of field for every id, keyed by the id's
// string form. The database rounds to whole units and the result is then
// rounded to two decimals.
func (p *Populator) GeometryAreas(ctx context.Context, ids []any, field, as string) (map[string]float64, error) {
	if as == "" {
		as = "area"
	}
	q := p.db.From(p.table).
		Column(p.primaryKey).
		Raw(p.builder.Area(sqlfrag.Ident(field), sqlfrag.Ident(as), p.srid))

	rows, err := p.query(ctx, ActionGeometryArea, field, p.whereIDs(q, ids))
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(rows))
	for _, row := range rows {
		area, err := floatValue(row[as])
		if err != nil {
			return nil, &domain.QueryError{Service: p.service, Field: field, Err: err}
		}
		result[idKey(row[p.primaryKey])] = math.Round(area*100) / 100
	}
	return result, nil
}

func (p *Populator) whereIDs(q output.SelectBuilder, ids []any) output.SelectBuilder {
	if len(ids) == 1 {
		return q.Where(p.primaryKey, ids[0])
	}
	return q.WhereIn(p.primaryKey, ids)
}

func (p *Populator) query(ctx context.Context, op, field string, q output.SelectBuilder) ([]output.Row, error) {
	start := time.Now()
	rows, err := q.All(ctx)
	duration := time.Since(start)

	p.metrics.ObserveQueryDuration(p.service, op, duration)
	p.metrics.IncQueryCount(p.service, op, err == nil)

	if err != nil {
		p.logger.Error("populate query failed", "service", p.service, "field", field, "error", err)
		return nil, &domain.QueryError{Service: p.service, Field: field, Err: err}
	}

	p.logger.Debug("populate query executed",
		"service", p.service,
		"operation", op,
		"rows", len(rows),
		"duration_ms", duration.Milliseconds(),
	)
	return rows, nil
}

// PropertiesFromFeatureCollection returns the non-nil property maps of every
// feature of doc, or the non-nil values of property when it is set.
func PropertiesFromFeatureCollection(doc any, property string) ([]any, error) {
	if geojson.IsEmpty(doc) {
		return nil, nil
	}
	parsed, err := geojson.Parse(doc)
	if err != nil {
		return nil, err
	}
	if property != "" {
		return geojson.PropertyValues(parsed, property), nil
	}

	props := geojson.PropertiesOf(parsed)
	out := make([]any, len(props))
	for i, p := range props {
		out[i] = p
	}
	return out, nil
}

// idKey returns the string form of a primary key value.
func idKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func floatValue(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	}
	return 0, fmt.Errorf("unexpected area value %T", v)
}

package sqlfrag

import (
	"fmt"
	"strings"

	"github.com/ambrazasp/geofields/internal/domain"
)

// Dialect renders the engine-specific parts of spatial SQL.
type Dialect interface {
	// Name returns the dialect identifier used in configuration.
	Name() string

	// AsGeoJSON renders a GeoJSON projection of the given argument list.
	AsGeoJSON(args string) string

	// GeomFromGeoJSON parses a GeoJSON text expression into a geometry.
	GeomFromGeoJSON(expr string) string

	// AsText renders the well-known-text of a geometry expression.
	AsText(expr string) string

	// CollectJSONArray collects the geometries of a JSON array literal into
	// one multi-geometry. each wraps the per-element JSON text expression.
	CollectJSONArray(literal string, each func(elem string) string) string
}

// Dialect names.
const (
	DialectPostGIS    = "postgis"
	DialectSpatiaLite = "spatialite"
)

// PostGIS renders SQL for PostgreSQL with the PostGIS extension.
type PostGIS struct{}

// Name implements Dialect.
func (PostGIS) Name() string { return DialectPostGIS }

// AsGeoJSON implements Dialect.
func (PostGIS) AsGeoJSON(args string) string {
	return fmt.Sprintf("ST_AsGeoJSON(%s)::json", args)
}

// GeomFromGeoJSON implements Dialect.
func (PostGIS) GeomFromGeoJSON(expr string) string {
	return fmt.Sprintf("ST_GeomFromGeoJSON(%s)", expr)
}

// AsText implements Dialect.
func (PostGIS) AsText(expr string) string {
	return fmt.Sprintf("ST_AsText(%s)", expr)
}

// CollectJSONArray implements Dialect.
func (PostGIS) CollectJSONArray(literal string, each func(string) string) string {
	elem := fmt.Sprintf("JSON_ARRAY_ELEMENTS(%s)", literal)
	return fmt.Sprintf("ST_Collect(ARRAY(SELECT %s))", each(elem))
}

// SpatiaLite renders SQL for SQLite with the SpatiaLite extension.
type SpatiaLite struct{}

// Name implements Dialect.
func (SpatiaLite) Name() string { return DialectSpatiaLite }

// AsGeoJSON implements Dialect.
func (SpatiaLite) AsGeoJSON(args string) string {
	return fmt.Sprintf("AsGeoJSON(%s)", args)
}

// GeomFromGeoJSON implements Dialect.
func (SpatiaLite) GeomFromGeoJSON(expr string) string {
	return fmt.Sprintf("GeomFromGeoJSON(%s)", expr)
}

// AsText implements Dialect.
func (SpatiaLite) AsText(expr string) string {
	return fmt.Sprintf("AsText(%s)", expr)
}

// CollectJSONArray implements Dialect.
func (SpatiaLite) CollectJSONArray(literal string, each func(string) string) string {
	return fmt.Sprintf("(SELECT ST_Collect(%s) FROM json_each(%s))", each("value"), literal)
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectPostGIS, "postgres", "postgresql", "":
		return PostGIS{}, nil
	case DialectSpatiaLite, "sqlite", "sqlite3":
		return SpatiaLite{}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDialect, name)
}

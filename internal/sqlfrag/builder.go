// Package sqlfrag builds spatial SQL expression fragments. Fragments are
// spliced verbatim into projections and predicates by the query layer.
package sqlfrag

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ambrazasp/geofields/internal/geojson"
)

// DefaultField is the geometry expression used when none is given.
const DefaultField = `"geom"`

// ErrNoGeometries is returned when a geometry fragment is requested for an
// empty geometry list.
var ErrNoGeometries = errors.New("no geometries")

// GeoJSONOptions are the optional precision and flag arguments of a GeoJSON projection.
type GeoJSONOptions struct {
	Digits  int // Maximum decimal digits
	Options int // Option flags bitmask
}

// Builder renders spatial SQL fragments for one dialect. The zero value
// renders PostGIS.
type Builder struct {
	dialect Dialect
}

// NewBuilder creates a builder for the given dialect.
func NewBuilder(d Dialect) Builder {
	return Builder{dialect: d}
}

// Dialect returns the builder's dialect.
func (b Builder) Dialect() Dialect {
	if b.dialect == nil {
		return PostGIS{}
	}
	return b.dialect
}

// Transform wraps expr in a coordinate transform to srid. A zero srid
// returns expr unchanged.
func (b Builder) Transform(expr string, srid int) string {
	if expr == "" {
		expr = DefaultField
	}
	if srid == 0 {
		return expr
	}
	return fmt.Sprintf("ST_Transform(%s, %d)", expr, srid)
}

// Area renders the rounded area of field, aliased to as (default "area").
func (b Builder) Area(field, as string, srid int) string {
	if as == "" {
		as = "area"
	}
	return fmt.Sprintf("ROUND(ST_Area(%s)) as %s", b.Transform(field, srid), as)
}

// Distance renders the rounded distance between two fields, aliased to as
// (default "distance").
func (b Builder) Distance(field1, field2, as string, srid int) string {
	if as == "" {
		as = "distance"
	}
	return fmt.Sprintf("ROUND(ST_Distance(%s, %s)) as %s",
		b.Transform(field1, srid), b.Transform(field2, srid), as)
}

// AsGeoJSON renders a GeoJSON projection of field, aliased to as (default
// field itself). opts appends precision digits and option flags.
func (b Builder) AsGeoJSON(field, as string, srid int, opts *GeoJSONOptions) string {
	if as == "" {
		as = field
	}
	args := b.Transform(field, srid)
	if opts != nil {
		args = fmt.Sprintf("%s, %d, %d", args, opts.Digits, opts.Options)
	}
	return fmt.Sprintf("%s as %s", b.Dialect().AsGeoJSON(args), as)
}

// GeometriesAsText renders the well-known text of one or more geometries
// embedded as JSON literals. A single geometry is transformed to srid only
// when it carries a CRS; several are transformed only when every one of
// them does.
func (b Builder) GeometriesAsText(geometries []*geojson.Geometry, srid int) (string, error) {
	d := b.Dialect()

	switch len(geometries) {
	case 0:
		return "", ErrNoGeometries
	case 1:
		literal, err := JSONLiteral(geometries[0])
		if err != nil {
			return "", err
		}
		expr := d.GeomFromGeoJSON(literal)
		if geometries[0].HasCRS() && srid != 0 {
			expr = b.Transform(expr, srid)
		}
		return d.AsText(expr), nil
	}

	literal, err := JSONLiteral(geometries)
	if err != nil {
		return "", err
	}
	transform := srid != 0
	for _, g := range geometries {
		if !g.HasCRS() {
			transform = false
			break
		}
	}
	collected := d.CollectJSONArray(literal, func(elem string) string {
		expr := d.GeomFromGeoJSON(elem)
		if transform {
			expr = b.Transform(expr, srid)
		}
		return expr
	})
	return d.AsText(collected), nil
}

// GeomFromText renders a geometry constructor from a text expression,
// with srid as the second argument when non-zero.
func (b Builder) GeomFromText(text string, srid int) string {
	if srid == 0 {
		return fmt.Sprintf("ST_GeomFromText(%s)", text)
	}
	return fmt.Sprintf("ST_GeomFromText(%s, %d)", text, srid)
}

// Intersects renders a predicate testing field against the geometries of
// doc. It returns "" when doc holds no geometries, meaning no filter applies.
// srid transforms field directly but is passed to the text constructor for
// the comparison geometry.
func (b Builder) Intersects(field string, doc *geojson.Document, srid int) (string, error) {
	geometries := geojson.Geometries(doc)
	if len(geometries) == 0 {
		return "", nil
	}

	text, err := b.GeometriesAsText(geometries, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ST_intersects(%s, %s)",
		b.Transform(field, srid), b.GeomFromText(text, srid)), nil
}

// JSONLiteral encodes v as JSON inside a single-quoted SQL string literal.
// Quotes in the JSON output are rewritten to the JSON escape \u0027, which
// keeps the JSON value intact and makes the literal impossible to close early.
func JSONLiteral(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding geometry: %w", err)
	}
	return "'" + strings.ReplaceAll(string(data), "'", `\u0027`) + "'", nil
}

// Ident double-quotes an identifier, doubling embedded quotes. Dotted names
// are quoted per part.
func Ident(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
)

// Validation messages.
const (
	MsgInvalidType        = "Invalid type"
	MsgInvalidFeatures    = "Invalid features"
	MsgInvalidFeature     = "Invalid feature"
	MsgInvalidGeometry    = "Invalid geometry"
	MsgInvalidCoordinates = "Invalid coordinates"
	MsgInvalidGeomTypes   = "Invalid geometry types"
	MsgEmpty              = "Empty geojson"
)

// Result is the outcome of a validation.
type Result struct {
	Valid bool
	Error string
}

func ok() Result { return Result{Valid: true} }

func fail(err error) Result { return Result{Error: err.Error()} }

// Validate checks that v is a structurally valid GeoJSON document.
func Validate(v any) Result {
	if IsEmpty(v) {
		return Result{Error: MsgEmpty}
	}
	doc, err := Parse(v)
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return Result{Error: MsgEmpty}
		}
		return fail(err)
	}
	if err := validateDocument(doc); err != nil {
		return fail(err)
	}
	return ok()
}

// ValidateGeometryTypes checks that every geometry of v is one of allowed.
// Comparison is case-insensitive. A geometry collection passes when it is
// allowed itself or all of its members are.
func ValidateGeometryTypes(allowed []string, v any) Result {
	doc, err := Parse(v)
	if err != nil {
		return fail(err)
	}

	set := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		set[strings.ToLower(t)] = true
	}

	for _, g := range Geometries(doc) {
		if !geometryTypeAllowed(g, set) {
			return Result{Error: fmt.Sprintf("%s: %s", MsgInvalidGeomTypes, g.Type)}
		}
	}
	return ok()
}

func geometryTypeAllowed(g *Geometry, set map[string]bool) bool {
	if set[strings.ToLower(g.Type)] {
		return true
	}
	if g.Type != TypeGeometryCollection || len(g.Geometries) == 0 {
		return false
	}
	for _, m := range g.Geometries {
		if m == nil || !geometryTypeAllowed(m, set) {
			return false
		}
	}
	return true
}

func validateDocument(doc *Document) error {
	switch {
	case doc.Collection != nil:
		if doc.Collection.Features == nil {
			return errors.New(MsgInvalidFeatures)
		}
		for i, f := range doc.Collection.Features {
			if err := validateFeature(f); err != nil {
				return fmt.Errorf("%w (feature %d)", err, i)
			}
		}
		return nil
	case doc.Feature != nil:
		return validateFeature(doc.Feature)
	case doc.Geometry != nil:
		return validateGeometry(doc.Geometry)
	}
	return errors.New(MsgInvalidType)
}

func validateFeature(f *Feature) error {
	if f == nil || f.Type != TypeFeature {
		return errors.New(MsgInvalidFeature)
	}
	if f.Geometry == nil {
		return errors.New(MsgInvalidGeometry)
	}
	return validateGeometry(f.Geometry)
}

func validateGeometry(g *Geometry) error {
	if g == nil || !IsGeometryType(g.Type) {
		return errors.New(MsgInvalidGeometry)
	}

	if g.Type == TypeGeometryCollection {
		if len(g.Geometries) == 0 {
			return errors.New(MsgInvalidGeometry)
		}
		for _, m := range g.Geometries {
			if err := validateGeometry(m); err != nil {
				return err
			}
		}
		return nil
	}

	var coords any
	if len(g.Coordinates) == 0 || json.Unmarshal(g.Coordinates, &coords) != nil {
		return errors.New(MsgInvalidCoordinates)
	}
	if !checkCoordinates(g.Type, coords) {
		return errors.New(MsgInvalidCoordinates)
	}

	if _, err := g.Decode(); err != nil {
		return fmt.Errorf("%s: %w", MsgInvalidCoordinates, err)
	}
	return nil
}

// checkCoordinates verifies nesting depth, position sizes, minimum point
// counts and ring closure for the given geometry type.
func checkCoordinates(geomType string, coords any) bool {
	switch geomType {
	case TypePoint:
		return isPosition(coords)
	case TypeMultiPoint:
		return isPositionList(coords, 1)
	case TypeLineString:
		return isPositionList(coords, 2)
	case TypeMultiLineString:
		return isListOf(coords, func(v any) bool { return isPositionList(v, 2) })
	case TypePolygon:
		return isPolygon(coords)
	case TypeMultiPolygon:
		return isListOf(coords, isPolygon)
	}
	return false
}

func isPosition(v any) bool {
	p, ok := v.([]any)
	if !ok || len(p) < 2 || len(p) > 4 {
		return false
	}
	for _, c := range p {
		f, ok := c.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func isPositionList(v any, minLen int) bool {
	list, ok := v.([]any)
	if !ok || len(list) < minLen {
		return false
	}
	for _, p := range list {
		if !isPosition(p) {
			return false
		}
	}
	return true
}

func isListOf(v any, check func(any) bool) bool {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	for _, item := range list {
		if !check(item) {
			return false
		}
	}
	return true
}

func isPolygon(v any) bool {
	return isListOf(v, isLinearRing)
}

func isLinearRing(v any) bool {
	if !isPositionList(v, 4) {
		return false
	}
	ring := v.([]any)
	first, last := ring[0].([]any), ring[len(ring)-1].([]any)
	if len(first) != len(last) {
		return false
	}
	for i := range first {
		if first[i].(float64) != last[i].(float64) {
			return false
		}
	}
	return true
}

// Decode converts the geometry into a go-geom value.
func (g *Geometry) Decode() (geom.T, error) {
	plain := *g
	plain.CRS = nil
	data, err := json.Marshal(&plain)
	if err != nil {
		return nil, err
	}
	var t geom.T
	if err := gogeojson.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

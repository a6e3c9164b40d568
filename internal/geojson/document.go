// Package geojson provides the GeoJSON document model used by geometry fields:
// parsing, structural validation and geometry extraction. Coordinate decoding
// is delegated to go-geom.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GeoJSON object types.
const (
	TypeFeatureCollection  = "FeatureCollection"
	TypeFeature            = "Feature"
	TypePoint              = "Point"
	TypeMultiPoint         = "MultiPoint"
	TypeLineString         = "LineString"
	TypeMultiLineString    = "MultiLineString"
	TypePolygon            = "Polygon"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
)

// ErrEmpty is returned when parsing an absent document.
var ErrEmpty = errors.New("empty geojson")

// CRS is a named coordinate reference system annotation.
type CRS struct {
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Geometry is a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []*Geometry     `json:"geometries,omitempty"`
	CRS         *CRS            `json:"crs,omitempty"`
}

// HasCRS returns true if the geometry carries a CRS annotation.
func (g *Geometry) HasCRS() bool {
	return g != nil && g.CRS != nil
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
	CRS      *CRS       `json:"crs,omitempty"`
}

// Document is a parsed GeoJSON document. Exactly one of Collection, Feature
// or Geometry is set, according to Type.
type Document struct {
	Type       string
	Collection *FeatureCollection
	Feature    *Feature
	Geometry   *Geometry
}

// MarshalJSON encodes the wrapped object.
func (d *Document) MarshalJSON() ([]byte, error) {
	switch {
	case d.Collection != nil:
		return json.Marshal(d.Collection)
	case d.Feature != nil:
		return json.Marshal(d.Feature)
	case d.Geometry != nil:
		return json.Marshal(d.Geometry)
	}
	return []byte("null"), nil
}

// Parse parses a GeoJSON document from raw JSON (bytes, string or
// json.RawMessage), decoded JSON values (maps) or already typed objects.
func Parse(v any) (*Document, error) {
	switch t := v.(type) {
	case nil:
		return nil, ErrEmpty
	case *Document:
		if t == nil {
			return nil, ErrEmpty
		}
		return t, nil
	case Document:
		return &t, nil
	case *FeatureCollection:
		return &Document{Type: TypeFeatureCollection, Collection: t}, nil
	case *Feature:
		return &Document{Type: TypeFeature, Feature: t}, nil
	case *Geometry:
		return &Document{Type: t.Type, Geometry: t}, nil
	}

	data, err := toJSON(v)
	if err != nil {
		return nil, err
	}
	return parseJSON(data)
}

func parseJSON(data []byte) (*Document, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	doc := &Document{Type: probe.Type}
	switch probe.Type {
	case TypeFeatureCollection:
		doc.Collection = &FeatureCollection{}
		if err := json.Unmarshal(data, doc.Collection); err != nil {
			return nil, fmt.Errorf("parsing feature collection: %w", err)
		}
	case TypeFeature:
		doc.Feature = &Feature{}
		if err := json.Unmarshal(data, doc.Feature); err != nil {
			return nil, fmt.Errorf("parsing feature: %w", err)
		}
	case "":
		return nil, errors.New(MsgInvalidType)
	default:
		if !IsGeometryType(probe.Type) {
			return nil, fmt.Errorf("%s: %q", MsgInvalidType, probe.Type)
		}
		doc.Geometry = &Geometry{}
		if err := json.Unmarshal(data, doc.Geometry); err != nil {
			return nil, fmt.Errorf("parsing geometry: %w", err)
		}
	}
	return doc, nil
}

// ParseGeometry parses a single geometry object, as returned by a database
// GeoJSON projection.
func ParseGeometry(v any) (*Geometry, error) {
	if g, ok := v.(*Geometry); ok {
		return g, nil
	}
	if IsEmpty(v) {
		return nil, ErrEmpty
	}
	data, err := toJSON(v)
	if err != nil {
		return nil, err
	}
	var g Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing geometry: %w", err)
	}
	if !IsGeometryType(g.Type) {
		return nil, fmt.Errorf("%s: %q", MsgInvalidType, g.Type)
	}
	return &g, nil
}

// IsEmpty returns true for absent documents: nil, empty strings, empty
// byte slices, JSON null and empty maps.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || s == "null"
	case []byte:
		s := strings.TrimSpace(string(t))
		return s == "" || s == "null"
	case json.RawMessage:
		s := strings.TrimSpace(string(t))
		return s == "" || s == "null"
	case map[string]any:
		return len(t) == 0
	case *Document:
		return t == nil
	case *FeatureCollection:
		return t == nil
	case *Feature:
		return t == nil
	case *Geometry:
		return t == nil
	}
	return false
}

// IsGeometryType returns true for the seven GeoJSON geometry types.
func IsGeometryType(t string) bool {
	switch t {
	case TypePoint, TypeMultiPoint, TypeLineString, TypeMultiLineString,
		TypePolygon, TypeMultiPolygon, TypeGeometryCollection:
		return true
	}
	return false
}

func toJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case json.RawMessage:
		return t, nil
	case string:
		return []byte(t), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding geojson: %w", err)
	}
	return data, nil
}

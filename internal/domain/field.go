// Package domain contains the core business entities and value objects.
package domain

import (
	"encoding/json"
	"sort"
)

// GeomType selects the behavior attached to a geometry-bearing field.
type GeomType string

// Geometry field types.
const (
	GeomTypeGeom GeomType = "geom" // Stored geometry, populated as a feature collection
	GeomTypeArea GeomType = "area" // Derived area of another geometry column
)

// DefaultPrimaryKey is the key column used when a service does not declare one.
const DefaultPrimaryKey = "id"

// Field describes a record field as declared by a service schema.
type Field struct {
	Name       string      // Field key in records and payloads
	ColumnName string      // Physical column, defaults to Name
	Geom       *GeomConfig // Geometry behavior, nil for plain fields
}

// Column returns the physical storage column of the field.
func (f *Field) Column() string {
	if f.ColumnName != "" {
		return f.ColumnName
	}
	return f.Name
}

// IsGeometry returns true if the field declares geometry behavior.
func (f *Field) IsGeometry() bool {
	return f.Geom != nil
}

// GeomConfig holds the geometry options of a field.
type GeomConfig struct {
	Type       GeomType   // geom or area, empty means geom
	Multi      bool       // Allow more than one feature
	Types      []string   // Allowed geometry types, empty allows any
	Properties Properties // Columns surfaced as feature properties on read
	Field      string     // Source geometry column for area fields
	Required   bool       // Reject empty values on write
	Validate   string     // Named validation method, empty selects the default
}

// DefaultGeomConfig returns the configuration applied when a field enables
// geometry without options.
func DefaultGeomConfig() *GeomConfig {
	return &GeomConfig{Type: GeomTypeGeom, Multi: false}
}

// EffectiveType returns the configured type, defaulting to geom.
func (c *GeomConfig) EffectiveType() GeomType {
	if c == nil || c.Type == "" {
		return GeomTypeGeom
	}
	return c.Type
}

// Properties maps output property keys to stored column names.
// It can be declared as a list (key == column) or as a mapping.
type Properties struct {
	keys    []string
	columns map[string]string
}

// PropertiesFromList creates properties where each key selects the column of the same name.
func PropertiesFromList(keys []string) Properties {
	p := Properties{columns: make(map[string]string, len(keys))}
	for _, k := range keys {
		if _, dup := p.columns[k]; dup {
			continue
		}
		p.keys = append(p.keys, k)
		p.columns[k] = k
	}
	return p
}

// PropertiesFromMap creates properties from a key to column mapping.
// Keys are ordered alphabetically so generated SQL is stable.
func PropertiesFromMap(m map[string]string) Properties {
	p := Properties{columns: make(map[string]string, len(m))}
	for k, col := range m {
		p.keys = append(p.keys, k)
		p.columns[k] = col
	}
	sort.Strings(p.keys)
	return p
}

// Keys returns the output keys in declaration order.
func (p Properties) Keys() []string {
	return p.keys
}

// Column returns the stored column for an output key.
func (p Properties) Column(key string) string {
	return p.columns[key]
}

// Len returns the number of declared properties.
func (p Properties) Len() int {
	return len(p.keys)
}

// MarshalJSON encodes properties as a key to column mapping.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p.columns == nil {
		return []byte("null"), nil
	}
	return json.Marshal(p.columns)
}

// UnmarshalJSON accepts either a list of keys or a key to column mapping.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = PropertiesFromList(list)
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		*p = Properties{}
		return nil
	}
	*p = PropertiesFromMap(m)
	return nil
}

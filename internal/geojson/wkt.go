package geojson

import (
	"encoding/json"
	"fmt"

	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ParseWKT converts well-known text, as produced by the database, into a
// GeoJSON geometry.
func ParseWKT(text string) (*Geometry, error) {
	t, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("parsing wkt: %w", err)
	}
	data, err := gogeojson.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}
	var g Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", err)
	}
	return &g, nil
}

// WKT returns the well-known text of the geometry.
func (g *Geometry) WKT() (string, error) {
	t, err := g.Decode()
	if err != nil {
		return "", err
	}
	return wkt.Marshal(t)
}

// NumCoords returns the number of positions in the geometry, including members
// of geometry collections.
func (g *Geometry) NumCoords() (int, error) {
	if g.Type == TypeGeometryCollection {
		total := 0
		for _, m := range g.Geometries {
			n, err := m.NumCoords()
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}
	t, err := g.Decode()
	if err != nil {
		return 0, err
	}
	if t.Stride() == 0 {
		return 0, nil
	}
	return len(t.FlatCoords()) / t.Stride(), nil
}

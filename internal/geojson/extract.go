package geojson

// Features returns the features of a document. A bare geometry is wrapped
// into a single feature without properties.
func Features(doc *Document) []*Feature {
	if doc == nil {
		return nil
	}
	switch {
	case doc.Collection != nil:
		features := make([]*Feature, 0, len(doc.Collection.Features))
		for _, f := range doc.Collection.Features {
			if f != nil {
				features = append(features, f)
			}
		}
		return features
	case doc.Feature != nil:
		return []*Feature{doc.Feature}
	case doc.Geometry != nil:
		return []*Feature{{Type: TypeFeature, Geometry: doc.Geometry}}
	}
	return nil
}

// Geometries returns the non-null geometries of a document. Geometries of a
// collection that declares a CRS inherit it unless they carry their own.
func Geometries(doc *Document) []*Geometry {
	if doc == nil {
		return nil
	}
	if doc.Geometry != nil {
		return []*Geometry{doc.Geometry}
	}

	var inherited *CRS
	if doc.Collection != nil {
		inherited = doc.Collection.CRS
	}

	var geometries []*Geometry
	for _, f := range Features(doc) {
		if f.Geometry == nil {
			continue
		}
		g := f.Geometry
		if g.CRS == nil && inherited != nil {
			cp := *g
			cp.CRS = inherited
			g = &cp
		}
		geometries = append(geometries, g)
	}
	return geometries
}

// FromGeometry builds a feature collection from a stored geometry. Members of
// a geometry collection become one feature each; every feature shares props.
func FromGeometry(g *Geometry, props map[string]any) *FeatureCollection {
	fc := &FeatureCollection{Type: TypeFeatureCollection, Features: []*Feature{}}
	if g == nil {
		return fc
	}

	members := []*Geometry{g}
	if g.Type == TypeGeometryCollection {
		members = g.Geometries
	}
	for _, m := range members {
		fc.Features = append(fc.Features, &Feature{
			Type:       TypeFeature,
			Geometry:   m,
			Properties: props,
		})
	}
	return fc
}

// PropertiesOf returns the non-nil property maps of all features.
func PropertiesOf(doc *Document) []map[string]any {
	var props []map[string]any
	for _, f := range Features(doc) {
		if f.Properties != nil {
			props = append(props, f.Properties)
		}
	}
	return props
}

// PropertyValues returns the non-nil values of one property across all features.
func PropertyValues(doc *Document, key string) []any {
	var values []any
	for _, p := range PropertiesOf(doc) {
		if v, ok := p[key]; ok && v != nil {
			values = append(values, v)
		}
	}
	return values
}

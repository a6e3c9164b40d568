package application

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

func parcelsConfig() ServiceConfig {
	return ServiceConfig{
		Name:  "parcels",
		Table: "parcels",
		SRID:  3346,
		Fields: []domain.Field{
			{Name: "title"},
			{Name: "boundary", Geom: &domain.GeomConfig{
				Type:       domain.GeomTypeGeom,
				Properties: domain.PropertiesFromMap(map[string]string{"name": "title"}),
			}},
			{Name: "size", Geom: &domain.GeomConfig{Type: domain.GeomTypeArea, Field: "boundary"}},
		},
	}
}

func newTestService(t *testing.T, db *mockDatabase) *Service {
	t.Helper()
	svc, err := NewService(parcelsConfig(), db, sqlfrag.Builder{},
		newTestNormalizer(t, db, 0, &output.NoOpMetrics{}), &output.NoOpMetrics{}, testLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestNewServiceConfigError(t *testing.T) {
	cfg := parcelsConfig()
	cfg.Fields = append(cfg.Fields, domain.Field{Name: "volume", Geom: &domain.GeomConfig{Type: "volume"}})

	db := &mockDatabase{}
	_, err := NewService(cfg, db, sqlfrag.Builder{}, newTestNormalizer(t, db, 0, &output.NoOpMetrics{}),
		&output.NoOpMetrics{}, testLogger())

	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *domain.ConfigError", err)
	}
	if !strings.Contains(cfgErr.Message, `"volume" is not supported`) {
		t.Errorf("Message = %q", cfgErr.Message)
	}
}

func TestGeometryAreaAction(t *testing.T) {
	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			return []output.Row{
				{"id": int64(1), "size": 1234.567},
				{"id": int64(2), "size": "10"},
			}, nil
		},
	}
	svc := newTestService(t, db)
	ctx := context.Background()

	got, err := svc.Call(ctx, ActionGeometryArea, map[string]any{
		"id":      []any{1, 2},
		"field":   "boundary",
		"asField": "size",
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	want := map[string]float64{"1": 1234.57, "2": 10}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("areas = %v, want %v", got, want)
	}

	q := db.lastSelect()
	if q.table != "parcels" {
		t.Errorf("table = %q", q.table)
	}
	if len(q.raws) != 1 || q.raws[0] != `ROUND(ST_Area(ST_Transform("boundary", 3346))) as "size"` {
		t.Errorf("raws = %v", q.raws)
	}
	if !reflect.DeepEqual(q.whereIn["id"], []any{1, 2}) {
		t.Errorf("whereIn = %v", q.whereIn)
	}

	got, err = svc.Call(ctx, ActionGeometryArea, map[string]any{"id": 1, "field": "boundary", "asField": "size"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if area, ok := got.(float64); !ok || area != 1234.57 {
		t.Errorf("scalar id should return the bare value, got %#v", got)
	}
	if q := db.lastSelect(); q.where["id"] != 1 {
		t.Errorf("where = %v, want id = 1", q.where)
	}
}

func TestFeatureCollectionAction(t *testing.T) {
	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			return []output.Row{
				{"id": int64(7), "geom": testPolygon, "name": "north"},
				{"id": int64(8), "geom": nil, "name": "south"},
			}, nil
		},
	}
	svc := newTestService(t, db)

	got, err := svc.Call(context.Background(), ActionFeatureCollection, map[string]any{
		"id":         []any{7, 8},
		"field":      "boundary",
		"properties": map[string]any{"name": "title"},
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	result, ok := got.(map[string]*geojson.FeatureCollection)
	if !ok {
		t.Fatalf("result = %T, want mapping", got)
	}
	fc := result["7"]
	if fc == nil || len(fc.Features) != 1 {
		t.Fatalf("result[7] = %+v, want one feature", fc)
	}
	if fc.Features[0].Geometry.Type != geojson.TypePolygon {
		t.Errorf("geometry type = %q, want Polygon", fc.Features[0].Geometry.Type)
	}
	if fc.Features[0].Properties["name"] != "north" {
		t.Errorf("properties = %v", fc.Features[0].Properties)
	}
	if empty := result["8"]; empty == nil || len(empty.Features) != 0 {
		t.Errorf("null geometry should give an empty collection, got %+v", empty)
	}

	q := db.lastSelect()
	wantRaw := `ST_AsGeoJSON(ST_Transform("boundary", 3346), 0, 0)::json as geom`
	if len(q.raws) != 1 || q.raws[0] != wantRaw {
		t.Errorf("raws = %v, want %s", q.raws, wantRaw)
	}
	if !reflect.DeepEqual(q.columns, []string{"id", "title as name"}) {
		t.Errorf("columns = %v", q.columns)
	}
}

func TestFeatureCollectionActionSingle(t *testing.T) {
	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			return []output.Row{{"id": "a1", "geom": []byte(testPoint)}}, nil
		},
	}
	svc := newTestService(t, db)

	got, err := svc.Call(context.Background(), ActionFeatureCollection, map[string]any{"id": "a1", "field": "boundary"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	fc, ok := got.(*geojson.FeatureCollection)
	if !ok {
		t.Fatalf("result = %T, want *geojson.FeatureCollection", got)
	}
	if fc.Features[0].Properties != nil {
		t.Errorf("properties = %v, want nil without requested properties", fc.Features[0].Properties)
	}
}

func TestServiceCallErrors(t *testing.T) {
	svc := newTestService(t, &mockDatabase{})
	ctx := context.Background()

	if _, err := svc.Call(ctx, "_dropTable", nil); !errors.Is(err, domain.ErrActionNotFound) {
		t.Errorf("unknown action err = %v", err)
	}
	if _, err := svc.Call(ctx, ActionGeometryArea, map[string]any{"field": "boundary"}); !errors.Is(err, domain.ErrInvalidID) {
		t.Errorf("missing id err = %v", err)
	}
	if _, err := svc.Call(ctx, ActionGeometryArea, map[string]any{"id": 1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing field err = %v", err)
	}
}

func TestServiceCallAliases(t *testing.T) {
	db := &mockDatabase{
		rows: func(*mockSelect) ([]output.Row, error) {
			return []output.Row{{"id": int64(1), "area": 12.345, "geom": testPolygon}}, nil
		},
	}
	svc := newTestService(t, db)
	ctx := context.Background()

	tests := []struct {
		action string
		params map[string]any
	}{
		{"geometry_area", map[string]any{"id": 1, "field": "boundary"}},
		{ActionGeometryArea, map[string]any{"id": 1, "field": "boundary"}},
		{"feature_collection", map[string]any{"id": 1, "field": "boundary"}},
		{ActionFeatureCollection, map[string]any{"id": 1, "field": "boundary"}},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := svc.Call(ctx, tt.action, tt.params)
			if err != nil {
				t.Fatalf("Call(%s) failed: %v", tt.action, err)
			}
			if got == nil {
				t.Errorf("Call(%s) = nil", tt.action)
			}
		})
	}

	if _, err := svc.Call(ctx, "geometry_area", map[string]any{"id": 1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("alias without field err = %v, want invalid input", err)
	}
}

func TestServiceCreate(t *testing.T) {
	db := &mockDatabase{
		rawRow:   output.Row{"geom": "POLYGON((0 0,10 0,10 10,0 10,0 0))"},
		insertID: int64(1),
	}
	svc := newTestService(t, db)

	payload := output.Row{"title": "north", "boundary": featureCollection(testPolygon), "size": 5.0}
	id, err := svc.Create(context.Background(), payload)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != int64(1) {
		t.Errorf("id = %v, want 1", id)
	}

	if len(db.inserts) != 1 {
		t.Fatalf("len(inserts) = %d, want 1", len(db.inserts))
	}
	want := output.Row{
		"title":    "north",
		"boundary": output.GeometryValue{WKT: "POLYGON((0 0,10 0,10 10,0 10,0 0))", SRID: 3346},
	}
	if !reflect.DeepEqual(db.inserts[0], want) {
		t.Errorf("insert = %v, want %v", db.inserts[0], want)
	}
	if _, isString := payload["boundary"].(string); !isString {
		t.Error("caller payload should not be modified")
	}
}

func TestServiceCreateSkipsEmptyGeometry(t *testing.T) {
	db := &mockDatabase{insertID: int64(2)}
	svc := newTestService(t, db)

	_, err := svc.Create(context.Background(), output.Row{
		"title":    "south",
		"boundary": `{"type":"FeatureCollection","features":[]}`,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(db.raws) != 0 {
		t.Errorf("empty document should not be normalized, raws = %v", db.raws)
	}
	want := output.Row{"title": "south"}
	if len(db.inserts) != 1 || !reflect.DeepEqual(db.inserts[0], want) {
		t.Errorf("inserts = %v, want [%v]", db.inserts, want)
	}
}

func TestServiceCreateRejectsTwoFeatures(t *testing.T) {
	db := &mockDatabase{}
	svc := newTestService(t, db)

	_, err := svc.Create(context.Background(), output.Row{
		"boundary": featureCollection(testPolygon, testPolygon),
	})

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *domain.ValidationError", err)
	}
	if vErr.Field != "boundary" || vErr.Message != "Feature collection accepts only one feature" {
		t.Errorf("error = %+v", vErr)
	}
	if len(db.inserts) != 0 || len(db.raws) != 0 {
		t.Error("rejected payload should not reach the database")
	}
}

func TestServiceUpdateKeepsStoredGeometry(t *testing.T) {
	cfg := parcelsConfig()
	cfg.Fields[1].Geom.Required = true

	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			return []output.Row{{"id": int64(3), "boundary": []byte{0x01, 0x03}}}, nil
		},
		updated: 1,
	}
	svc, err := NewService(cfg, db, sqlfrag.Builder{}, newTestNormalizer(t, db, 0, &output.NoOpMetrics{}),
		&output.NoOpMetrics{}, testLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := svc.Update(context.Background(), int64(3), output.Row{"title": "renamed"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(db.updates) != 1 || db.updates[0]["title"] != "renamed" {
		t.Errorf("updates = %v", db.updates)
	}
	if _, touched := db.updates[0]["boundary"]; touched {
		t.Error("absent geometry should not be written")
	}
}

func TestServiceUpdateMissingRecord(t *testing.T) {
	svc := newTestService(t, &mockDatabase{})

	err := svc.Replace(context.Background(), 99, output.Row{"title": "x"})
	if !errors.Is(err, domain.ErrNoRows) {
		t.Errorf("err = %v, want ErrNoRows", err)
	}
}

func TestServiceList(t *testing.T) {
	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			return []output.Row{{"id": int64(1), "title": "north"}}, nil
		},
	}
	svc := newTestService(t, db)

	rows, err := svc.List(context.Background(), map[string]any{
		"title":    "north",
		"id":       []any{1, 2},
		"boundary": featureCollection(testPoint),
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}

	q := db.lastSelect()
	if q.where["title"] != "north" {
		t.Errorf("where = %v", q.where)
	}
	if !reflect.DeepEqual(q.whereIn["id"], []any{1, 2}) {
		t.Errorf("whereIn = %v", q.whereIn)
	}
	if len(q.whereRaws) != 1 || !strings.HasPrefix(q.whereRaws[0], "ST_intersects(") {
		t.Errorf("whereRaws = %v", q.whereRaws)
	}
	if !reflect.DeepEqual(q.columns, []string{"id", "title as title"}) {
		t.Errorf("columns = %v", q.columns)
	}
}

func TestServiceListWithoutConstraint(t *testing.T) {
	db := &mockDatabase{}
	svc := newTestService(t, db)
	ctx := context.Background()

	for _, query := range []any{
		map[string]any{"boundary": featureCollection()},
		`{"boundary": `,
	} {
		if _, err := svc.List(ctx, query); err != nil {
			t.Fatalf("List(%v) failed: %v", query, err)
		}
		q := db.lastSelect()
		if len(q.whereRaws) != 0 || len(q.where) != 0 || len(q.whereIn) != 0 {
			t.Errorf("List(%v) should not constrain, got %+v", query, q)
		}
	}
}

func TestPropertiesFromFeatureCollection(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":` + testPoint + `,"properties":{"name":"a"}},
		{"type":"Feature","geometry":` + testPoint + `,"properties":null},
		{"type":"Feature","geometry":` + testPoint + `,"properties":{"name":"b","kind":1}}]}`

	all, err := PropertiesFromFeatureCollection(doc, "")
	if err != nil {
		t.Fatalf("PropertiesFromFeatureCollection failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}

	names, err := PropertiesFromFeatureCollection(doc, "name")
	if err != nil {
		t.Fatalf("PropertiesFromFeatureCollection failed: %v", err)
	}
	if !reflect.DeepEqual(names, []any{"a", "b"}) {
		t.Errorf("names = %v", names)
	}

	if got, err := PropertiesFromFeatureCollection(nil, ""); got != nil || err != nil {
		t.Errorf("nil document = %v, %v", got, err)
	}
}

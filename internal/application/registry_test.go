package application

import (
	"context"
	"errors"
	"testing"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/geojson"
	"github.com/ambrazasp/geofields/internal/ports/output"
)

func newTestRegistry(t *testing.T, db *mockDatabase) *ServiceRegistry {
	t.Helper()
	registry := NewServiceRegistry(&output.NoOpMetrics{}, testLogger())
	if err := registry.Register(newTestService(t, db)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return registry
}

func TestServiceRegistryRegister(t *testing.T) {
	db := &mockDatabase{}
	registry := newTestRegistry(t, db)

	err := registry.Register(newTestService(t, db))
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("duplicate Register err = %v, want *domain.ConfigError", err)
	}

	if registry.ServiceCount() != 1 {
		t.Errorf("ServiceCount() = %d, want 1", registry.ServiceCount())
	}
	services := registry.ListServices()
	if len(services) != 1 || services[0].Name() != "parcels" {
		t.Errorf("ListServices() = %v", services)
	}
}

func TestServiceRegistryGetServiceNotFound(t *testing.T) {
	registry := newTestRegistry(t, &mockDatabase{})

	_, err := registry.GetService("roads")
	if !errors.Is(err, domain.ErrServiceNotFound) {
		t.Errorf("err = %v, want %v", err, domain.ErrServiceNotFound)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Error("ErrServiceNotFound should wrap ErrNotFound")
	}
}

func TestServiceRegistryCall(t *testing.T) {
	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			return []output.Row{{"id": int64(1), "area": 2.0}}, nil
		},
	}
	registry := newTestRegistry(t, db)
	ctx := context.Background()

	got, err := registry.Call(ctx, "parcels._getGeometryArea", map[string]any{"id": 1, "field": "boundary"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != 2.0 {
		t.Errorf("Call() = %v, want 2", got)
	}

	tests := []struct {
		action string
		want   error
	}{
		{"parcels", domain.ErrActionNotFound},
		{".list", domain.ErrActionNotFound},
		{"roads.list", domain.ErrServiceNotFound},
		{"parcels.unknown", domain.ErrActionNotFound},
	}
	for _, tt := range tests {
		if _, err := registry.Call(ctx, tt.action, nil); !errors.Is(err, tt.want) {
			t.Errorf("Call(%q) err = %v, want %v", tt.action, err, tt.want)
		}
	}
}

func TestServiceRegistryPopulate(t *testing.T) {
	db := &mockDatabase{
		rows: func(q *mockSelect) ([]output.Row, error) {
			if len(q.raws) == 1 && q.raws[0][:5] == "ROUND" {
				return []output.Row{
					{"id": int64(1), "size": 100.0},
					{"id": int64(2), "size": 42.424},
				}, nil
			}
			return []output.Row{
				{"id": int64(1), "geom": testPolygon, "name": "north"},
				{"id": int64(2), "geom": testPoint, "name": "south"},
			}, nil
		},
	}
	registry := newTestRegistry(t, db)

	rows := []output.Row{
		{"id": int64(1), "title": "north"},
		{"id": int64(2), "title": "south"},
		{"id": int64(3), "title": "missing"},
	}
	if err := registry.Populate(context.Background(), "parcels", rows, []string{"boundary", "size"}); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	fc, ok := rows[0]["boundary"].(*geojson.FeatureCollection)
	if !ok || len(fc.Features) != 1 || fc.Features[0].Geometry.Type != geojson.TypePolygon {
		t.Errorf("rows[0].boundary = %#v", rows[0]["boundary"])
	}
	if rows[1]["size"] != 42.42 {
		t.Errorf("rows[1].size = %v, want 42.42", rows[1]["size"])
	}
	if rows[2]["boundary"] != nil || rows[2]["size"] != nil {
		t.Errorf("rows without stored values should be nil, got %v", rows[2])
	}
}

func TestServiceRegistryPopulateUnknownField(t *testing.T) {
	registry := newTestRegistry(t, &mockDatabase{})

	err := registry.Populate(context.Background(), "parcels", []output.Row{{"id": 1}}, []string{"title"})
	if !errors.Is(err, domain.ErrFieldNotFound) {
		t.Errorf("err = %v, want ErrFieldNotFound", err)
	}
}

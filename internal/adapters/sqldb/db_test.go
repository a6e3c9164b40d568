package sqldb

import (
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

func newTestDB(dialect sqlfrag.Dialect) *DB {
	return New(nil, dialect, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestSelectBuilderSQL(t *testing.T) {
	tests := []struct {
		name     string
		dialect  sqlfrag.Dialect
		build    func(q output.SelectBuilder) output.SelectBuilder
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all columns",
			dialect: sqlfrag.PostGIS{},
			build:   func(q output.SelectBuilder) output.SelectBuilder { return q },
			wantSQL: `SELECT * FROM "parcels"`,
		},
		{
			name:    "postgis placeholders",
			dialect: sqlfrag.PostGIS{},
			build: func(q output.SelectBuilder) output.SelectBuilder {
				return q.Column("id").
					ColumnAs("title", "name").
					Raw("ROUND(ST_Area(geom)) as area").
					Where("owner", "ana").
					WhereIn("id", []any{1, 2}).
					WhereRaw("ST_intersects(geom, geom)")
			},
			wantSQL: `SELECT "id", "title" AS "name", ROUND(ST_Area(geom)) as area FROM "parcels" ` +
				`WHERE "owner" = $1 AND "id" IN ($2, $3) AND (ST_intersects(geom, geom))`,
			wantArgs: []any{"ana", 1, 2},
		},
		{
			name:    "spatialite placeholders",
			dialect: sqlfrag.SpatiaLite{},
			build: func(q output.SelectBuilder) output.SelectBuilder {
				return q.Column("id").Where("id", 7).WhereIn("kind", []any{"a", "b"})
			},
			wantSQL:  `SELECT "id" FROM "parcels" WHERE "id" = ? AND "kind" IN (?, ?)`,
			wantArgs: []any{7, "a", "b"},
		},
		{
			name:    "empty membership matches nothing",
			dialect: sqlfrag.PostGIS{},
			build: func(q output.SelectBuilder) output.SelectBuilder {
				return q.Column("id").WhereIn("id", nil)
			},
			wantSQL: `SELECT "id" FROM "parcels" WHERE 1 = 0`,
		},
		{
			name:    "quoted identifiers",
			dialect: sqlfrag.PostGIS{},
			build: func(q output.SelectBuilder) output.SelectBuilder {
				return q.ColumnAs(`x" FROM secrets --`, "x")
			},
			wantSQL: `SELECT "x"" FROM secrets --" AS "x" FROM "parcels"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(tt.dialect)
			q := tt.build(db.From("parcels")).(*selectBuilder)

			if got := q.SQL(); got != tt.wantSQL {
				t.Errorf("SQL() =\n%s\nwant\n%s", got, tt.wantSQL)
			}
			if len(q.args) != 0 || len(tt.wantArgs) != 0 {
				if !reflect.DeepEqual(q.args, tt.wantArgs) {
					t.Errorf("args = %v, want %v", q.args, tt.wantArgs)
				}
			}
		})
	}
}

func TestSelectBuilderFirstLimit(t *testing.T) {
	q := newTestDB(sqlfrag.PostGIS{}).From("parcels").(*selectBuilder)
	q.limit = 1

	if got, want := q.SQL(), `SELECT * FROM "parcels" LIMIT 1`; got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestBindGeometryValue(t *testing.T) {
	tests := []struct {
		name    string
		dialect sqlfrag.Dialect
		value   any
		want    string
		wantArg any
	}{
		{"plain postgis", sqlfrag.PostGIS{}, 5, "$2", 5},
		{"plain spatialite", sqlfrag.SpatiaLite{}, 5, "?", 5},
		{
			name:    "geometry with srid",
			dialect: sqlfrag.PostGIS{},
			value:   output.GeometryValue{WKT: "POINT(1 2)", SRID: 3346},
			want:    "ST_GeomFromText($2, 3346)",
			wantArg: "POINT(1 2)",
		},
		{
			name:    "geometry without srid",
			dialect: sqlfrag.SpatiaLite{},
			value:   output.GeometryValue{WKT: "POINT(1 2)"},
			want:    "ST_GeomFromText(?)",
			wantArg: "POINT(1 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(tt.dialect)
			param, args := db.bind(tt.value, []any{"first"})
			if param != tt.want {
				t.Errorf("param = %q, want %q", param, tt.want)
			}
			if len(args) != 2 || args[1] != tt.wantArg {
				t.Errorf("args = %v, want second arg %v", args, tt.wantArg)
			}
		})
	}
}

func TestSpatiaLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/data/parcels.sqlite", "file:/data/parcels.sqlite?cache=shared"},
		{"file:test.db?mode=memory", "file:test.db?mode=memory"},
		{":memory:", ":memory:"},
	}
	for _, tt := range tests {
		if got := spatiaLiteDSN(tt.in); got != tt.want {
			t.Errorf("spatiaLiteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpatiaLiteLibraryPaths(t *testing.T) {
	t.Setenv("SPATIALITE_LIBRARY_PATH", "/opt/lib/mod_spatialite.so")

	paths := spatiaLiteLibraryPaths()
	if len(paths) != 1 || paths[0] != "/opt/lib/mod_spatialite.so" {
		t.Errorf("paths = %v, want only the configured library", paths)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(output.Row{"b": 1, "a": 2, "c": 3})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("sortedKeys() = %v", got)
	}
}

// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
)

// Row is one result row keyed by column name or alias.
type Row map[string]any

// GeometryValue is a geometry written as well-known text. Adapters store it
// through the engine's text constructor, tagged with SRID when non-zero.
type GeometryValue struct {
	WKT  string
	SRID int
}

// Database defines the secondary port for the record store.
type Database interface {
	// Dialect returns the name of the spatial SQL dialect spoken by the store.
	Dialect() string

	// From starts a select on the given table.
	From(table string) SelectBuilder

	// SelectRaw runs a single-row select of a raw projection without a table.
	SelectRaw(ctx context.Context, projection string) (Row, error)

	// Insert inserts one record and returns the value of the returning column.
	Insert(ctx context.Context, table string, values Row, returning string) (any, error)

	// Update updates the record whose key column equals id.
	Update(ctx context.Context, table, keyColumn string, id any, values Row) (int64, error)

	// Ping checks the connection to the store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

// SelectBuilder builds and executes one select statement. Raw fragments are
// spliced verbatim; values passed to Where and WhereIn are bound as parameters.
type SelectBuilder interface {
	// Column selects plain columns.
	Column(names ...string) SelectBuilder

	// ColumnAs selects a column under an alias.
	ColumnAs(column, alias string) SelectBuilder

	// Raw selects a raw SQL projection.
	Raw(expr string) SelectBuilder

	// Where adds an equality condition.
	Where(column string, value any) SelectBuilder

	// WhereIn adds a membership condition.
	WhereIn(column string, values []any) SelectBuilder

	// WhereRaw adds a raw SQL condition.
	WhereRaw(sql string) SelectBuilder

	// All executes the statement and returns every row.
	All(ctx context.Context) ([]Row, error)

	// First executes the statement and returns the first row, or
	// domain.ErrNoRows when there is none.
	First(ctx context.Context) (Row, error)
}

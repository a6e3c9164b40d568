package sqldb

import (
	"context"
	"strings"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// selectBuilder implements output.SelectBuilder. Identifiers are quoted,
// values are bound and raw fragments are spliced as given.
type selectBuilder struct {
	db         *DB
	table      string
	projection []string
	conditions []string
	args       []any
	limit      int
}

// Column implements output.SelectBuilder.
func (q *selectBuilder) Column(names ...string) output.SelectBuilder {
	for _, name := range names {
		q.projection = append(q.projection, sqlfrag.Ident(name))
	}
	return q
}

// ColumnAs implements output.SelectBuilder.
func (q *selectBuilder) ColumnAs(column, alias string) output.SelectBuilder {
	q.projection = append(q.projection, sqlfrag.Ident(column)+" AS "+sqlfrag.Ident(alias))
	return q
}

// Raw implements output.SelectBuilder.
func (q *selectBuilder) Raw(expr string) output.SelectBuilder {
	q.projection = append(q.projection, expr)
	return q
}

// Where implements output.SelectBuilder.
func (q *selectBuilder) Where(column string, value any) output.SelectBuilder {
	q.args = append(q.args, value)
	q.conditions = append(q.conditions, sqlfrag.Ident(column)+" = "+q.db.placeholder(len(q.args)))
	return q
}

// WhereIn implements output.SelectBuilder. An empty list matches nothing.
func (q *selectBuilder) WhereIn(column string, values []any) output.SelectBuilder {
	if len(values) == 0 {
		q.conditions = append(q.conditions, "1 = 0")
		return q
	}
	params := make([]string, len(values))
	for i, v := range values {
		q.args = append(q.args, v)
		params[i] = q.db.placeholder(len(q.args))
	}
	q.conditions = append(q.conditions, sqlfrag.Ident(column)+" IN ("+strings.Join(params, ", ")+")")
	return q
}

// WhereRaw implements output.SelectBuilder.
func (q *selectBuilder) WhereRaw(sql string) output.SelectBuilder {
	q.conditions = append(q.conditions, "("+sql+")")
	return q
}

// All implements output.SelectBuilder.
func (q *selectBuilder) All(ctx context.Context) ([]output.Row, error) {
	return q.db.query(ctx, q.SQL(), q.args...)
}

// First implements output.SelectBuilder.
func (q *selectBuilder) First(ctx context.Context) (output.Row, error) {
	q.limit = 1
	rows, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoRows
	}
	return rows[0], nil
}

// SQL returns the statement text.
func (q *selectBuilder) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(q.projection) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.projection, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(sqlfrag.Ident(q.table))
	if len(q.conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conditions, " AND "))
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT 1")
	}
	return b.String()
}

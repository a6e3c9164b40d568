package application

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockDatabase implements output.Database for testing. Selects are recorded
// and answered by rows.
type mockDatabase struct {
	mu sync.Mutex

	rows     func(q *mockSelect) ([]output.Row, error)
	rawRow   output.Row
	rawErr   error
	pingErr  error
	insertID any
	updated  int64
	selects  []*mockSelect
	raws     []string
	inserts  []output.Row
	updates  []output.Row
}

func (m *mockDatabase) Dialect() string { return "postgis" }

func (m *mockDatabase) From(table string) output.SelectBuilder {
	q := &mockSelect{db: m, table: table, where: map[string]any{}, whereIn: map[string][]any{}}
	m.mu.Lock()
	m.selects = append(m.selects, q)
	m.mu.Unlock()
	return q
}

func (m *mockDatabase) SelectRaw(_ context.Context, projection string) (output.Row, error) {
	m.mu.Lock()
	m.raws = append(m.raws, projection)
	m.mu.Unlock()
	if m.rawErr != nil {
		return nil, m.rawErr
	}
	return m.rawRow, nil
}

func (m *mockDatabase) Insert(_ context.Context, _ string, values output.Row, _ string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts = append(m.inserts, values)
	return m.insertID, nil
}

func (m *mockDatabase) Update(_ context.Context, _, _ string, _ any, values output.Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, values)
	return m.updated, nil
}

func (m *mockDatabase) Ping(_ context.Context) error { return m.pingErr }

func (m *mockDatabase) Close() error { return nil }

func (m *mockDatabase) lastSelect() *mockSelect {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.selects) == 0 {
		return nil
	}
	return m.selects[len(m.selects)-1]
}

// mockSelect implements output.SelectBuilder and records the statement.
type mockSelect struct {
	db        *mockDatabase
	table     string
	columns   []string
	raws      []string
	where     map[string]any
	whereIn   map[string][]any
	whereRaws []string
}

func (q *mockSelect) Column(names ...string) output.SelectBuilder {
	q.columns = append(q.columns, names...)
	return q
}

func (q *mockSelect) ColumnAs(column, alias string) output.SelectBuilder {
	q.columns = append(q.columns, column+" as "+alias)
	return q
}

func (q *mockSelect) Raw(expr string) output.SelectBuilder {
	q.raws = append(q.raws, expr)
	return q
}

func (q *mockSelect) Where(column string, value any) output.SelectBuilder {
	q.where[column] = value
	return q
}

func (q *mockSelect) WhereIn(column string, values []any) output.SelectBuilder {
	q.whereIn[column] = values
	return q
}

func (q *mockSelect) WhereRaw(sql string) output.SelectBuilder {
	q.whereRaws = append(q.whereRaws, sql)
	return q
}

func (q *mockSelect) All(_ context.Context) ([]output.Row, error) {
	if q.db.rows == nil {
		return nil, nil
	}
	return q.db.rows(q)
}

func (q *mockSelect) First(ctx context.Context) (output.Row, error) {
	rows, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoRows
	}
	return rows[0], nil
}

// mockMetrics records metric calls for testing.
type mockMetrics struct {
	output.NoOpMetrics
	mu          sync.Mutex
	cacheHits   int
	cacheMisses int
	failures    map[string]int
	rewrites    map[string]bool
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{failures: map[string]int{}, rewrites: map[string]bool{}}
}

func (m *mockMetrics) IncNormalizeCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *mockMetrics) IncValidationFailures(service, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[service+"."+field]++
}

func (m *mockMetrics) IncFilterRewrites(service, field string, applied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewrites[service+"."+field] = applied
}

// Package sqldb provides the database/sql record store for PostGIS and
// SpatiaLite.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ambrazasp/geofields/internal/domain"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// Config holds the connection settings.
type Config struct {
	Driver          string        // postgis or spatialite
	DSN             string        // Connection string or SQLite file path
	MaxOpenConns    int           // Zero keeps the database/sql default
	MaxIdleConns    int           // Zero keeps the database/sql default
	ConnMaxLifetime time.Duration // Zero keeps connections forever
}

// DB implements the output.Database port on database/sql.
type DB struct {
	db      *sql.DB
	dialect sqlfrag.Dialect
	builder sqlfrag.Builder
	logger  *slog.Logger
}

var _ output.Database = (*DB)(nil)

// Open connects to the configured database and verifies that its spatial
// extension is available.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	dialect, err := sqlfrag.DialectByName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	driver, dsn := postgresDriver, cfg.DSN
	if dialect.Name() == sqlfrag.DialectSpatiaLite {
		driver, dsn = spatiaLiteDriver, spatiaLiteDSN(cfg.DSN)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dialect.Name(), err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseUnavailable, err)
	}

	check := checkPostGIS
	if dialect.Name() == sqlfrag.DialectSpatiaLite {
		check = checkSpatiaLite
	}
	version, err := check(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("database connected", "dialect", dialect.Name(), "spatial_version", version)
	return New(db, dialect, logger), nil
}

// New wraps an open connection pool.
func New(db *sql.DB, dialect sqlfrag.Dialect, logger *slog.Logger) *DB {
	return &DB{
		db:      db,
		dialect: dialect,
		builder: sqlfrag.NewBuilder(dialect),
		logger:  logger,
	}
}

// Dialect implements output.Database.
func (d *DB) Dialect() string {
	return d.dialect.Name()
}

// Builder returns a fragment builder for the connected dialect.
func (d *DB) Builder() sqlfrag.Builder {
	return d.builder
}

// From implements output.Database.
func (d *DB) From(table string) output.SelectBuilder {
	return &selectBuilder{db: d, table: table}
}

// SelectRaw implements output.Database.
func (d *DB) SelectRaw(ctx context.Context, projection string) (output.Row, error) {
	rows, err := d.query(ctx, "SELECT "+projection)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoRows
	}
	return rows[0], nil
}

// Insert implements output.Database.
func (d *DB) Insert(ctx context.Context, table string, values output.Row, returning string) (any, error) {
	columns := sortedKeys(values)
	names := make([]string, len(columns))
	params := make([]string, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		names[i] = sqlfrag.Ident(col)
		var param string
		param, args = d.bind(values[col], args)
		params[i] = param
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlfrag.Ident(table), strings.Join(names, ", "), strings.Join(params, ", "))
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", sqlfrag.Ident(table))
	}
	if returning == "" {
		return nil, d.exec(ctx, query, args...)
	}

	rows, err := d.query(ctx, query+" RETURNING "+sqlfrag.Ident(returning), args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoRows
	}
	return rows[0][returning], nil
}

// Update implements output.Database.
func (d *DB) Update(ctx context.Context, table, keyColumn string, id any, values output.Row) (int64, error) {
	columns := sortedKeys(values)
	if len(columns) == 0 {
		return 0, nil
	}

	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		var param string
		param, args = d.bind(values[col], args)
		sets[i] = sqlfrag.Ident(col) + " = " + param
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		sqlfrag.Ident(table), strings.Join(sets, ", "), sqlfrag.Ident(keyColumn), d.placeholder(len(args)))

	start := time.Now()
	res, err := d.db.ExecContext(ctx, query, args...)
	d.logQuery(query, start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Exec runs a statement without results.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	return d.exec(ctx, query, args...)
}

// Ping implements output.Database.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDatabaseUnavailable, err)
	}
	return nil
}

// Close implements output.Database.
func (d *DB) Close() error {
	return d.db.Close()
}

// bind appends the argument of v and returns its parameter expression.
// Geometry values go through the text constructor.
func (d *DB) bind(v any, args []any) (string, []any) {
	if g, ok := v.(output.GeometryValue); ok {
		args = append(args, g.WKT)
		return d.builder.GeomFromText(d.placeholder(len(args)), g.SRID), args
	}
	args = append(args, v)
	return d.placeholder(len(args)), args
}

// placeholder returns the n-th (1-based) bind parameter.
func (d *DB) placeholder(n int) string {
	if d.dialect.Name() == sqlfrag.DialectPostGIS {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d *DB) exec(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	_, err := d.db.ExecContext(ctx, query, args...)
	d.logQuery(query, start, err)
	return err
}

func (d *DB) query(ctx context.Context, query string, args ...any) ([]output.Row, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		d.logQuery(query, start, err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result, err := scanRows(rows)
	d.logQuery(query, start, err)
	return result, err
}

func (d *DB) logQuery(query string, start time.Time, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("query failed", "sql", query, "error", err)
		return
	}
	d.logger.Debug("query executed", "sql", query, "duration_ms", time.Since(start).Milliseconds())
}

// scanRows reads every row into a column-keyed map.
func scanRows(rows *sql.Rows) ([]output.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []output.Row
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(output.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func sortedKeys(r output.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

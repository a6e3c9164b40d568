package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// postgresDriver is the database/sql driver name registered by pgx.
const postgresDriver = "pgx"

// checkPostGIS verifies that the PostGIS extension is installed.
func checkPostGIS(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT PostGIS_Lib_Version()").Scan(&version); err != nil {
		return "", fmt.Errorf("PostGIS extension not available: %w", err)
	}
	return version, nil
}

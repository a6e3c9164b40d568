package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// spatiaLiteDriver is the database/sql driver name of SQLite with SpatiaLite loaded.
const spatiaLiteDriver = "sqlite3_with_extensions"

// Ensure sqlite3 driver is registered with extension support.
func init() {
	sql.Register(spatiaLiteDriver, &sqlite3.SQLiteDriver{
		Extensions: spatiaLiteLibraryPaths(),
	})
}

// spatiaLiteLibraryPaths returns a list of paths to try for loading SpatiaLite.
// The environment variable wins; otherwise platform-specific paths are tried.
func spatiaLiteLibraryPaths() []string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine Linux (Docker containers)
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",

		// Debian/Ubuntu amd64
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so.8",

		// Debian/Ubuntu arm64
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so.8",

		// macOS Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",

		// Generic names (let the system find them via LD_LIBRARY_PATH)
		"mod_spatialite.so",
		"mod_spatialite",
		"mod_spatialite.dylib",
	}
}

// spatiaLiteDSN turns a plain file path into a SQLite URI. URIs and the
// in-memory database are returned unchanged.
func spatiaLiteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		return dsn
	}
	return fmt.Sprintf("file:%s?cache=shared", dsn)
}

// checkSpatiaLite verifies that the SpatiaLite extension is loaded.
// The extension is loaded automatically by the sqlite3_with_extensions driver.
func checkSpatiaLite(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version); err != nil {
		return "", fmt.Errorf("SpatiaLite extension not available: %w", err)
	}
	return version, nil
}

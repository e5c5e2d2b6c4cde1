//go:build integration

package shared

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	postgresqlbootstrap "depositwatch/internal/adapters/outbound/persistence/postgresql/bootstrap"

	"github.com/rs/zerolog"
)

// OpenMigratedDatabase resets the app schema of TEST_DATABASE_URL, applies
// migrations and returns a pool closed at test cleanup.
func OpenMigratedDatabase(t *testing.T) *sql.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("set TEST_DATABASE_URL to run integration tests")
	}
	assertSafeIntegrationDatabaseURL(t, databaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resetDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		t.Fatalf("failed to open db for reset: %v", err)
	}
	if _, err := resetDB.ExecContext(ctx, `
DROP SCHEMA IF EXISTS app CASCADE;
DROP TABLE IF EXISTS schema_migrations;
`); err != nil {
		_ = resetDB.Close()
		t.Fatalf("failed to reset migration state: %v", err)
	}
	_ = resetDB.Close()

	gateway := postgresqlbootstrap.NewGateway(databaseURL, "integration-target", migrationsPath(t), zerolog.Nop())
	if appErr := gateway.CheckReadiness(ctx); appErr != nil {
		t.Fatalf("expected readiness success, got %+v", appErr)
	}
	if appErr := gateway.RunMigrations(ctx); appErr != nil {
		t.Fatalf("expected migration success, got %+v", appErr)
	}

	db, err := NewDatabasePool(databaseURL, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open database pool: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func migrationsPath(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("failed to resolve current file path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "migrations"))
}

func assertSafeIntegrationDatabaseURL(t *testing.T, databaseURL string) {
	t.Helper()

	parsed, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("invalid TEST_DATABASE_URL: %v", err)
	}

	host := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	dbName := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(parsed.Path), "/"))
	hostAllowed := host == "localhost" || host == "127.0.0.1" || host == "postgres"
	dbAllowed := dbName == "depositwatch" || strings.Contains(dbName, "test")

	if !hostAllowed || !dbAllowed {
		t.Fatalf("unsafe TEST_DATABASE_URL for destructive integration reset: host=%q db=%q", host, dbName)
	}
}

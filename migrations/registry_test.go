package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	mailroom "github.com/goliatone/go-mailroom"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestDeliverySchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := mailroom.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_mailroom_delivery_schema.up.sql",
		"data/sql/migrations/00001_mailroom_delivery_schema.down.sql",
		"data/sql/migrations/sqlite/00001_mailroom_delivery_schema.up.sql",
		"data/sql/migrations/sqlite/00001_mailroom_delivery_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteDeliverySchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-delivery-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := mailroom.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"00001_mailroom_delivery_schema.up.sql",
	); err != nil {
		t.Fatalf("apply delivery schema migration up: %v", err)
	}

	requiredTables := []string{
		"delivery_records",
		"delivery_proxies",
	}
	for _, tableName := range requiredTables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	if _, err := db.ExecContext(
		context.Background(),
		`INSERT INTO delivery_records (id, email, validity, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"rec_migration_1",
		"person@example.com",
		"unknown",
		"pending",
		"2026-01-01T00:00:00Z",
		"2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert delivery record: %v", err)
	}

	var status string
	var validity string
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT status, validity FROM delivery_records WHERE id=?`,
		"rec_migration_1",
	).Scan(&status, &validity); err != nil {
		t.Fatalf("select delivery record: %v", err)
	}
	if status != "pending" || validity != "unknown" {
		t.Fatalf("unexpected defaults: status=%q validity=%q", status, validity)
	}

	if _, err := db.ExecContext(
		context.Background(),
		`INSERT INTO delivery_proxies (id, name, host, port, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"proxy_migration_1",
		"egress-a",
		"proxy.internal",
		3128,
		1,
		"2026-01-01T00:00:00Z",
		"2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert delivery proxy: %v", err)
	}

	var indexCount int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`,
		"ix_delivery_records_status_validity",
	).Scan(&indexCount); err != nil {
		t.Fatalf("query status index after up: %v", err)
	}
	if indexCount != 1 {
		t.Fatalf("expected ix_delivery_records_status_validity after up migration")
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"00001_mailroom_delivery_schema.down.sql",
	); err != nil {
		t.Fatalf("apply delivery schema migration down: %v", err)
	}

	var tableCount int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN (?, ?)`,
		"delivery_records",
		"delivery_proxies",
	).Scan(&tableCount); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if tableCount != 0 {
		t.Fatalf("expected delivery tables to be dropped after down migration")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}

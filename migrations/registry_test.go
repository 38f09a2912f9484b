package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	bridge "github.com/goliatone/go-crm-bridge"
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

func TestRegister_DefaultSourceLabel(t *testing.T) {
	var label string
	_, err := Register(context.Background(), func(_ context.Context, _ string, sourceLabel string, _ fs.FS) error {
		label = sourceLabel
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if label != "go-crm-bridge" {
		t.Fatalf("expected go-crm-bridge source label, got %q", label)
	}
}

func TestListenerRegistrationsMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := bridge.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20250601000000_create_bridge_listener_registrations.up.sql",
		"data/sql/migrations/20250601000000_create_bridge_listener_registrations.down.sql",
		"data/sql/migrations/sqlite/20250601000000_create_bridge_listener_registrations.up.sql",
		"data/sql/migrations/sqlite/20250601000000_create_bridge_listener_registrations.down.sql",
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

func TestSQLiteMigrations_ApplyCleanly(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-test?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	for _, entry := range filesystems {
		if entry.Dialect != DialectSQLite {
			continue
		}
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob sqlite migrations: %v", globErr)
		}
		for _, name := range matches {
			content, readErr := fs.ReadFile(entry.FS, name)
			if readErr != nil {
				t.Fatalf("read %s: %v", name, readErr)
			}
			if _, execErr := db.Exec(string(content)); execErr != nil {
				t.Fatalf("apply %s: %v", name, execErr)
			}
		}
	}

	var tableName string
	err = db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"bridge_listener_registrations",
	).Scan(&tableName)
	if err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "bridge_listener_registrations" {
		t.Fatalf("expected bridge_listener_registrations table, got %q", tableName)
	}
}

package dataservice

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryLocator opens a private in-memory database
const MemoryLocator = ":memory:"

// openDB opens the SQLite database at locator, creating its parent directory,
// and runs the embedded migrations when migrate is set.
func openDB(locator string, migrate bool) (*sql.DB, error) {
	if locator != MemoryLocator {
		if err := os.MkdirAll(filepath.Dir(locator), 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", locator)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if migrate {
		goose.SetBaseFS(migrations)
		if err := goose.SetDialect("sqlite3"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set goose dialect: %w", err)
		}
		if err := goose.Up(db, "migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return db, nil
}

// schemaVersion returns the applied migration version, or 0 when the goose
// version table does not exist.
func schemaVersion(db *sql.DB) int64 {
	var version int64
	err := db.QueryRow("SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied = 1").Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// instanceID returns the persistent id of this database, creating one on first
// use. Without the metadata table a fresh id is returned and not stored.
func instanceID(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow("SELECT value FROM service_metadata WHERE key = 'instance_id'").Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		if _, err := db.Exec("INSERT INTO service_metadata (key, value) VALUES ('instance_id', ?)", id); err != nil {
			return "", fmt.Errorf("store instance id: %w", err)
		}
		return id, nil
	default:
		// metadata table missing: migrations were not applied
		return uuid.NewString(), nil
	}
}

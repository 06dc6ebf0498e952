package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 2

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createEventsTable(tx); err != nil {
			return err
		}
		if err := addProjectColumn(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// migrations[v] upgrades a database from version v to v+1.
var migrations = map[int]func(*sql.Tx) error{
	1: addProjectColumn,
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	return db.WithTx(func(tx *sql.Tx) error {
		if version == 0 {
			if err := createSchemaVersionTable(tx); err != nil {
				return err
			}
			if err := createEventsTable(tx); err != nil {
				return err
			}
			version = 1
		}
		for v := version; v < currentSchemaVersion; v++ {
			if err := migrations[v](tx); err != nil {
				return fmt.Errorf("migration %d -> %d: %w", v, v+1, err)
			}
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}
		db.logger.Info("Database schema migrated", "from", version, "to", currentSchemaVersion)
		return nil
	})
}

// getSchemaVersion returns the current schema version, 0 when unset
func (db *DB) getSchemaVersion() (int, error) {
	var exists int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createEventsTable creates the events table. id is the event ID, so a
// redelivered event is stored once.
func createEventsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			node_id TEXT NOT NULL,
			path TEXT NOT NULL,
			old_path TEXT,
			occurred_at INTEGER NOT NULL,
			contents BLOB,
			contents_size INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_path ON events(path)",
		"CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)",
		"CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at)",
	}
	for _, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// addProjectColumn records the owning project of each event.
func addProjectColumn(tx *sql.Tx) error {
	if _, err := tx.Exec("ALTER TABLE events ADD COLUMN project TEXT"); err != nil {
		return fmt.Errorf("failed to add project column: %w", err)
	}
	_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_events_project ON events(project)")
	return err
}

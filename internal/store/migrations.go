package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one schema step.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "sessions, rounds and trials",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "export digests",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
	{
		Version:     3,
		Description: "task column for flanker and stroop blocks",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    participant     TEXT NOT NULL,
    started_at      INTEGER NOT NULL,
    ended_at        INTEGER,
    final_n         INTEGER,
    protocol        TEXT,
    status          TEXT NOT NULL DEFAULT 'running'
);

CREATE INDEX IF NOT EXISTS idx_sessions_participant ON sessions(participant);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

CREATE TABLE IF NOT EXISTS rounds (
    session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    round           INTEGER NOT NULL,
    n               INTEGER NOT NULL,
    next_n          INTEGER NOT NULL,
    trials          INTEGER NOT NULL,
    visual_accuracy REAL NOT NULL,
    audio_accuracy  REAL NOT NULL,
    stats           TEXT NOT NULL,
    started_at      INTEGER NOT NULL,
    ended_at        INTEGER NOT NULL,
    PRIMARY KEY (session_id, round)
);

CREATE TABLE IF NOT EXISTS trials (
    session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    round           INTEGER NOT NULL,
    trial_index     INTEGER NOT NULL,
    n               INTEGER NOT NULL,
    visual_target   INTEGER NOT NULL,
    audio_target    INTEGER NOT NULL,
    visual_correct  INTEGER NOT NULL,
    audio_correct   INTEGER NOT NULL,
    visual_rt       REAL NOT NULL,
    audio_rt        REAL NOT NULL,
    visual_outcome  TEXT NOT NULL,
    audio_outcome   TEXT NOT NULL,
    visual_valence  TEXT NOT NULL,
    audio_valence   TEXT NOT NULL,
    PRIMARY KEY (session_id, round, trial_index)
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS trials;
DROP TABLE IF EXISTS rounds;
DROP INDEX IF EXISTS idx_sessions_started;
DROP INDEX IF EXISTS idx_sessions_participant;
DROP TABLE IF EXISTS sessions;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS exports (
    path            TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    kind            TEXT NOT NULL,
    digest          TEXT NOT NULL,
    size            INTEGER NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exports_session ON exports(session_id);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_exports_session;
DROP TABLE IF EXISTS exports;
`

const migrationV3Up = `
ALTER TABLE sessions ADD COLUMN task TEXT NOT NULL DEFAULT 'nback';
CREATE INDEX IF NOT EXISTS idx_sessions_task ON sessions(task);
`

const migrationV3Down = `
DROP INDEX IF EXISTS idx_sessions_task;
ALTER TABLE sessions DROP COLUMN task;
`

// MigrateDB applies every pending migration.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(db, m.Version, m.Description, m.Up, true); err != nil {
			return err
		}
	}
	return nil
}

// RollbackMigration reverts the last applied migration.
func RollbackMigration(db *sql.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}
	for _, m := range migrations {
		if m.Version == current {
			return apply(db, m.Version, m.Description, m.Down, false)
		}
	}
	return fmt.Errorf("migration %d not found", current)
}

// SchemaVersion returns the highest applied migration, 0 for a fresh
// database.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

func apply(db *sql.DB, version int, desc, script string, up bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", version, desc, err)
	}
	if up {
		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			version, time.Now().UnixNano(), desc,
		)
	} else {
		_, err = tx.Exec("DELETE FROM schema_migrations WHERE version = ?", version)
	}
	if err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}

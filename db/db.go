package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS control_state (
	device_id TEXT PRIMARY KEY,
	manual_pause_until TEXT,
	user_powered_off BOOLEAN NOT NULL DEFAULT FALSE,
	last_signature TEXT NOT NULL DEFAULT '',
	last_command_at TEXT,
	running_mean REAL
);

CREATE TABLE IF NOT EXISTS outdoor_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	taken TEXT NOT NULL,
	temp REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outdoor_history_device_taken
	ON outdoor_history (device_id, taken);
`

// Open opens the sqlite database at path and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Database opened")
	return conn, nil
}

package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS phase_states (
		user_id            TEXT NOT NULL,
		project_id         TEXT NOT NULL,
		phase              TEXT NOT NULL,
		last_contributed   INTEGER NOT NULL,
		messages_past_week INTEGER NOT NULL DEFAULT 0,
		is_override        INTEGER NOT NULL DEFAULT 0,
		updated_at         INTEGER NOT NULL,
		PRIMARY KEY (user_id, project_id)
	);

	CREATE INDEX IF NOT EXISTS idx_states_user ON phase_states(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL DEFAULT '',
		channel          TEXT NOT NULL DEFAULT '',
		thread_id        TEXT,
		sender           TEXT NOT NULL,
		text             TEXT NOT NULL,
		ts               INTEGER NOT NULL,
		mentions         TEXT NOT NULL DEFAULT '[]',
		is_dm            INTEGER NOT NULL DEFAULT 0,
		is_urgent        INTEGER NOT NULL DEFAULT 0,
		is_blocker       INTEGER NOT NULL DEFAULT 0,
		ingested_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts);
	CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, ts);

	CREATE TABLE IF NOT EXISTS digests (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		generated_at INTEGER NOT NULL,
		payload      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_digests_user ON digests(user_id, generated_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil // already at v2+
	}

	schema := `
	CREATE TABLE IF NOT EXISTS run_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      TEXT NOT NULL,
		digest_id    TEXT,
		status       TEXT NOT NULL,
		detail       TEXT,
		started_at   INTEGER NOT NULL,
		finished_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runlog_user ON run_log(user_id, finished_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

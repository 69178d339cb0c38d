package sqlstore

import (
	"context"
	"fmt"
)

// The two schemas differ only in column types: SQLite uses INTEGER
// PRIMARY KEY AUTOINCREMENT and DATETIME, PostgreSQL uses BIGSERIAL and
// TIMESTAMPTZ. CREATE ... IF NOT EXISTS keeps migrate idempotent.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		name          TEXT NOT NULL,
		avatar_url    TEXT NOT NULL DEFAULT '',
		total_points  INTEGER NOT NULL DEFAULT 0,
		github_id     INTEGER UNIQUE,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		subject     TEXT NOT NULL,
		creator_id  INTEGER NOT NULL REFERENCES accounts(id),
		start_date  DATETIME NOT NULL,
		end_date    DATETIME,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenges_active ON challenges(is_active, created_at)`,
	`CREATE TABLE IF NOT EXISTS participants (
		challenge_id INTEGER NOT NULL REFERENCES challenges(id),
		account_id   INTEGER NOT NULL REFERENCES accounts(id),
		total_points INTEGER NOT NULL DEFAULT 0,
		joined_at    DATETIME NOT NULL,
		PRIMARY KEY (challenge_id, account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_account ON participants(account_id)`,
	`CREATE TABLE IF NOT EXISTS study_sessions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id       INTEGER NOT NULL REFERENCES accounts(id),
		duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
		subject          TEXT NOT NULL DEFAULT '',
		notes            TEXT NOT NULL DEFAULT '',
		points_earned    INTEGER NOT NULL,
		created_at       DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_account_created ON study_sessions(account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS session_credits (
		session_id   INTEGER NOT NULL REFERENCES study_sessions(id) ON DELETE CASCADE,
		challenge_id INTEGER NOT NULL,
		account_id   INTEGER NOT NULL,
		points       INTEGER NOT NULL,
		PRIMARY KEY (session_id, challenge_id),
		FOREIGN KEY (challenge_id, account_id) REFERENCES participants(challenge_id, account_id)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		name          TEXT NOT NULL,
		avatar_url    TEXT NOT NULL DEFAULT '',
		total_points  BIGINT NOT NULL DEFAULT 0,
		github_id     BIGINT UNIQUE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		subject     TEXT NOT NULL,
		creator_id  BIGINT NOT NULL REFERENCES accounts(id),
		start_date  TIMESTAMPTZ NOT NULL,
		end_date    TIMESTAMPTZ,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_challenges_active ON challenges(is_active, created_at)`,
	`CREATE TABLE IF NOT EXISTS participants (
		challenge_id BIGINT NOT NULL REFERENCES challenges(id),
		account_id   BIGINT NOT NULL REFERENCES accounts(id),
		total_points BIGINT NOT NULL DEFAULT 0,
		joined_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (challenge_id, account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_account ON participants(account_id)`,
	`CREATE TABLE IF NOT EXISTS study_sessions (
		id               BIGSERIAL PRIMARY KEY,
		account_id       BIGINT NOT NULL REFERENCES accounts(id),
		duration_seconds BIGINT NOT NULL CHECK (duration_seconds > 0),
		subject          TEXT NOT NULL DEFAULT '',
		notes            TEXT NOT NULL DEFAULT '',
		points_earned    BIGINT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_account_created ON study_sessions(account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS session_credits (
		session_id   BIGINT NOT NULL REFERENCES study_sessions(id) ON DELETE CASCADE,
		challenge_id BIGINT NOT NULL,
		account_id   BIGINT NOT NULL,
		points       BIGINT NOT NULL,
		PRIMARY KEY (session_id, challenge_id),
		FOREIGN KEY (challenge_id, account_id) REFERENCES participants(challenge_id, account_id)
	)`,
}

// migrate creates the schema for the connected backend.
func (s *Store) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.isPostgres() {
		schema = postgresSchema
	}

	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Package store provides SQLite persistence for conversations, messages,
// and the exercise catalog.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record does not exist or is not owned by
// the requesting user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
}

// New opens (creating if necessary) the database at dbPath and runs
// migrations. Use ":memory:" for an ephemeral database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &Store{conn: conn}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS exercises (
			id TEXT PRIMARY KEY,
			trainer_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT DEFAULT '',
			muscle_group TEXT DEFAULT '',
			description TEXT DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS training_plans (
			id TEXT PRIMARY KEY,
			trainer_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS plan_exercises (
			plan_id TEXT NOT NULL,
			exercise_id TEXT NOT NULL,
			PRIMARY KEY(plan_id, exercise_id),
			FOREIGN KEY(plan_id) REFERENCES training_plans(id) ON DELETE CASCADE,
			FOREIGN KEY(exercise_id) REFERENCES exercises(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS plan_assignments (
			plan_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			PRIMARY KEY(plan_id, client_id),
			FOREIGN KEY(plan_id) REFERENCES training_plans(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_updated
			ON conversations(user_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_exercises_trainer ON exercises(trainer_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Import postgres driver
)

func Connect(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify the connection with a timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			fmt.Printf("failed to close database handle after ping error: %v\n", closeErr)
		}
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS games (
    id           TEXT PRIMARY KEY,
    scheduled_at TIMESTAMPTZ NOT NULL,
    state        TEXT NOT NULL DEFAULT 'WAITING'
                 CHECK (state IN ('WAITING', 'RUNNING', 'FINISHED')),
    winner_id    TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS players (
    id            TEXT PRIMARY KEY,
    game_id       TEXT NOT NULL REFERENCES games (id) ON DELETE CASCADE,
    user_id       TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'HOLDING'
                  CHECK (status IN ('HOLDING', 'ELIMINATED', 'WINNER')),
    joined_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    eliminated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_players_game_status ON players (game_id, status);
CREATE INDEX IF NOT EXISTS idx_games_state_scheduled ON games (state, scheduled_at);
`

// Migrate applies the idempotent schema. Player.id is the deterministic
// composite of (game_id, user_id), which is what makes joins upsert-safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

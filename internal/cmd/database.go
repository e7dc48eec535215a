package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/dbconfig"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS game_timer_snapshots (
	game_id    UUID PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// setupDatabase opens the bootstrap connection, verifies it, and ensures the
// snapshot schema exists.
func setupDatabase(cfg dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := database.Exec(snapshotSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ensure snapshot schema: %w", err)
	}

	log.Info().
		Str("user", cfg.User).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return database, nil
}

// setupPool opens the pgx pool used by the snapshot store hot path.
func setupPool(ctx context.Context, cfg dbconfig.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping connection pool: %w", err)
	}
	return pool, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/flipside/internal/timer"
	"github.com/sqlc-dev/pqtype"
)

// Postgres stores snapshots in the game_timer_snapshots table as JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const upsertSnapshot = `
INSERT INTO game_timer_snapshots (game_id, snapshot, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (game_id) DO UPDATE
SET snapshot = EXCLUDED.snapshot, updated_at = now()
`

func (p *Postgres) SaveSnapshot(ctx context.Context, gameID uuid.UUID, state *timer.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", gameID, err)
	}
	snapshot := pqtype.NullRawMessage{RawMessage: data, Valid: true}
	if _, err := p.pool.Exec(ctx, upsertSnapshot, gameID, snapshot); err != nil {
		return fmt.Errorf("upsert snapshot for %s: %w", gameID, err)
	}
	return nil
}

const selectSnapshot = `
SELECT snapshot FROM game_timer_snapshots WHERE game_id = $1
`

func (p *Postgres) LoadSnapshot(ctx context.Context, gameID uuid.UUID) (*timer.GameState, error) {
	var snapshot pqtype.NullRawMessage
	err := p.pool.QueryRow(ctx, selectSnapshot, gameID).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select snapshot for %s: %w", gameID, err)
	}
	if !snapshot.Valid {
		return nil, ErrNotFound
	}
	var state timer.GameState
	if err := json.Unmarshal(snapshot.RawMessage, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for %s: %w", gameID, err)
	}
	return &state, nil
}

const deleteSnapshot = `
DELETE FROM game_timer_snapshots WHERE game_id = $1
`

func (p *Postgres) DeleteSnapshot(ctx context.Context, gameID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, deleteSnapshot, gameID); err != nil {
		return fmt.Errorf("delete snapshot for %s: %w", gameID, err)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/flipside/internal/timer"
)

// Memory is an in-process Store used for tests and database-less runs.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID][]byte
	saves     int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[uuid.UUID][]byte)}
}

func (m *Memory) SaveSnapshot(ctx context.Context, gameID uuid.UUID, state *timer.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", gameID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[gameID] = data
	m.saves++
	return nil
}

// SaveCount reports how many snapshot writes have happened, which lets tests
// observe persistence throttling.
func (m *Memory) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *Memory) LoadSnapshot(ctx context.Context, gameID uuid.UUID) (*timer.GameState, error) {
	m.mu.RLock()
	data, ok := m.snapshots[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var state timer.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for %s: %w", gameID, err)
	}
	return &state, nil
}

func (m *Memory) DeleteSnapshot(ctx context.Context, gameID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, gameID)
	return nil
}

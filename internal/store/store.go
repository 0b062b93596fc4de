// Package store persists veto sessions keyed by session id. Every backend
// implements Update as a compare-and-swap on the session version so that two
// writers racing from the same base state cannot both succeed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/map-veto-backend/internal/config"
	"github.com/DoyleJ11/map-veto-backend/internal/engine"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrVersionConflict = errors.New("session was modified concurrently")
	ErrCorruptSession  = errors.New("stored session is corrupt")
)

type Store interface {
	Create(ctx context.Context, s engine.State) error
	Get(ctx context.Context, id string) (engine.State, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Update replaces the session only if its stored version is expectedVersion.
	Update(ctx context.Context, next engine.State, expectedVersion int) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the backend selected by cfg.StoreDriver.
func Open(cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Info("using in-memory session store")
		return NewMemory(), nil
	case config.StoreSQLite:
		return OpenSQLite(cfg.SQLitePath, log)
	case config.StorePostgres:
		return OpenPostgres(cfg.DatabaseURL, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func encodeState(s engine.State) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return b, nil
}

func decodeState(id string, data []byte) (engine.State, error) {
	var s engine.State
	if err := json.Unmarshal(data, &s); err != nil {
		return engine.State{}, fmt.Errorf("%w: %s: %v", ErrCorruptSession, id, err)
	}
	if s.ID != id {
		return engine.State{}, fmt.Errorf("%w: %s: document id %q", ErrCorruptSession, id, s.ID)
	}
	if err := engine.CheckInvariants(s); err != nil {
		return engine.State{}, fmt.Errorf("%w: %s: %v", ErrCorruptSession, id, err)
	}
	return s, nil
}

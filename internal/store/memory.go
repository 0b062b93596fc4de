package store

import (
	"context"
	"sync"

	"github.com/DoyleJ11/map-veto-backend/internal/engine"
)

// Memory keeps sessions in process. Data is lost on restart.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]engine.State
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]engine.State)}
}

func (m *Memory) Create(_ context.Context, s engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return engine.State{}, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *Memory) Update(_ context.Context, next engine.State, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[next.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.sessions[next.ID] = next.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) Close() error { return nil }

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/evelynmon/wabot/core/conversation"
	"github.com/evelynmon/wabot/core/logger"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]conversation.State
}

// NewMemoryStore constructs an in-memory Store whose lifetime is the process.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]conversation.State),
	}
}

// GetOrCreate returns the session for a sender, inserting a default one if none exists.
func (m *memoryStore) GetOrCreate(ctx context.Context, sender string) (conversation.State, error) {
	m.mu.RLock()
	st, ok := m.sessions[sender]
	m.mu.RUnlock()
	if ok {
		return st.Clone(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[sender]; ok {
		return st.Clone(), nil
	}
	st = conversation.NewState()
	m.sessions[sender] = st
	logger.Debug(ctx, "session", "session.created",
		slog.String("store", "memory"),
		slog.Int("count", len(m.sessions)),
	)
	return st.Clone(), nil
}

// Save replaces the stored session for a sender.
func (m *memoryStore) Save(_ context.Context, sender string, st conversation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sender] = st.Clone()
	return nil
}

// Delete removes the entire session for a sender.
func (m *memoryStore) Delete(_ context.Context, sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sender)
	return nil
}

// Snapshot copies every session under a read lock.
func (m *memoryStore) Snapshot(_ context.Context) (map[string]conversation.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]conversation.State, len(m.sessions))
	for sender, st := range m.sessions {
		out[sender] = st.Clone()
	}
	return out, nil
}

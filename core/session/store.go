package session

import (
	"context"

	"github.com/evelynmon/wabot/core/conversation"
)

// Store owns every conversation.State. Callers fetch, mutate their copy and
// commit it back within one request; no references are retained.
type Store interface {
	// GetOrCreate returns the sender's state, creating a default one if absent.
	GetOrCreate(ctx context.Context, sender string) (conversation.State, error)
	// Save commits st as the sender's current state.
	Save(ctx context.Context, sender string, st conversation.State) error
	// Delete removes the sender's state. Deleting a missing sender is not an error.
	Delete(ctx context.Context, sender string) error
	// Snapshot returns a copy of all stored states without mutating the store.
	Snapshot(ctx context.Context) (map[string]conversation.State, error)
}

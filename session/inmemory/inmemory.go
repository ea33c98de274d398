package inmemory

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/searchrag/models"
)

// Store keeps conversations in process memory. Contents are lost on restart.
type Store struct {
	sessions map[string][]models.Turn
	mu       sync.RWMutex
}

func NewInMemoryConversationStore() *Store {
	return &Store{sessions: make(map[string][]models.Turn)}
}

func (store *Store) Append(_ context.Context, id string, turns ...models.Turn) error {
	if id == "" {
		return models.ErrSessionRequired
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.sessions[id] = append(store.sessions[id], turns...)
	return nil
}

// Get returns a copy of the conversation; an unknown session is empty.
func (store *Store) Get(_ context.Context, id string) ([]models.Turn, error) {
	if id == "" {
		return nil, models.ErrSessionRequired
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	turns := store.sessions[id]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (store *Store) Clear(_ context.Context, id string) error {
	if id == "" {
		return models.ErrSessionRequired
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.sessions, id)
	return nil
}

func (store *Store) Close() error { return nil }

package thread

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Load when no snapshot exists for the
// article. The engine treats it as "start from the empty default".
var ErrNotFound = errors.New("not found")

// Store persists one ArticleState snapshot per article id. Implementations
// must return independent values from Load: the engine mutates what it
// loads before saving it back.
type Store interface {
	Load(ctx context.Context, articleID string) (*ArticleState, error)
	Save(ctx context.Context, articleID string, state *ArticleState) error
}

// InMemoryStore is a threadsafe in-memory store used for tests and for
// running without Postgres.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*ArticleState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]*ArticleState)}
}

func (s *InMemoryStore) Load(ctx context.Context, articleID string) (*ArticleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.states[articleID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneState(v), nil
}

func (s *InMemoryStore) Save(ctx context.Context, articleID string, state *ArticleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[articleID] = cloneState(state)
	return nil
}

package conversation

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Get when no record exists for the id.
var ErrNotFound = errors.New("conversation state not found")

// Store is the durable source of truth for conversation state. All writes
// happen inside the conversation's lock scope; implementations do not need
// their own cross-conversation transactional guarantees.
type Store interface {
	Get(ctx context.Context, conversationID string) (State, error)
	Put(ctx context.Context, state State) error
	Scan(ctx context.Context) ([]State, error)
	Delete(ctx context.Context, conversationID string) error
}

// MemoryStore is an in-process Store for tests and database-less runs.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (s *MemoryStore) Get(_ context.Context, conversationID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return State{}, ErrNotFound
	}
	return state, nil
}

func (s *MemoryStore) Put(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ConversationID] = state
	return nil
}

func (s *MemoryStore) Scan(_ context.Context) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, state)
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}

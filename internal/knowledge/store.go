package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// StaticStore loads the immutable knowledge-base entries.
type StaticStore interface {
	LoadAll(ctx context.Context) ([]Entry, error)
}

// LearnedStore is the durable append-only log of supervisor answers.
type LearnedStore interface {
	// Append records a new learned answer.
	Append(ctx context.Context, entry LearnedEntry) error
	// Scan returns every entry, expired ones included.
	Scan(ctx context.Context) ([]LearnedEntry, error)
	// MarkExpired flags all non-expired entries for the conversation whose
	// normalized question contains the normalized filter (empty filter
	// matches all) and returns the number of entries affected. Re-running
	// it over already-expired entries affects nothing.
	MarkExpired(ctx context.Context, conversationID, filter string, now time.Time) (int, error)
}

// FileStore reads static entries from a JSON file. A missing file yields an
// empty knowledge base rather than an error.
type FileStore struct {
	Path string
}

func (s FileStore) LoadAll(_ context.Context) ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode knowledge file %s: %w", s.Path, err)
	}
	return entries, nil
}

// MemoryLearnedStore is an in-process LearnedStore used in tests and in
// database-less deployments.
type MemoryLearnedStore struct {
	mu      sync.RWMutex
	entries []LearnedEntry
}

// NewMemoryLearnedStore creates an empty in-memory learned store.
func NewMemoryLearnedStore() *MemoryLearnedStore {
	return &MemoryLearnedStore{}
}

func (s *MemoryLearnedStore) Append(_ context.Context, entry LearnedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryLearnedStore) Scan(_ context.Context) ([]LearnedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LearnedEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryLearnedStore) MarkExpired(_ context.Context, conversationID, filter string, now time.Time) (int, error) {
	normFilter := Normalize(filter)
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.entries {
		e := &s.entries[i]
		if e.ConversationID != conversationID || e.IsExpired(now) {
			continue
		}
		if normFilter != "" && !strings.Contains(Normalize(e.Question), normFilter) {
			continue
		}
		e.Expired = true
		e.ExpiresAt = now.Add(-time.Millisecond)
		count++
	}
	return count, nil
}

package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreLoadAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.json")
	data := `[{"q":"horario","a":"De 9 a 18."},{"q":"envios","patterns":["\\benvio\\b"],"a":"A todo el país."}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	entries, err := FileStore{Path: path}.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].Patterns[0] != `\benvio\b` {
		t.Fatalf("pattern = %q", entries[1].Patterns[0])
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()

	entries, err := FileStore{Path: filepath.Join(t.TempDir(), "absent.json")}.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll on missing file: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected empty knowledge base, got %d entries", len(entries))
	}
}

func TestMemoryLearnedStoreMarkExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := seedLearned(t,
		LearnedEntry{ID: "1", ConversationID: "7", Question: "¿Cuánto cuesta el plan?", Answer: "a"},
		LearnedEntry{ID: "2", ConversationID: "7", Question: "cuanto cuesta el envio", Answer: "b"},
		LearnedEntry{ID: "3", ConversationID: "7", Question: "horario de atencion", Answer: "c"},
		LearnedEntry{ID: "4", ConversationID: "9", Question: "cuanto cuesta aca", Answer: "d"},
	)

	count, err := store.MarkExpired(ctx, "7", "cuánto cuesta", now)
	if err != nil {
		t.Fatalf("MarkExpired: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	entries, err := store.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, e := range entries {
		expired := e.ID == "1" || e.ID == "2"
		if e.IsExpired(now) != expired {
			t.Fatalf("entry %s expired=%v, want %v", e.ID, e.IsExpired(now), expired)
		}
	}

	// Re-running never double-counts.
	again, err := store.MarkExpired(ctx, "7", "cuánto cuesta", now)
	if err != nil {
		t.Fatalf("MarkExpired again: %v", err)
	}
	if again != 0 {
		t.Fatalf("second run count = %d, want 0", again)
	}
}

func TestMemoryLearnedStoreMarkExpiredEmptyFilter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := seedLearned(t,
		LearnedEntry{ID: "1", ConversationID: "7", Question: "a"},
		LearnedEntry{ID: "2", ConversationID: "7", Question: "b"},
	)

	count, err := store.MarkExpired(context.Background(), "7", "", now)
	if err != nil {
		t.Fatalf("MarkExpired: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

package knowledge

import (
	"time"
)

// Answer provenance values reported by the matcher.
const (
	SourceKB      = "kb"
	SourceLearned = "learned"
)

// EntrySourceSupervisor marks learned entries taught through the
// supervisor channel.
const EntrySourceSupervisor = "supervisor"

// Entry is one static knowledge-base record. Entries are immutable after
// load; Patterns are regex sources compiled once by the matcher.
type Entry struct {
	Question string   `json:"q"`
	Patterns []string `json:"patterns,omitempty"`
	Answer   string   `json:"a"`
}

// LearnedEntry is one supervisor-taught answer. The learned store is an
// append-only log: entries are never deleted, only marked expired or aged
// out by ExpiresAt, and are kept for audit after expiry.
type LearnedEntry struct {
	ID             string    `json:"id"`
	Question       string    `json:"q"`
	Answer         string    `json:"a"`
	ConversationID string    `json:"conv_id"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Expired        bool      `json:"expired"`
}

// IsExpired reports whether the entry is out of matching at the given
// instant. Once true for some time t, it is true for every later t: the
// Expired flag is never cleared and ExpiresAt never moves forward.
func (e LearnedEntry) IsExpired(now time.Time) bool {
	if e.Expired {
		return true
	}
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

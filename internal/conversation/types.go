// Package conversation holds the per-conversation bridge state: the record
// the orchestrator's state machine runs on, the durable store interface for
// it, and the per-conversation lock that serializes all mutations.
package conversation

import (
	"time"
)

// PendingQuestion is the customer question currently awaiting a supervisor
// answer. At most one exists per conversation; it is cleared once answered.
type PendingQuestion struct {
	Text    string    `json:"text"`
	AskedAt time.Time `json:"asked_at"`
}

// ShortcutFire records the last customer shortcut that fired, for
// cooldown and redelivery dedupe.
type ShortcutFire struct {
	Kind      string    `json:"kind"`
	FiredAt   time.Time `json:"fired_at"`
	DedupeKey string    `json:"dedupe_key"`
}

// State is one conversation's bridge record.
type State struct {
	ConversationID string `json:"conversation_id"`
	Muted          bool   `json:"muted"`
	Greeted        bool   `json:"greeted"`
	// SupervisorActive is sticky: set on first escalation or human-request
	// shortcut, never cleared here. While set, customer messages go through
	// the answer-or-ask path instead of the greeting.
	SupervisorActive bool             `json:"supervisor_active"`
	Pending          *PendingQuestion `json:"pending,omitempty"`
	// LastAnsweredAt opens the answer-collision window: supervisor replies
	// landing inside it are acknowledged but not learned or forwarded.
	LastAnsweredAt time.Time     `json:"last_answered_at"`
	LastShortcut   *ShortcutFire `json:"last_shortcut,omitempty"`
	LastTouch      time.Time     `json:"last_touch"`
}

// InWindow reports whether now falls inside the answer-collision window
// opened by the previous answer.
func (s State) InWindow(now time.Time, window time.Duration) bool {
	if s.LastAnsweredAt.IsZero() {
		return false
	}
	return now.Sub(s.LastAnsweredAt) < window
}

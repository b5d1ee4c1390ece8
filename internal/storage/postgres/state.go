// Package postgres provides the durable store implementations behind the
// bridge's abstract store interfaces.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskbridge/deskbridge/internal/conversation"
)

// StateStore persists conversation state, one row per conversation.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore on the given pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

const stateColumns = `conversation_id, muted, greeted, supervisor_active,
	pending_question, pending_asked_at, last_answered_at,
	shortcut_kind, shortcut_fired_at, shortcut_dedupe_key, last_touch`

func (s *StateStore) Get(ctx context.Context, conversationID string) (conversation.State, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM conversation_state WHERE conversation_id = $1`,
		conversationID)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.State{}, conversation.ErrNotFound
		}
		return conversation.State{}, fmt.Errorf("get conversation state: %w", err)
	}
	return st, nil
}

func (s *StateStore) Put(ctx context.Context, st conversation.State) error {
	var pendingText *string
	var pendingAt *time.Time
	if st.Pending != nil {
		pendingText = &st.Pending.Text
		pendingAt = &st.Pending.AskedAt
	}
	var answeredAt *time.Time
	if !st.LastAnsweredAt.IsZero() {
		answeredAt = &st.LastAnsweredAt
	}
	var shortcutKind, shortcutKey *string
	var shortcutAt *time.Time
	if st.LastShortcut != nil {
		shortcutKind = &st.LastShortcut.Kind
		shortcutAt = &st.LastShortcut.FiredAt
		shortcutKey = &st.LastShortcut.DedupeKey
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_state (`+stateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (conversation_id) DO UPDATE SET
			muted = EXCLUDED.muted,
			greeted = EXCLUDED.greeted,
			supervisor_active = EXCLUDED.supervisor_active,
			pending_question = EXCLUDED.pending_question,
			pending_asked_at = EXCLUDED.pending_asked_at,
			last_answered_at = EXCLUDED.last_answered_at,
			shortcut_kind = EXCLUDED.shortcut_kind,
			shortcut_fired_at = EXCLUDED.shortcut_fired_at,
			shortcut_dedupe_key = EXCLUDED.shortcut_dedupe_key,
			last_touch = EXCLUDED.last_touch`,
		st.ConversationID, st.Muted, st.Greeted, st.SupervisorActive,
		pendingText, pendingAt, answeredAt,
		shortcutKind, shortcutAt, shortcutKey, st.LastTouch)
	if err != nil {
		return fmt.Errorf("put conversation state: %w", err)
	}
	return nil
}

func (s *StateStore) Scan(ctx context.Context) ([]conversation.State, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+stateColumns+` FROM conversation_state`)
	if err != nil {
		return nil, fmt.Errorf("scan conversation state: %w", err)
	}
	defer rows.Close()
	var out []conversation.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *StateStore) Delete(ctx context.Context, conversationID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_state WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation state: %w", err)
	}
	return nil
}

func scanState(row pgx.Row) (conversation.State, error) {
	var st conversation.State
	var pendingText, shortcutKind, shortcutKey *string
	var pendingAt, answeredAt, shortcutAt *time.Time
	err := row.Scan(&st.ConversationID, &st.Muted, &st.Greeted, &st.SupervisorActive,
		&pendingText, &pendingAt, &answeredAt,
		&shortcutKind, &shortcutAt, &shortcutKey, &st.LastTouch)
	if err != nil {
		return conversation.State{}, err
	}
	if pendingText != nil {
		pending := conversation.PendingQuestion{Text: *pendingText}
		if pendingAt != nil {
			pending.AskedAt = *pendingAt
		}
		st.Pending = &pending
	}
	if answeredAt != nil {
		st.LastAnsweredAt = *answeredAt
	}
	if shortcutKind != nil {
		fire := conversation.ShortcutFire{Kind: *shortcutKind}
		if shortcutAt != nil {
			fire.FiredAt = *shortcutAt
		}
		if shortcutKey != nil {
			fire.DedupeKey = *shortcutKey
		}
		st.LastShortcut = &fire
	}
	return st, nil
}

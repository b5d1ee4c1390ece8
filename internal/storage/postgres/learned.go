package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskbridge/deskbridge/internal/knowledge"
)

// LearnedStore persists the append-only learned-answer log.
type LearnedStore struct {
	pool *pgxpool.Pool
}

// NewLearnedStore creates a LearnedStore on the given pool.
func NewLearnedStore(pool *pgxpool.Pool) *LearnedStore {
	return &LearnedStore{pool: pool}
}

func (s *LearnedStore) Append(ctx context.Context, entry knowledge.LearnedEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learned_answers
			(id, question, answer, conversation_id, source, created_at, expires_at, expired)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Question, entry.Answer, entry.ConversationID,
		entry.Source, entry.CreatedAt, entry.ExpiresAt, entry.Expired)
	if err != nil {
		return fmt.Errorf("append learned answer: %w", err)
	}
	return nil
}

func (s *LearnedStore) Scan(ctx context.Context) ([]knowledge.LearnedEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, question, answer, conversation_id, source, created_at, expires_at, expired
		FROM learned_answers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("scan learned answers: %w", err)
	}
	defer rows.Close()
	var out []knowledge.LearnedEntry
	for rows.Next() {
		var e knowledge.LearnedEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.ConversationID,
			&e.Source, &e.CreatedAt, &e.ExpiresAt, &e.Expired); err != nil {
			return nil, fmt.Errorf("scan learned answers: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkExpired selects the conversation's live entries, applies the
// normalized-substring filter in Go so filtering agrees exactly with the
// matcher's normalization, and flags the survivors expired in one update.
func (s *LearnedStore) MarkExpired(ctx context.Context, conversationID, filter string, now time.Time) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, question FROM learned_answers
		WHERE conversation_id = $1 AND expired = FALSE AND expires_at > $2`,
		conversationID, now)
	if err != nil {
		return 0, fmt.Errorf("select expirable: %w", err)
	}
	normFilter := knowledge.Normalize(filter)
	var ids []string
	for rows.Next() {
		var id, question string
		if err := rows.Scan(&id, &question); err != nil {
			rows.Close()
			return 0, fmt.Errorf("select expirable: %w", err)
		}
		if normFilter != "" && !strings.Contains(knowledge.Normalize(question), normFilter) {
			continue
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("select expirable: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE learned_answers SET expired = TRUE, expires_at = $2
		WHERE id = ANY($1)`,
		ids, now.Add(-time.Millisecond))
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

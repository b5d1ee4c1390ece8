package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskbridge/deskbridge/internal/knowledge"
)

// KnowledgeStore loads the static knowledge base from the database.
type KnowledgeStore struct {
	pool *pgxpool.Pool
}

// NewKnowledgeStore creates a KnowledgeStore on the given pool.
func NewKnowledgeStore(pool *pgxpool.Pool) *KnowledgeStore {
	return &KnowledgeStore{pool: pool}
}

func (s *KnowledgeStore) LoadAll(ctx context.Context) ([]knowledge.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT question, patterns, answer FROM knowledge_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load knowledge entries: %w", err)
	}
	defer rows.Close()
	var out []knowledge.Entry
	for rows.Next() {
		var e knowledge.Entry
		if err := rows.Scan(&e.Question, &e.Patterns, &e.Answer); err != nil {
			return nil, fmt.Errorf("load knowledge entries: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

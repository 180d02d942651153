package thread

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore keeps one JSONB snapshot row per article.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// EnsureSchema creates the snapshot table when it does not exist yet. Safe
// to call on every startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS article_states (
            article_id TEXT PRIMARY KEY,
            state      JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create article_states table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, articleID string) (*ArticleState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
        SELECT state FROM article_states WHERE article_id = $1
    `, articleID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article state: %w", err)
	}

	var state ArticleState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode article state: %w", err)
	}
	return &state, nil
}

func (s *PostgresStore) Save(ctx context.Context, articleID string, state *ArticleState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode article state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO article_states (article_id, state, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (article_id) DO UPDATE SET state = $2, updated_at = now()
    `, articleID, raw)
	if err != nil {
		return fmt.Errorf("failed to save article state: %w", err)
	}
	return nil
}

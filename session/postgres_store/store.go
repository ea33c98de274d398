package postgres_store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/searchrag/models"
)

// Store persists conversations in the conversation_turns table.
type Store struct {
	DB *sql.DB
}

// NewWithDSN opens and pings a Postgres connection. The schema comes from
// the migrations directory.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Append inserts all turns in one transaction so a pair is never split.
func (s *Store) Append(ctx context.Context, id string, turns ...models.Turn) error {
	if id == "" {
		return models.ErrSessionRequired
	}
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_turns (session_id, role, content) VALUES ($1,$2,$3)`,
			id, string(t.Role), t.Content,
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) ([]models.Turn, error) {
	if id == "" {
		return nil, models.ErrSessionRequired
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT role, content FROM conversation_turns WHERE session_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		turns = append(turns, models.Turn{Role: models.Role(role), Content: content})
	}
	return turns, rows.Err()
}

func (s *Store) Clear(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrSessionRequired
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id=$1`, id)
	return err
}

func (s *Store) Close() error { return s.DB.Close() }

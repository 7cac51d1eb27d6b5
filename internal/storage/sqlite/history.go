package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

// AddTodoHistory appends one history row. History is append-only: there is
// no update or delete path by design of the schema and this API.
func (s *Store) AddTodoHistory(ctx context.Context, h *types.TodoHistory) error {
	if h.TodoID == "" {
		return fmt.Errorf("todo_id is required")
	}
	if h.RecordedAt.IsZero() {
		h.RecordedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO todo_history (todo_id, updated_at, editor, recorded_at)
		VALUES (?, ?, ?, ?)`,
		h.TodoID, h.UpdatedAt, h.Editor, h.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		h.ID = id
	}
	return nil
}

// LatestTodoHistory returns the history row with the newest provider-reported
// update timestamp for a todo, or storage.ErrNotFound if none exists.
func (s *Store) LatestTodoHistory(ctx context.Context, todoID string) (*types.TodoHistory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, todo_id, updated_at, editor, recorded_at
		FROM todo_history WHERE todo_id = ?
		ORDER BY updated_at DESC, id DESC LIMIT 1`, todoID)

	var h types.TodoHistory
	err := row.Scan(&h.ID, &h.TodoID, &h.UpdatedAt, &h.Editor, &h.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return &h, nil
}

// CountTodoHistory returns the number of history rows for a todo.
func (s *Store) CountTodoHistory(ctx context.Context, todoID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM todo_history WHERE todo_id = ?`, todoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

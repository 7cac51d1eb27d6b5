package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

const todoColumns = `id, company_id, section_id, provider_key, provider_id, provider_url,
	title, assignees, deadline, created_at, updated_at, first_assigned_at, first_ddl_set_at,
	delayed_count, reminder_count, is_closed, closed_at, recovery_pending`

// CreateTodo inserts a new todo row.
func (s *Store) CreateTodo(ctx context.Context, todo *types.Todo) error {
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = time.Now()
	}
	if todo.UpdatedAt.IsZero() {
		todo.UpdatedAt = todo.CreatedAt
	}
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	assignees, err := json.Marshal(todo.Assignees)
	if err != nil {
		return fmt.Errorf("failed to marshal assignees: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		todo.ID, todo.CompanyID, todo.SectionID, todo.ProviderKey, todo.ProviderID,
		todo.ProviderURL, todo.Title, string(assignees), nullTime(todo.Deadline),
		todo.CreatedAt, todo.UpdatedAt, nullTime(todo.FirstAssignedAt),
		nullTime(todo.FirstDdlSetAt), todo.DelayedCount, todo.ReminderCount,
		boolInt(todo.IsClosed), nullTime(todo.ClosedAt), boolInt(todo.RecoveryPending))
	if err != nil {
		return fmt.Errorf("failed to create todo: %w", err)
	}
	return nil
}

// GetTodo retrieves one todo by internal id.
func (s *Store) GetTodo(ctx context.Context, id string) (*types.Todo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = ?`, id)
	return scanTodo(row)
}

// GetTodoByProviderID retrieves the todo imported from a specific provider item.
func (s *Store) GetTodoByProviderID(ctx context.Context, companyID, providerKey, providerID string) (*types.Todo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos
		 WHERE company_id = ? AND provider_key = ? AND provider_id = ?`,
		companyID, providerKey, providerID)
	return scanTodo(row)
}

// UpdateTodo writes the full todo row. The synchronizer owns todo mutation;
// counter-only updates go through IncrementReminderCount.
func (s *Store) UpdateTodo(ctx context.Context, todo *types.Todo) error {
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	assignees, err := json.Marshal(todo.Assignees)
	if err != nil {
		return fmt.Errorf("failed to marshal assignees: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE todos SET
			section_id = ?, provider_url = ?, title = ?, assignees = ?, deadline = ?,
			updated_at = ?, first_assigned_at = ?, first_ddl_set_at = ?,
			delayed_count = ?, reminder_count = ?, is_closed = ?, closed_at = ?,
			recovery_pending = ?
		WHERE id = ?`,
		todo.SectionID, todo.ProviderURL, todo.Title, string(assignees),
		nullTime(todo.Deadline), todo.UpdatedAt, nullTime(todo.FirstAssignedAt),
		nullTime(todo.FirstDdlSetAt), todo.DelayedCount, todo.ReminderCount,
		boolInt(todo.IsClosed), nullTime(todo.ClosedAt), boolInt(todo.RecoveryPending),
		todo.ID)
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTodos returns todos matching the filter.
func (s *Store) ListTodos(ctx context.Context, filter types.TodoFilter) ([]*types.Todo, error) {
	var conds []string
	var args []interface{}

	if filter.CompanyID != "" {
		conds = append(conds, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.SectionID != "" {
		conds = append(conds, "section_id = ?")
		args = append(args, filter.SectionID)
	}
	if filter.ProviderKey != "" {
		conds = append(conds, "provider_key = ?")
		args = append(args, filter.ProviderKey)
	}
	if filter.IsClosed != nil {
		conds = append(conds, "is_closed = ?")
		args = append(args, boolInt(*filter.IsClosed))
	}
	if filter.HasDeadline != nil {
		if *filter.HasDeadline {
			conds = append(conds, "deadline IS NOT NULL")
		} else {
			conds = append(conds, "deadline IS NULL")
		}
	}
	if filter.DeadlineAfter != nil {
		conds = append(conds, "deadline > ?")
		args = append(args, *filter.DeadlineAfter)
	}
	if filter.DeadlineBefore != nil {
		conds = append(conds, "deadline < ?")
		args = append(args, *filter.DeadlineBefore)
	}
	if filter.ClosedAfter != nil {
		conds = append(conds, "closed_at > ?")
		args = append(args, *filter.ClosedAfter)
	}
	if filter.ClosedBefore != nil {
		conds = append(conds, "closed_at < ?")
		args = append(args, *filter.ClosedBefore)
	}

	query := `SELECT ` + todoColumns + ` FROM todos`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var todos []*types.Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		// Assignee filtering happens in Go: assignees are a JSON array and
		// the list per todo is tiny.
		if filter.Assignee != "" && !t.HasAssignee(filter.Assignee) {
			continue
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// IncrementReminderCount bumps a todo's reminder counter by one.
func (s *Store) IncrementReminderCount(ctx context.Context, todoID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE todos SET reminder_count = reminder_count + 1 WHERE id = ?`, todoID)
	if err != nil {
		return fmt.Errorf("failed to increment reminder count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearRecoveryPending resets a todo's recovery flag after the one-time
// recovery reminder has been dispatched.
func (s *Store) ClearRecoveryPending(ctx context.Context, todoID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE todos SET recovery_pending = 0 WHERE id = ?`, todoID)
	if err != nil {
		return fmt.Errorf("failed to clear recovery flag: %w", err)
	}
	return nil
}

func scanTodo(row rowScanner) (*types.Todo, error) {
	var t types.Todo
	var assignees string
	var deadline, firstAssigned, firstDdl, closedAt sql.NullTime
	var isClosed, recovery int

	err := row.Scan(&t.ID, &t.CompanyID, &t.SectionID, &t.ProviderKey, &t.ProviderID,
		&t.ProviderURL, &t.Title, &assignees, &deadline, &t.CreatedAt, &t.UpdatedAt,
		&firstAssigned, &firstDdl, &t.DelayedCount, &t.ReminderCount,
		&isClosed, &closedAt, &recovery)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan todo: %w", err)
	}

	if assignees != "" && assignees != "[]" {
		if err := json.Unmarshal([]byte(assignees), &t.Assignees); err != nil {
			return nil, fmt.Errorf("failed to parse assignees for todo %s: %w", t.ID, err)
		}
	}
	t.Deadline = timePtr(deadline)
	t.FirstAssignedAt = timePtr(firstAssigned)
	t.FirstDdlSetAt = timePtr(firstDdl)
	t.ClosedAt = timePtr(closedAt)
	t.IsClosed = isClosed != 0
	t.RecoveryPending = recovery != 0
	return &t, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

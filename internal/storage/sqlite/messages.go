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

const messageColumns = `id, company_id, todo_id, user_id, kind, token, body,
	sent_at, url_clicked_at, is_replied, failed_at, fail_reason`

// CreateMessage inserts a new message row.
func (s *Store) CreateMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" || msg.Token == "" {
		return fmt.Errorf("message id and token are required")
	}
	if !msg.Kind.IsValid() {
		return fmt.Errorf("invalid message kind: %s", msg.Kind)
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.CompanyID, msg.TodoID, msg.UserID, string(msg.Kind), msg.Token,
		msg.Body, msg.SentAt, nullTime(msg.URLClickedAt), boolInt(msg.IsReplied),
		nullTime(msg.FailedAt), msg.FailReason)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetMessage retrieves one message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// GetMessageByToken retrieves one message by its engagement token. The
// token column carries a UNIQUE index.
func (s *Store) GetMessageByToken(ctx context.Context, token string) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE token = ?`, token)
	return scanMessage(row)
}

// ListMessagesByTodo returns every message sent for a todo, oldest first.
// The engagement tracker iterates these for token resolution.
func (s *Store) ListMessagesByTodo(ctx context.Context, todoID string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE todo_id = ? ORDER BY sent_at, id`, todoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectMessages(rows)
}

// ListMessagesSince returns a company's messages of one kind sent at or
// after since. Kind may be empty to match all kinds.
func (s *Store) ListMessagesSince(ctx context.Context, companyID string, kind types.MessageKind, since time.Time) ([]*types.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE company_id = ? AND sent_at >= ?`
	args := []interface{}{companyID, since}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY sent_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectMessages(rows)
}

// MarkMessageClicked records the first click time. Write-once: the WHERE
// clause keeps later clicks from moving the timestamp, and that is not an
// error — repeat clicks still redirect.
func (s *Store) MarkMessageClicked(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET url_clicked_at = ?
		WHERE id = ? AND url_clicked_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark message clicked: %w", err)
	}
	return nil
}

// MarkMessageFailed records a gateway send failure on the message row.
// The job row is deliberately left in place so the cycle does not retry.
func (s *Store) MarkMessageFailed(ctx context.Context, id string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET failed_at = ?, fail_reason = ? WHERE id = ?`, at, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkMessageReplied flags a message as replied. Write-once by virtue of
// being a boolean set.
func (s *Store) MarkMessageReplied(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_replied = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark message replied: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]*types.Message, error) {
	var msgs []*types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var m types.Message
	var kind string
	var clicked, failed sql.NullTime
	var replied int

	err := row.Scan(&m.ID, &m.CompanyID, &m.TodoID, &m.UserID, &kind, &m.Token,
		&m.Body, &m.SentAt, &clicked, &replied, &failed, &m.FailReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Kind = types.MessageKind(kind)
	m.URLClickedAt = timePtr(clicked)
	m.FailedAt = timePtr(failed)
	m.IsReplied = replied != 0
	return &m, nil
}

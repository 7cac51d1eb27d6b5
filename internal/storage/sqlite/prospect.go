package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/nudge/internal/types"
)

// AddProspectResponse appends a user's prospect prompt response.
func (s *Store) AddProspectResponse(ctx context.Context, resp *types.ProspectResponse) error {
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO prospect_responses (company_id, user_id, level, text, responded_at)
		VALUES (?, ?, ?, ?, ?)`,
		resp.CompanyID, resp.UserID, resp.Level, resp.Text, resp.RespondedAt)
	if err != nil {
		return fmt.Errorf("failed to add prospect response: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		resp.ID = id
	}
	return nil
}

// ListProspectResponses returns a company's responses in [since, until).
func (s *Store) ListProspectResponses(ctx context.Context, companyID string, since, until time.Time) ([]*types.ProspectResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, user_id, level, text, responded_at
		FROM prospect_responses
		WHERE company_id = ? AND responded_at >= ? AND responded_at < ?
		ORDER BY responded_at, id`, companyID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list prospect responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var resps []*types.ProspectResponse
	for rows.Next() {
		var r types.ProspectResponse
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.UserID, &r.Level, &r.Text, &r.RespondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prospect response: %w", err)
		}
		resps = append(resps, &r)
	}
	return resps, rows.Err()
}

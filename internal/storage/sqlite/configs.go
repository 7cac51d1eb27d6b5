package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/steveyegge/nudge/internal/types"
)

// SaveRemindConfig replaces a company's reminder configuration atomically.
// Malformed timings are rejected here, at configuration load, so the
// matcher can assume well-formed input.
func (s *Store) SaveRemindConfig(ctx context.Context, cfg *types.RemindConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	beforeDays, err := json.Marshal(cfg.BeforeDays)
	if err != nil {
		return fmt.Errorf("failed to marshal offsets: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO remind_configs (company_id, before_days, report_after_recovery)
			VALUES (?, ?, ?)
			ON CONFLICT(company_id) DO UPDATE SET
				before_days = excluded.before_days,
				report_after_recovery = excluded.report_after_recovery`,
			cfg.CompanyID, string(beforeDays), boolInt(cfg.ReportAfterRecovery)); err != nil {
			return fmt.Errorf("failed to save remind config: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM remind_timings WHERE company_id = ?`, cfg.CompanyID); err != nil {
			return fmt.Errorf("failed to clear timings: %w", err)
		}
		for _, t := range cfg.Timings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO remind_timings (id, company_id, at, interval_min)
				VALUES (?, ?, ?, ?)`,
				t.ID, cfg.CompanyID, t.At, t.IntervalMin); err != nil {
				return fmt.Errorf("failed to save timing %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// GetRemindConfig loads a company's reminder configuration. A company with
// no stored config gets an empty one: no offsets, no timings, no reminders.
func (s *Store) GetRemindConfig(ctx context.Context, companyID string) (*types.RemindConfig, error) {
	cfg := &types.RemindConfig{CompanyID: companyID}

	var beforeDays string
	var recovery int
	err := s.db.QueryRowContext(ctx, `
		SELECT before_days, report_after_recovery
		FROM remind_configs WHERE company_id = ?`, companyID).Scan(&beforeDays, &recovery)
	switch {
	case err == sql.ErrNoRows:
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load remind config: %w", err)
	}
	if err := json.Unmarshal([]byte(beforeDays), &cfg.BeforeDays); err != nil {
		return nil, fmt.Errorf("failed to parse offsets for company %s: %w", companyID, err)
	}
	cfg.ReportAfterRecovery = recovery != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, interval_min FROM remind_timings
		WHERE company_id = ? ORDER BY at, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t types.Timing
		if err := rows.Scan(&t.ID, &t.At, &t.IntervalMin); err != nil {
			return nil, fmt.Errorf("failed to scan timing: %w", err)
		}
		cfg.Timings = append(cfg.Timings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stored remind config for %s is invalid: %w", companyID, err)
	}
	return cfg, nil
}

// SaveProspectConfig replaces a company's prospect cadence atomically.
func (s *Store) SaveProspectConfig(ctx context.Context, cfg *types.ProspectConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM prospect_timings WHERE company_id = ?`, cfg.CompanyID); err != nil {
			return fmt.Errorf("failed to clear prospect timings: %w", err)
		}
		insert := func(timings []types.Timing, purpose string) error {
			for _, t := range timings {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO prospect_timings (id, company_id, at, interval_min, purpose)
					VALUES (?, ?, ?, ?, ?)`,
					t.ID, cfg.CompanyID, t.At, t.IntervalMin, purpose); err != nil {
					return fmt.Errorf("failed to save prospect timing %s: %w", t.ID, err)
				}
			}
			return nil
		}
		if err := insert(cfg.PromptTimings, "prompt"); err != nil {
			return err
		}
		return insert(cfg.ReportTimings, "report")
	})
}

// GetProspectConfig loads a company's prospect cadence.
func (s *Store) GetProspectConfig(ctx context.Context, companyID string) (*types.ProspectConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, interval_min, purpose FROM prospect_timings
		WHERE company_id = ? ORDER BY at, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prospect config: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cfg := &types.ProspectConfig{CompanyID: companyID}
	for rows.Next() {
		var t types.Timing
		var purpose string
		if err := rows.Scan(&t.ID, &t.At, &t.IntervalMin, &purpose); err != nil {
			return nil, fmt.Errorf("failed to scan prospect timing: %w", err)
		}
		if purpose == "report" {
			cfg.ReportTimings = append(cfg.ReportTimings, t)
		} else {
			cfg.PromptTimings = append(cfg.PromptTimings, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stored prospect config for %s is invalid: %w", companyID, err)
	}
	return cfg, nil
}

// SaveStatusConfig replaces a company's status level labels atomically.
func (s *Store) SaveStatusConfig(ctx context.Context, cfg *types.StatusConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM status_configs WHERE company_id = ?`, cfg.CompanyID); err != nil {
			return fmt.Errorf("failed to clear status config: %w", err)
		}
		for i, label := range cfg.Labels {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO status_configs (company_id, level, label)
				VALUES (?, ?, ?)`,
				cfg.CompanyID, i+1, label); err != nil {
				return fmt.Errorf("failed to save status label %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// GetStatusConfig loads a company's status level labels.
func (s *Store) GetStatusConfig(ctx context.Context, companyID string) (*types.StatusConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, label FROM status_configs
		WHERE company_id = ? ORDER BY level`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status config: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cfg := &types.StatusConfig{CompanyID: companyID}
	for rows.Next() {
		var level int
		var label string
		if err := rows.Scan(&level, &label); err != nil {
			return nil, fmt.Errorf("failed to scan status label: %w", err)
		}
		cfg.Labels = append(cfg.Labels, label)
	}
	return cfg, rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

// CreateCompany inserts a new company row.
func (s *Store) CreateCompany(ctx context.Context, company *types.Company) error {
	if err := company.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, timezone, chat_tool, report_channel, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		company.ID, company.Name, company.Timezone, string(company.ChatTool),
		company.ReportChannel, company.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetCompany retrieves one company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (*types.Company, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, timezone, chat_tool, report_channel, created_at
		FROM companies WHERE id = ?`, id)
	return scanCompany(row)
}

// ListCompanies returns all companies, oldest first.
func (s *Store) ListCompanies(ctx context.Context) ([]*types.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, timezone, chat_tool, report_channel, created_at
		FROM companies ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var companies []*types.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompany(row rowScanner) (*types.Company, error) {
	var c types.Company
	var tool string
	err := row.Scan(&c.ID, &c.Name, &c.Timezone, &tool, &c.ReportChannel, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	c.ChatTool = types.ChatTool(tool)
	return &c, nil
}

// CreateSection inserts a new section (provider board binding).
func (s *Store) CreateSection(ctx context.Context, section *types.Section) error {
	if section.ID == "" || section.CompanyID == "" {
		return fmt.Errorf("section id and company_id are required")
	}
	if section.ProviderKey == "" || section.BoardRef == "" {
		return fmt.Errorf("section provider binding is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, company_id, name, provider_key, board_ref, property_usage)
		VALUES (?, ?, ?, ?, ?, ?)`,
		section.ID, section.CompanyID, section.Name, section.ProviderKey, section.BoardRef, section.PropertyUsage)
	if err != nil {
		return fmt.Errorf("failed to create section: %w", err)
	}
	return nil
}

// ListSections returns a company's sections.
func (s *Store) ListSections(ctx context.Context, companyID string) ([]*types.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, provider_key, board_ref, property_usage
		FROM sections WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sections []*types.Section
	for rows.Next() {
		var sec types.Section
		if err := rows.Scan(&sec.ID, &sec.CompanyID, &sec.Name, &sec.ProviderKey, &sec.BoardRef, &sec.PropertyUsage); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, &sec)
	}
	return sections, rows.Err()
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if user.ID == "" || user.CompanyID == "" {
		return fmt.Errorf("user id and company_id are required")
	}
	providerIDs, err := json.Marshal(user.ProviderIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal provider ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, company_id, name, chat_identity, provider_ids)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.CompanyID, user.Name, user.ChatIdentity, string(providerIDs))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves one user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, chat_identity, provider_ids
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns a company's users.
func (s *Store) ListUsers(ctx context.Context, companyID string) ([]*types.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, chat_identity, provider_ids
		FROM users WHERE company_id = ? ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*types.User, error) {
	var u types.User
	var providerIDs string
	err := row.Scan(&u.ID, &u.CompanyID, &u.Name, &u.ChatIdentity, &providerIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if providerIDs != "" && providerIDs != "{}" {
		if err := json.Unmarshal([]byte(providerIDs), &u.ProviderIDs); err != nil {
			return nil, fmt.Errorf("failed to parse provider ids for user %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

// Package syncer pulls current task state from external providers, maps
// it onto canonical todos, and records every observed delta as an
// append-only history row. It is the only writer of todo state besides
// the dispatch counters.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/steveyegge/nudge/internal/provider"
	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/token"
	"github.com/steveyegge/nudge/internal/types"
)

// ErrMappingIncomplete reports that an item was missing a required
// canonical role (deadline, assignee) after applying the section's
// property-usage mapping. Always per-item: the item is skipped and
// counted, never fatal to the sync.
var ErrMappingIncomplete = errors.New("required field mapping incomplete")

// SyncResult summarizes one company/provider synchronization pass.
type SyncResult struct {
	Created  int
	Updated  int
	Closed   int
	Reopened int
	Skipped  int

	// SectionErrors counts sections skipped because the provider was
	// unavailable or the usage mapping failed to parse. Retried next cycle.
	SectionErrors int
}

// Syncer maps provider items onto stored todos.
type Syncer struct {
	store     storage.Storage
	providers *provider.Registry

	now func() time.Time
}

func New(store storage.Storage, providers *provider.Registry) *Syncer {
	return &Syncer{store: store, providers: providers, now: time.Now}
}

// Sync pulls every section the company has bound to providerKey and
// reconciles the provider's items against stored todos. A provider error
// on one section skips that section only; sibling sections still sync.
// Re-running with unchanged provider data is a no-op.
func (s *Syncer) Sync(ctx context.Context, company *types.Company, providerKey string) (SyncResult, error) {
	var result SyncResult

	p, err := s.providers.Get(providerKey)
	if err != nil {
		return result, err
	}

	sections, err := s.store.ListSections(ctx, company.ID)
	if err != nil {
		return result, fmt.Errorf("list sections for %s: %w", company.ID, err)
	}

	users, err := s.store.ListUsers(ctx, company.ID)
	if err != nil {
		return result, fmt.Errorf("list users for %s: %w", company.ID, err)
	}
	userIndex := indexUsersByProviderID(users, providerKey)

	for _, sec := range sections {
		if sec.ProviderKey != providerKey {
			continue
		}

		usage, err := sectionUsage(sec)
		if err != nil {
			log.Printf("sync: company=%s section=%s bad property usage: %v", company.ID, sec.ID, err)
			result.SectionErrors++
			continue
		}

		items, err := p.ListItems(ctx, sec.BoardRef)
		if err != nil {
			log.Printf("sync: company=%s section=%s provider=%s unavailable: %v", company.ID, sec.ID, providerKey, err)
			result.SectionErrors++
			continue
		}

		for _, item := range items {
			if err := s.syncItem(ctx, company, sec, usage, userIndex, item, &result); err != nil {
				log.Printf("sync: company=%s section=%s item=%s: %v", company.ID, sec.ID, item.ID, err)
				result.Skipped++
			}
		}
	}
	return result, nil
}

// syncItem reconciles one provider item. Returned errors are per-item:
// the caller logs, counts, and moves on.
func (s *Syncer) syncItem(ctx context.Context, company *types.Company, sec *types.Section, usage *provider.Usage, userIndex map[string]string, item provider.Item, result *SyncResult) error {
	mapped := usage.Map(item)
	assignees := resolveAssignees(mapped.Assignees, userIndex)

	existing, err := s.store.GetTodoByProviderID(ctx, company.ID, sec.ProviderKey, item.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if item.Closed {
			// Never imported; nothing to close.
			return nil
		}
		if len(mapped.Missing) > 0 {
			return fmt.Errorf("%w: roles %v", ErrMappingIncomplete, mapped.Missing)
		}
		if len(assignees) == 0 {
			return fmt.Errorf("%w: no assignee resolves to a known user", ErrMappingIncomplete)
		}
		return s.createTodo(ctx, company, sec, mapped, assignees, item, result)
	case err != nil:
		return fmt.Errorf("lookup todo: %w", err)
	}

	return s.updateTodo(ctx, existing, mapped, assignees, item, result)
}

func (s *Syncer) createTodo(ctx context.Context, company *types.Company, sec *types.Section, mapped provider.Mapped, assignees []string, item provider.Item, result *SyncResult) error {
	now := s.now()
	todo := &types.Todo{
		ID:          token.TodoID(company.ID, sec.ProviderKey, item.ID),
		CompanyID:   company.ID,
		SectionID:   sec.ID,
		ProviderKey: sec.ProviderKey,
		ProviderID:  item.ID,
		ProviderURL: item.URL,
		Title:       mapped.Title,
		Assignees:   assignees,
		Deadline:    mapped.Deadline,
		CreatedAt:   now,
		UpdatedAt:   item.UpdatedAt,
	}
	todo.FirstAssignedAt = &now
	if mapped.Deadline != nil {
		todo.FirstDdlSetAt = &now
	}
	if err := s.store.CreateTodo(ctx, todo); err != nil {
		return fmt.Errorf("create todo: %w", err)
	}

	// Baseline history row: later passes compare the provider timestamp
	// against this to decide whether anything changed.
	if err := s.store.AddTodoHistory(ctx, &types.TodoHistory{
		TodoID:    todo.ID,
		UpdatedAt: item.UpdatedAt,
		Editor:    mapped.Editor,
	}); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	result.Created++
	return nil
}

func (s *Syncer) updateTodo(ctx context.Context, todo *types.Todo, mapped provider.Mapped, assignees []string, item provider.Item, result *SyncResult) error {
	latest, err := s.store.LatestTodoHistory(ctx, todo.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("latest history: %w", err)
	}
	if latest != nil && !item.UpdatedAt.After(latest.UpdatedAt) {
		// Unchanged since last observation.
		return nil
	}

	now := s.now()

	// Deadline delta before overwriting.
	oldDeadline := todo.Deadline
	newDeadline := mapped.Deadline
	if oldDeadline != nil && newDeadline != nil && newDeadline.After(*oldDeadline) {
		todo.DelayedCount++
		if oldDeadline.Before(now) {
			// An overdue deadline moved forward: owes a one-time
			// recovery notice.
			todo.RecoveryPending = true
		}
	}
	if todo.FirstDdlSetAt == nil && newDeadline != nil {
		todo.FirstDdlSetAt = &now
	}
	if todo.FirstAssignedAt == nil && len(assignees) > 0 {
		todo.FirstAssignedAt = &now
	}

	switch {
	case item.Closed && !todo.IsClosed:
		todo.IsClosed = true
		todo.ClosedAt = &now
		result.Closed++
	case !item.Closed && todo.IsClosed:
		todo.IsClosed = false
		todo.ClosedAt = nil
		todo.DelayedCount = 0
		todo.ReminderCount = 0
		todo.RecoveryPending = false
		result.Reopened++
	default:
		result.Updated++
	}

	if mapped.Title != "" {
		todo.Title = mapped.Title
	}
	if item.URL != "" {
		todo.ProviderURL = item.URL
	}
	todo.Deadline = newDeadline
	if len(assignees) > 0 {
		todo.Assignees = assignees
	}
	todo.UpdatedAt = item.UpdatedAt

	if err := s.store.UpdateTodo(ctx, todo); err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	if err := s.store.AddTodoHistory(ctx, &types.TodoHistory{
		TodoID:    todo.ID,
		UpdatedAt: item.UpdatedAt,
		Editor:    mapped.Editor,
	}); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func sectionUsage(sec *types.Section) (*provider.Usage, error) {
	if sec.PropertyUsage == "" {
		return &provider.Usage{}, nil
	}
	return provider.ParseUsage([]byte(sec.PropertyUsage))
}

// indexUsersByProviderID builds the reverse lookup from a provider-side
// user id to our user id.
func indexUsersByProviderID(users []*types.User, providerKey string) map[string]string {
	index := make(map[string]string, len(users))
	for _, u := range users {
		if pid := u.ProviderIDs[providerKey]; pid != "" {
			index[pid] = u.ID
		}
	}
	return index
}

// resolveAssignees maps provider assignee ids to known user ids,
// dropping the ones nobody claims.
func resolveAssignees(providerIDs []string, index map[string]string) []string {
	var out []string
	for _, pid := range providerIDs {
		if id, ok := index[pid]; ok {
			out = append(out, id)
		}
	}
	return out
}

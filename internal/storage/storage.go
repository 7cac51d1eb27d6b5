// Package storage provides shared types for reminder-engine storage.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and sentinel errors referenced by both the sqlite
// implementation and its consumers (syncer, planner, dispatch, engage,
// report, cmd/nudge).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/nudge/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateJob is returned when a RemindUserJob row for the same
// (user, todo, timing, day, offset) key already exists. Callers treat this
// as the AlreadySent outcome; it is the sole duplicate-delivery guard.
var ErrDuplicateJob = errors.New("remind job already exists")

// Storage is the interface satisfied by *sqlite.Store.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations (mocks, proxies) can be substituted.
type Storage interface {
	// Companies, sections, users
	CreateCompany(ctx context.Context, company *types.Company) error
	GetCompany(ctx context.Context, id string) (*types.Company, error)
	ListCompanies(ctx context.Context) ([]*types.Company, error)
	CreateSection(ctx context.Context, section *types.Section) error
	ListSections(ctx context.Context, companyID string) ([]*types.Section, error)
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	ListUsers(ctx context.Context, companyID string) ([]*types.User, error)

	// Todos
	CreateTodo(ctx context.Context, todo *types.Todo) error
	GetTodo(ctx context.Context, id string) (*types.Todo, error)
	GetTodoByProviderID(ctx context.Context, companyID, providerKey, providerID string) (*types.Todo, error)
	UpdateTodo(ctx context.Context, todo *types.Todo) error
	ListTodos(ctx context.Context, filter types.TodoFilter) ([]*types.Todo, error)
	IncrementReminderCount(ctx context.Context, todoID string) error
	ClearRecoveryPending(ctx context.Context, todoID string) error

	// Todo history (append-only)
	AddTodoHistory(ctx context.Context, h *types.TodoHistory) error
	LatestTodoHistory(ctx context.Context, todoID string) (*types.TodoHistory, error)
	CountTodoHistory(ctx context.Context, todoID string) (int, error)

	// Per-company configuration
	SaveRemindConfig(ctx context.Context, cfg *types.RemindConfig) error
	GetRemindConfig(ctx context.Context, companyID string) (*types.RemindConfig, error)
	SaveProspectConfig(ctx context.Context, cfg *types.ProspectConfig) error
	GetProspectConfig(ctx context.Context, companyID string) (*types.ProspectConfig, error)
	SaveStatusConfig(ctx context.Context, cfg *types.StatusConfig) error
	GetStatusConfig(ctx context.Context, companyID string) (*types.StatusConfig, error)

	// Dispatch idempotency. CreateRemindJob returns ErrDuplicateJob when a
	// row with the same key tuple exists; the UNIQUE constraint on that
	// tuple is what makes at-most-once delivery correct across racing
	// scheduler instances.
	CreateRemindJob(ctx context.Context, job *types.RemindUserJob) error

	// Messages
	CreateMessage(ctx context.Context, msg *types.Message) error
	GetMessage(ctx context.Context, id string) (*types.Message, error)
	GetMessageByToken(ctx context.Context, token string) (*types.Message, error)
	ListMessagesByTodo(ctx context.Context, todoID string) ([]*types.Message, error)
	ListMessagesSince(ctx context.Context, companyID string, kind types.MessageKind, since time.Time) ([]*types.Message, error)
	MarkMessageClicked(ctx context.Context, id string, at time.Time) error
	MarkMessageFailed(ctx context.Context, id string, at time.Time, reason string) error
	MarkMessageReplied(ctx context.Context, id string) error

	// Prospect responses
	AddProspectResponse(ctx context.Context, resp *types.ProspectResponse) error
	ListProspectResponses(ctx context.Context, companyID string, since, until time.Time) ([]*types.ProspectResponse, error)

	// Lifecycle
	Close() error
}

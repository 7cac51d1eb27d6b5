// Package provider defines the capability interface that all external
// task-management integrations implement. Each provider (Trello-shaped,
// generic kanban, etc.) supplies an adapter; the syncer uses it to pull
// current item state without knowing any wire-format specifics.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnavailable reports that the provider could not be reached or returned
// a non-retryable API error. The syncer logs and skips the section; the
// next cycle retries. Never fatal to a batch.
var ErrUnavailable = errors.New("provider unavailable")

// TaskProvider is the plugin interface external task systems implement.
type TaskProvider interface {
	// Name returns the lowercase identifier for this provider (e.g., "trello").
	Name() string

	// DisplayName returns the human-readable name (e.g., "Trello").
	DisplayName() string

	// Validate checks that the provider is properly configured.
	Validate() error

	// ListItems retrieves the current items on one board. Errors caused by
	// the remote API should wrap ErrUnavailable.
	ListItems(ctx context.Context, boardRef string) ([]Item, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Item is one task as reported by a provider. Providers that expose
// deadline or assignees as first-class attributes populate them directly;
// everything else arrives in Fields and is resolved through the company's
// property-usage mapping.
type Item struct {
	ID        string
	URL       string
	Title     string
	Fields    map[string]string
	Assignees []string
	Deadline  *time.Time
	Editor    string
	UpdatedAt time.Time
	Closed    bool
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]TaskProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]TaskProvider)}
}

// Register adds a provider. Registering the same name twice is an error.
func (r *Registry) Register(p TaskProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider has empty name")
	}
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (TaskProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered provider, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package trello implements the task provider capability against the
// Trello REST API. Deadlines and assignees are native card attributes
// here, so no property-usage mapping is needed for the required roles.
package trello

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/nudge/internal/provider"
)

// Provider adapts the Trello client to the provider capability.
type Provider struct {
	client *Client
}

// New creates a Trello provider. baseURL is overridable for tests.
func New(baseURL, apiKey, apiToken string) *Provider {
	return &Provider{client: NewClient(baseURL, apiKey, apiToken)}
}

func (p *Provider) Name() string        { return "trello" }
func (p *Provider) DisplayName() string { return "Trello" }

func (p *Provider) Validate() error {
	if p.client.APIKey == "" || p.client.APIToken == "" {
		return fmt.Errorf("trello: api key and token are required")
	}
	return nil
}

func (p *Provider) Close() error { return nil }

// ListItems pulls the board's cards and converts them to canonical items.
// Cards whose timestamps fail to parse keep a zero UpdatedAt; the syncer
// treats those as unchanged.
func (p *Provider) ListItems(ctx context.Context, boardRef string) ([]provider.Item, error) {
	cards, err := p.client.ListCards(ctx, boardRef)
	if err != nil {
		return nil, err
	}

	items := make([]provider.Item, 0, len(cards))
	for _, c := range cards {
		item := provider.Item{
			ID:        c.ID,
			URL:       c.ShortURL,
			Title:     c.Name,
			Assignees: c.IDMembers,
			Closed:    c.Closed || c.DueComplete,
		}
		if c.Due != nil && *c.Due != "" {
			if due, err := time.Parse(time.RFC3339, *c.Due); err == nil {
				item.Deadline = &due
			}
		}
		if c.DateLastActivity != "" {
			if updated, err := time.Parse(time.RFC3339, c.DateLastActivity); err == nil {
				item.UpdatedAt = updated
			}
		}
		items = append(items, item)
	}
	return items, nil
}

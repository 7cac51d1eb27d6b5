// Package kanbanflow implements the task provider capability against a
// KanbanFlow-style REST API. Unlike Trello, deadline and assignee arrive
// as named custom fields, so sections on this provider need a
// property-usage mapping before their items are usable.
package kanbanflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/nudge/internal/provider"
)

// task is one task from the boards/{id}/tasks endpoint.
type task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	Completed    bool          `json:"completed"`
	UpdatedAt    string        `json:"updatedAt"`
	UpdatedBy    string        `json:"updatedBy"`
	CustomFields []customField `json:"customFields"`
}

type customField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Provider adapts the KanbanFlow API to the provider capability.
type Provider struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client

	newBackOff func() backoff.BackOff
}

// New creates a KanbanFlow provider. baseURL is overridable for tests;
// empty means the public API.
func New(baseURL, apiToken string) *Provider {
	if baseURL == "" {
		baseURL = "https://kanbanflow.com/api"
	}
	return &Provider{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

func (p *Provider) Name() string        { return "kanbanflow" }
func (p *Provider) DisplayName() string { return "KanbanFlow" }

func (p *Provider) Validate() error {
	if p.apiToken == "" {
		return fmt.Errorf("kanbanflow: api token is required")
	}
	return nil
}

func (p *Provider) Close() error { return nil }

// ListItems pulls the board's tasks. Custom fields pass through untouched
// in Item.Fields; the property-usage mapping owns their interpretation.
func (p *Provider) ListItems(ctx context.Context, boardRef string) ([]provider.Item, error) {
	apiURL := fmt.Sprintf("%s/v1/boards/%s/tasks", p.baseURL, url.PathEscape(boardRef))

	body, err := p.doRequest(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var tasks []task
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("parse KanbanFlow response: %w", err)
	}

	items := make([]provider.Item, 0, len(tasks))
	for _, t := range tasks {
		item := provider.Item{
			ID:     t.ID,
			URL:    t.URL,
			Title:  t.Name,
			Editor: t.UpdatedBy,
			Closed: t.Completed,
			Fields: make(map[string]string, len(t.CustomFields)),
		}
		for _, f := range t.CustomFields {
			item.Fields[f.Name] = f.Value
		}
		if t.UpdatedAt != "" {
			if updated, err := time.Parse(time.RFC3339, t.UpdatedAt); err == nil {
				item.UpdatedAt = updated
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Provider) doRequest(ctx context.Context, apiURL string) ([]byte, error) {
	if p.apiToken == "" {
		return nil, fmt.Errorf("kanbanflow token not configured")
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+p.apiToken)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "nudge-sync/1.0")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			body = respBody
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("kanbanflow API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		default:
			return backoff.Permanent(fmt.Errorf("kanbanflow API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		}
	}

	bo := backoff.WithContext(p.newBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	return body, nil
}

// Package vikunja implements the task provider capability against the
// Vikunja REST API. Deadlines and assignees are first-class task
// attributes, so sections on this provider rarely need a property-usage
// mapping.
package vikunja

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/nudge/internal/provider"
)

const perPage = 50

// task is one task from the projects/{id}/views/{id}/tasks endpoint.
type task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	DueDate   time.Time `json:"due_date"`
	Updated   time.Time `json:"updated"`
	Assignees []user    `json:"assignees"`
}

type user struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Provider adapts the Vikunja API to the provider capability. Board
// references take the form "projectID/viewID".
type Provider struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client

	newBackOff func() backoff.BackOff
}

// New creates a Vikunja provider. baseURL points at the instance's
// /api/v1 root and must be non-empty; Vikunja is self-hosted.
func New(baseURL, apiToken string) *Provider {
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

func (p *Provider) Name() string        { return "vikunja" }
func (p *Provider) DisplayName() string { return "Vikunja" }

func (p *Provider) Validate() error {
	if p.baseURL == "" {
		return fmt.Errorf("vikunja: base URL is required")
	}
	if p.apiToken == "" {
		return fmt.Errorf("vikunja: api token is required")
	}
	return nil
}

func (p *Provider) Close() error { return nil }

// ListItems pulls every task in the referenced project view, walking
// the paginated endpoint until a short page.
func (p *Provider) ListItems(ctx context.Context, boardRef string) ([]provider.Item, error) {
	projectID, viewID, err := splitBoardRef(boardRef)
	if err != nil {
		return nil, err
	}

	var items []provider.Item
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(perPage))
		apiURL := fmt.Sprintf("%s/projects/%d/views/%d/tasks?%s", p.baseURL, projectID, viewID, params.Encode())

		body, err := p.doRequest(ctx, apiURL)
		if err != nil {
			return nil, err
		}

		var tasks []task
		if err := json.Unmarshal(body, &tasks); err != nil {
			return nil, fmt.Errorf("parse Vikunja response: %w", err)
		}

		for _, t := range tasks {
			items = append(items, p.toItem(t))
		}
		if len(tasks) < perPage {
			return items, nil
		}
	}
}

func (p *Provider) toItem(t task) provider.Item {
	item := provider.Item{
		ID:        strconv.FormatInt(t.ID, 10),
		URL:       p.taskURL(t.ID),
		Title:     t.Title,
		Closed:    t.Done,
		UpdatedAt: t.Updated,
		Fields:    map[string]string{},
	}
	if !t.DueDate.IsZero() {
		due := t.DueDate
		item.Deadline = &due
	}
	for _, u := range t.Assignees {
		item.Assignees = append(item.Assignees, u.Username)
	}
	return item
}

// taskURL points at the frontend page for a task. The frontend lives
// one level above the /api/v1 root.
func (p *Provider) taskURL(id int64) string {
	front := strings.TrimSuffix(p.baseURL, "/api/v1")
	return fmt.Sprintf("%s/tasks/%d", front, id)
}

func splitBoardRef(ref string) (projectID, viewID int64, err error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("vikunja board ref %q: want projectID/viewID", ref)
	}
	projectID, err = strconv.ParseInt(parts[0], 10, 64)
	if err == nil {
		viewID, err = strconv.ParseInt(parts[1], 10, 64)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("vikunja board ref %q: want projectID/viewID", ref)
	}
	return projectID, viewID, nil
}

func (p *Provider) doRequest(ctx context.Context, apiURL string) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
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
			return fmt.Errorf("vikunja API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		default:
			return backoff.Permanent(fmt.Errorf("vikunja API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		}
	}

	bo := backoff.WithContext(p.newBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	return body, nil
}

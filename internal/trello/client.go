package trello

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

// card is a Trello card from the REST API, trimmed to the fields the
// syncer consumes.
type card struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	ShortURL         string   `json:"shortUrl"`
	Due              *string  `json:"due"`
	DateLastActivity string   `json:"dateLastActivity"`
	IDMembers        []string `json:"idMembers"`
	Closed           bool     `json:"closed"`
	DueComplete      bool     `json:"dueComplete"`
}

// Client provides HTTP access to the Trello REST API.
type Client struct {
	BaseURL    string
	APIKey     string
	APIToken   string
	HTTPClient *http.Client

	newBackOff func() backoff.BackOff
}

// NewClient creates a Trello API client. baseURL is overridable for tests;
// empty means the public API.
func NewClient(baseURL, apiKey, apiToken string) *Client {
	if baseURL == "" {
		baseURL = "https://api.trello.com"
	}
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		APIKey:   apiKey,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

// ListCards fetches the cards on one board, including archived ones so
// the syncer can observe closes.
func (c *Client) ListCards(ctx context.Context, boardRef string) ([]card, error) {
	params := url.Values{
		"key":    {c.APIKey},
		"token":  {c.APIToken},
		"filter": {"all"},
		"fields": {"name,shortUrl,due,dateLastActivity,idMembers,closed,dueComplete"},
	}
	apiURL := fmt.Sprintf("%s/1/boards/%s/cards?%s", c.BaseURL, url.PathEscape(boardRef), params.Encode())

	body, err := c.doRequest(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var cards []card
	if err := json.Unmarshal(body, &cards); err != nil {
		return nil, fmt.Errorf("parse Trello response: %w", err)
	}
	return cards, nil
}

// doRequest performs a GET with retries. Rate limits and server errors
// are retried with exponential backoff; anything still failing after
// that wraps provider.ErrUnavailable.
func (c *Client) doRequest(ctx context.Context, apiURL string) ([]byte, error) {
	if c.APIKey == "" || c.APIToken == "" {
		return nil, fmt.Errorf("trello credentials not configured")
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "nudge-sync/1.0")

		resp, err := c.HTTPClient.Do(req)
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
			return fmt.Errorf("trello API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		default:
			return backoff.Permanent(fmt.Errorf("trello API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		}
	}

	bo := backoff.WithContext(c.newBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
	return body, nil
}

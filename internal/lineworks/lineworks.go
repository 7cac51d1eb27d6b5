// Package lineworks implements the chat delivery gateway against a
// LINE WORKS-style bot messaging API (bearer token, JSON over REST).
package lineworks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/types"
)

// Gateway delivers reminder messages through a LINE WORKS bot.
type Gateway struct {
	baseURL     string
	botID       string
	accessToken string
	httpClient  *http.Client

	newBackOff func() backoff.BackOff
}

// New creates a LINE WORKS gateway. baseURL is overridable for tests;
// empty means the public API.
func New(baseURL, botID, accessToken string) (*Gateway, error) {
	if botID == "" || accessToken == "" {
		return nil, fmt.Errorf("lineworks bot id and access token are required")
	}
	if baseURL == "" {
		baseURL = "https://www.worksapis.com"
	}
	return &Gateway{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		botID:       botID,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}, nil
}

func (g *Gateway) Tool() types.ChatTool { return types.ChatLineWorks }

func (g *Gateway) SendDirect(ctx context.Context, chatIdentity, text string) error {
	endpoint := fmt.Sprintf("%s/v1.0/bots/%s/users/%s/messages",
		g.baseURL, url.PathEscape(g.botID), url.PathEscape(chatIdentity))
	return g.post(ctx, endpoint, text)
}

func (g *Gateway) SendChannel(ctx context.Context, channel, text string) error {
	endpoint := fmt.Sprintf("%s/v1.0/bots/%s/channels/%s/messages",
		g.baseURL, url.PathEscape(g.botID), url.PathEscape(channel))
	return g.post(ctx, endpoint, text)
}

func (g *Gateway) Close() error { return nil }

type textMessage struct {
	Content struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// post sends one text message. Rate limits and server errors are retried
// with exponential backoff; anything still failing wraps chat.ErrSendFailed.
func (g *Gateway) post(ctx context.Context, endpoint, text string) error {
	var msg textMessage
	msg.Content.Type = "text"
	msg.Content.Text = text
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "nudge-dispatch/1.0")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("lineworks API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	bo := backoff.WithContext(g.newBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrSendFailed, err)
	}
	return nil
}

// Package slackgw implements the chat delivery gateway against Slack
// using the slack-go/slack library.
package slackgw

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/types"
)

// SlackAPI abstracts the subset of slack.Client methods used by the
// gateway. This allows tests to substitute a mock implementation without
// a live Slack connection.
type SlackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

// Gateway delivers reminder messages through Slack.
type Gateway struct {
	api SlackAPI
}

// New creates a Slack gateway from a bot token (xoxb-...).
func New(botToken string) (*Gateway, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is required")
	}
	return &Gateway{api: slack.New(botToken)}, nil
}

// NewWithAPI creates a gateway on an existing API implementation.
func NewWithAPI(api SlackAPI) *Gateway {
	return &Gateway{api: api}
}

func (g *Gateway) Tool() types.ChatTool { return types.ChatSlack }

// Validate checks the token against auth.test.
func (g *Gateway) Validate(ctx context.Context) error {
	if _, err := g.api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	return nil
}

// SendDirect opens (or reuses) the DM conversation with the user and
// posts the text there.
func (g *Gateway) SendDirect(ctx context.Context, chatIdentity, text string) error {
	ch, _, _, err := g.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{chatIdentity},
	})
	if err != nil {
		return fmt.Errorf("%w: open dm with %s: %v", chat.ErrSendFailed, chatIdentity, err)
	}
	if _, _, err := g.api.PostMessageContext(ctx, ch.ID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("%w: post to %s: %v", chat.ErrSendFailed, chatIdentity, err)
	}
	return nil
}

func (g *Gateway) SendChannel(ctx context.Context, channel, text string) error {
	if _, _, err := g.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("%w: post to channel %s: %v", chat.ErrSendFailed, channel, err)
	}
	return nil
}

func (g *Gateway) Close() error { return nil }

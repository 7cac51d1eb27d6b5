// Package chat defines the delivery gateway capability implemented by
// each chat-tool integration. The dispatch coordinator composes message
// bodies; gateways only move text.
package chat

import (
	"context"
	"errors"

	"github.com/steveyegge/nudge/internal/types"
)

// ErrSendFailed reports that the gateway could not deliver a message.
// The dispatcher marks the message failed and keeps the job row so the
// obligation is not retried this cycle.
var ErrSendFailed = errors.New("chat send failed")

// Gateway delivers outbound messages through one chat tool.
type Gateway interface {
	// Tool returns the chat tool this gateway serves.
	Tool() types.ChatTool

	// SendDirect delivers text to one user, addressed by their chat
	// identity (Slack member id, LINE WORKS account id).
	SendDirect(ctx context.Context, chatIdentity, text string) error

	// SendChannel delivers text to a shared channel.
	SendChannel(ctx context.Context, channel, text string) error

	// Close releases any resources held by the gateway.
	Close() error
}

// Registry maps chat tools to their configured gateways.
type Registry map[types.ChatTool]Gateway

// For returns the gateway for tool.
func (r Registry) For(tool types.ChatTool) (Gateway, error) {
	gw, ok := r[tool]
	if !ok {
		return nil, errors.New("no gateway configured for chat tool " + string(tool))
	}
	return gw, nil
}

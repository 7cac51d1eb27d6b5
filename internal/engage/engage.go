// Package engage resolves tracked redirect links back to their
// originating message and records the first click.
package engage

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

// Tracker attributes link clicks to messages.
type Tracker struct {
	store storage.Storage

	now func() time.Time
}

func New(store storage.Storage) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// ResolveRedirect maps (todoID, token) to the provider task URL. Token
// comparison is constant-time per candidate so response timing leaks
// nothing about stored tokens. The first successful resolution stamps
// urlClickedAt; later clicks still redirect but never move the stamp.
// Unknown todo or token yields storage.ErrNotFound.
func (t *Tracker) ResolveRedirect(ctx context.Context, todoID, token string) (string, error) {
	msgs, err := t.store.ListMessagesByTodo(ctx, todoID)
	if err != nil {
		return "", fmt.Errorf("list messages for %s: %w", todoID, err)
	}

	var match *types.Message
	for _, msg := range msgs {
		if subtle.ConstantTimeCompare([]byte(msg.Token), []byte(token)) == 1 {
			match = msg
			break
		}
	}
	if match == nil {
		return "", storage.ErrNotFound
	}

	if err := t.store.MarkMessageClicked(ctx, match.ID, t.now()); err != nil {
		return "", fmt.Errorf("record click on %s: %w", match.ID, err)
	}

	todo, err := t.store.GetTodo(ctx, todoID)
	if err != nil {
		return "", fmt.Errorf("load todo %s: %w", todoID, err)
	}
	return todo.ProviderURL, nil
}

// RecordProspectReply stores a user's prospect prompt answer, attributed
// through the prompt message token, and flags the message replied. The
// level is validated against the five-level status scale; unknown tokens
// and tokens on non-prospect messages yield storage.ErrNotFound.
func (t *Tracker) RecordProspectReply(ctx context.Context, token string, level int, text string) error {
	msg, err := t.store.GetMessageByToken(ctx, token)
	if err != nil {
		return err
	}
	if msg.Kind != types.KindProspect {
		return storage.ErrNotFound
	}

	resp := &types.ProspectResponse{
		CompanyID:   msg.CompanyID,
		UserID:      msg.UserID,
		Level:       level,
		Text:        text,
		RespondedAt: t.now(),
	}
	if err := resp.Validate(); err != nil {
		return err
	}
	if err := t.store.AddProspectResponse(ctx, resp); err != nil {
		return fmt.Errorf("record response for %s: %w", msg.ID, err)
	}
	if err := t.store.MarkMessageReplied(ctx, msg.ID); err != nil {
		return fmt.Errorf("mark %s replied: %w", msg.ID, err)
	}
	return nil
}

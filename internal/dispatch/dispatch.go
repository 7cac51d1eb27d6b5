// Package dispatch turns planner obligations into delivered chat
// messages. The RemindUserJob row insert is the atomic commit point:
// whoever wins the UNIQUE constraint sends, everyone else observes
// AlreadySent. Gateway failures mark the Message row failed and keep the
// job row, so a cycle never retries the same key.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/planner"
	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/timing"
	"github.com/steveyegge/nudge/internal/token"
	"github.com/steveyegge/nudge/internal/types"
)

// Status classifies the outcome of one dispatch attempt.
type Status string

const (
	StatusSent        Status = "sent"
	StatusAlreadySent Status = "already_sent"
	StatusFailed      Status = "failed"
)

// Outcome reports what happened to one obligation.
type Outcome struct {
	Status    Status
	Reason    string
	MessageID string
}

// BatchResult aggregates outcomes over one company's obligations.
type BatchResult struct {
	Sent        int
	AlreadySent int
	Failed      int
}

// Coordinator owns the send path from obligation to gateway.
type Coordinator struct {
	store    storage.Storage
	gateways chat.Registry
	baseURL  string

	now func() time.Time
}

func New(store storage.Storage, gateways chat.Registry, baseURL string) *Coordinator {
	return &Coordinator{store: store, gateways: gateways, baseURL: baseURL, now: time.Now}
}

// Dispatch processes one obligation at the matched timing. The returned
// error is reserved for storage failures on the job-row insert: without
// a durable job row the delivery guarantee is gone, so the caller must
// abort rather than send. Everything else lands in the Outcome.
func (c *Coordinator) Dispatch(ctx context.Context, company *types.Company, user *types.User, todo *types.Todo, ob planner.Obligation, tm types.Timing) (Outcome, error) {
	now := c.now()
	loc, err := company.Location()
	if err != nil {
		return Outcome{}, err
	}

	kind := types.KindReminder
	if ob.Recovery {
		kind = types.KindRecovery
	}

	// Kind is part of the job key: a recovery notice and the ordinary
	// reminder for the same (user, todo, day, offset) are owed
	// independently.
	job := &types.RemindUserJob{
		CompanyID:  company.ID,
		UserID:     ob.UserID,
		TodoID:     ob.TodoID,
		TimingID:   tm.ID,
		Day:        timing.Day(now, loc),
		OffsetDays: ob.OffsetDays,
		Kind:       kind,
	}
	if err := c.store.CreateRemindJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrDuplicateJob) {
			return Outcome{Status: StatusAlreadySent}, nil
		}
		return Outcome{}, fmt.Errorf("create job row: %w", err)
	}

	tok, err := token.New()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate token: %w", err)
	}
	msg := &types.Message{
		ID:        uuid.NewString(),
		CompanyID: company.ID,
		TodoID:    todo.ID,
		UserID:    user.ID,
		Kind:      kind,
		Token:     tok,
		Body:      renderBody(todo, ob, c.baseURL, tok, loc),
		SentAt:    now,
	}
	// The Message row exists before the outbound call: a crash after this
	// point is recoverable by inspecting send status, not by re-sending.
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		return Outcome{}, fmt.Errorf("create message row: %w", err)
	}

	if err := c.send(ctx, company, user, msg.Body); err != nil {
		reason := err.Error()
		if markErr := c.store.MarkMessageFailed(ctx, msg.ID, c.now(), reason); markErr != nil {
			log.Printf("dispatch: company=%s message=%s failed to record send failure: %v", company.ID, msg.ID, markErr)
		}
		return Outcome{Status: StatusFailed, Reason: reason, MessageID: msg.ID}, nil
	}

	if err := c.store.IncrementReminderCount(ctx, todo.ID); err != nil {
		log.Printf("dispatch: company=%s todo=%s failed to bump reminder count: %v", company.ID, todo.ID, err)
	}
	if ob.Recovery {
		if err := c.store.ClearRecoveryPending(ctx, todo.ID); err != nil {
			log.Printf("dispatch: company=%s todo=%s failed to clear recovery flag: %v", company.ID, todo.ID, err)
		}
	}
	return Outcome{Status: StatusSent, MessageID: msg.ID}, nil
}

// DispatchBatch resolves and dispatches a company's obligations. All
// obligations for one company share one chat tool, which keeps gateway
// traffic naturally batched per tenant.
func (c *Coordinator) DispatchBatch(ctx context.Context, company *types.Company, obligations []planner.Obligation, tm types.Timing) (BatchResult, error) {
	var result BatchResult
	for _, ob := range obligations {
		user, err := c.store.GetUser(ctx, ob.UserID)
		if err != nil {
			log.Printf("dispatch: company=%s user=%s lookup failed: %v", company.ID, ob.UserID, err)
			result.Failed++
			continue
		}
		todo, err := c.store.GetTodo(ctx, ob.TodoID)
		if err != nil {
			log.Printf("dispatch: company=%s todo=%s lookup failed: %v", company.ID, ob.TodoID, err)
			result.Failed++
			continue
		}

		outcome, err := c.Dispatch(ctx, company, user, todo, ob, tm)
		if err != nil {
			// Storage failure on the job row: abort the batch.
			return result, err
		}
		switch outcome.Status {
		case StatusSent:
			result.Sent++
		case StatusAlreadySent:
			result.AlreadySent++
		case StatusFailed:
			log.Printf("dispatch: company=%s todo=%s user=%s send failed: %s", company.ID, ob.TodoID, ob.UserID, outcome.Reason)
			result.Failed++
		}
	}
	return result, nil
}

func (c *Coordinator) send(ctx context.Context, company *types.Company, user *types.User, body string) error {
	if user.ChatIdentity == "" {
		return fmt.Errorf("%w: user %s has no chat identity", chat.ErrSendFailed, user.ID)
	}
	gw, err := c.gateways.For(company.ChatTool)
	if err != nil {
		return fmt.Errorf("%w: %v", chat.ErrSendFailed, err)
	}
	return gw.SendDirect(ctx, user.ChatIdentity, body)
}

// Package report owns the prospect cadence: prompting users for a
// status level on a timing-driven schedule and rolling their responses
// up into a channel report. Cadence is purely timing-driven; no todo
// deadline semantics apply here.
package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/timing"
	"github.com/steveyegge/nudge/internal/token"
	"github.com/steveyegge/nudge/internal/types"
)

// reportUserID keys company-level report jobs in the job table, which
// otherwise keys on a real user.
const reportUserID = "report"

// Report is one rollup over a company's period.
type Report struct {
	CompanyID    string
	Since, Until time.Time

	// LevelCounts[i] is the number of responses at status level i+1.
	LevelCounts [types.StatusLevelCount]int
	Responses   int

	ClosedInPeriod int
	DelayedOpen    int
	OverdueOpen    int

	RemindersSent    int
	RemindersClicked int
}

// Aggregator builds and delivers prospect prompts and rollup reports.
type Aggregator struct {
	store    storage.Storage
	gateways chat.Registry
	baseURL  string

	now func() time.Time
}

func New(store storage.Storage, gateways chat.Registry, baseURL string) *Aggregator {
	return &Aggregator{
		store:    store,
		gateways: gateways,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		now:      time.Now,
	}
}

// PromptDue sends a status prompt to every user with a chat identity
// when one of the company's prompt timings matches now. Duplicate
// suppression rides the same job table as reminders, keyed per user and
// timing. Returns the number of prompts sent.
func (a *Aggregator) PromptDue(ctx context.Context, company *types.Company, now time.Time) (int, error) {
	loc, err := company.Location()
	if err != nil {
		return 0, err
	}
	cfg, err := a.store.GetProspectConfig(ctx, company.ID)
	if err != nil {
		return 0, fmt.Errorf("prospect config for %s: %w", company.ID, err)
	}
	due := timing.Due(cfg.PromptTimings, now, loc)
	if len(due) == 0 {
		return 0, nil
	}

	statusCfg, err := a.store.GetStatusConfig(ctx, company.ID)
	if err != nil {
		return 0, fmt.Errorf("status config for %s: %w", company.ID, err)
	}
	users, err := a.store.ListUsers(ctx, company.ID)
	if err != nil {
		return 0, fmt.Errorf("list users for %s: %w", company.ID, err)
	}

	gw, err := a.gateways.For(company.ChatTool)
	if err != nil {
		return 0, err
	}

	day := timing.Day(now, loc)

	sent := 0
	// Every timing whose slot covers now owes its own prompt; the job
	// table dedups per timing id, so a rerun in the same slot stays quiet.
	for _, tm := range due {
		for _, user := range users {
			if user.ChatIdentity == "" {
				continue
			}
			job := &types.RemindUserJob{
				CompanyID: company.ID,
				UserID:    user.ID,
				TimingID:  tm.ID,
				Day:       day,
				Kind:      types.KindProspect,
			}
			if err := a.store.CreateRemindJob(ctx, job); err != nil {
				if errors.Is(err, storage.ErrDuplicateJob) {
					continue
				}
				return sent, fmt.Errorf("create prompt job: %w", err)
			}

			tok, err := token.New()
			if err != nil {
				return sent, fmt.Errorf("generate token: %w", err)
			}
			body := promptBody(statusCfg, a.baseURL+"/respond/"+tok)
			msg := &types.Message{
				ID:        uuid.NewString(),
				CompanyID: company.ID,
				UserID:    user.ID,
				Kind:      types.KindProspect,
				Token:     tok,
				Body:      body,
				SentAt:    a.now(),
			}
			if err := a.store.CreateMessage(ctx, msg); err != nil {
				return sent, fmt.Errorf("create prompt message: %w", err)
			}
			if err := gw.SendDirect(ctx, user.ChatIdentity, body); err != nil {
				log.Printf("report: company=%s user=%s prompt send failed: %v", company.ID, user.ID, err)
				if markErr := a.store.MarkMessageFailed(ctx, msg.ID, a.now(), err.Error()); markErr != nil {
					log.Printf("report: company=%s message=%s failed to record send failure: %v", company.ID, msg.ID, markErr)
				}
				continue
			}
			sent++
		}
	}
	return sent, nil
}

// Aggregate builds the rollup for [since, until).
func (a *Aggregator) Aggregate(ctx context.Context, company *types.Company, since, until time.Time) (*Report, error) {
	r := &Report{CompanyID: company.ID, Since: since, Until: until}

	responses, err := a.store.ListProspectResponses(ctx, company.ID, since, until)
	if err != nil {
		return nil, fmt.Errorf("list responses for %s: %w", company.ID, err)
	}
	for _, resp := range responses {
		if resp.Level >= 1 && resp.Level <= types.StatusLevelCount {
			r.LevelCounts[resp.Level-1]++
			r.Responses++
		}
	}

	reminders, err := a.store.ListMessagesSince(ctx, company.ID, types.KindReminder, since)
	if err != nil {
		return nil, fmt.Errorf("list reminders for %s: %w", company.ID, err)
	}
	for _, msg := range reminders {
		if !msg.SentAt.Before(until) || msg.FailedAt != nil {
			continue
		}
		r.RemindersSent++
		if msg.URLClickedAt != nil {
			r.RemindersClicked++
		}
	}

	todos, err := a.store.ListTodos(ctx, types.TodoFilter{CompanyID: company.ID})
	if err != nil {
		return nil, fmt.Errorf("list todos for %s: %w", company.ID, err)
	}
	for _, todo := range todos {
		if todo.IsClosed {
			if todo.ClosedAt != nil && !todo.ClosedAt.Before(since) && todo.ClosedAt.Before(until) {
				r.ClosedInPeriod++
			}
			continue
		}
		if todo.DelayedCount > 0 {
			r.DelayedOpen++
		}
		if todo.Deadline != nil && todo.Deadline.Before(until) {
			r.OverdueOpen++
		}
	}
	return r, nil
}

// ReportDue aggregates the trailing period and posts the rollup to the
// company's report channel when one of the report timings matches now.
// Reports the rollup as delivered (true) or not due / suppressed (false).
func (a *Aggregator) ReportDue(ctx context.Context, company *types.Company, now time.Time, period time.Duration) (bool, error) {
	loc, err := company.Location()
	if err != nil {
		return false, err
	}
	cfg, err := a.store.GetProspectConfig(ctx, company.ID)
	if err != nil {
		return false, fmt.Errorf("prospect config for %s: %w", company.ID, err)
	}
	due := timing.Due(cfg.ReportTimings, now, loc)
	if len(due) == 0 || company.ReportChannel == "" {
		return false, nil
	}
	// Claim every timing whose slot covers now; one rollup covers them
	// all, but leaving a due timing unclaimed would fire a second copy
	// the next tick if two slots overlap.
	claimed := false
	for _, tm := range due {
		job := &types.RemindUserJob{
			CompanyID: company.ID,
			UserID:    reportUserID,
			TimingID:  tm.ID,
			Day:       timing.Day(now, loc),
			Kind:      types.KindReport,
		}
		if err := a.store.CreateRemindJob(ctx, job); err != nil {
			if errors.Is(err, storage.ErrDuplicateJob) {
				continue
			}
			return false, fmt.Errorf("create report job: %w", err)
		}
		claimed = true
	}
	if !claimed {
		return false, nil
	}

	r, err := a.Aggregate(ctx, company, now.Add(-period), now)
	if err != nil {
		return false, err
	}
	statusCfg, err := a.store.GetStatusConfig(ctx, company.ID)
	if err != nil {
		return false, fmt.Errorf("status config for %s: %w", company.ID, err)
	}

	gw, err := a.gateways.For(company.ChatTool)
	if err != nil {
		return false, err
	}
	body := renderReport(r, statusCfg)
	if err := gw.SendChannel(ctx, company.ReportChannel, body); err != nil {
		log.Printf("report: company=%s rollup send failed: %v", company.ID, err)
		return false, nil
	}
	return true, nil
}

func promptBody(cfg *types.StatusConfig, respondURL string) string {
	var b strings.Builder
	b.WriteString("How is your work going? Reply with a number:\n")
	for level := 1; level <= types.StatusLevelCount; level++ {
		fmt.Fprintf(&b, "%d. %s\n", level, cfg.Label(level))
	}
	fmt.Fprintf(&b, "Answer here: %s\n", respondURL)
	return b.String()
}

func renderReport(r *Report, cfg *types.StatusConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Progress report %s to %s\n", r.Since.Format("2006-01-02"), r.Until.Format("2006-01-02"))
	fmt.Fprintf(&b, "Responses: %d\n", r.Responses)
	for level := 1; level <= types.StatusLevelCount; level++ {
		if n := r.LevelCounts[level-1]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", cfg.Label(level), n)
		}
	}
	fmt.Fprintf(&b, "Closed: %d, delayed open: %d, overdue open: %d\n", r.ClosedInPeriod, r.DelayedOpen, r.OverdueOpen)
	fmt.Fprintf(&b, "Reminders sent: %d (%d opened)\n", r.RemindersSent, r.RemindersClicked)
	return b.String()
}

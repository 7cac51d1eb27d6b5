// Package planner computes which (todo, assignee) pairs owe a reminder
// right now. It is pure planning over post-sync todo state: the dispatch
// coordinator owns the authoritative duplicate suppression.
package planner

import (
	"strconv"
	"time"

	"github.com/steveyegge/nudge/internal/timing"
	"github.com/steveyegge/nudge/internal/types"
)

// Obligation is one reminder owed to one user for one todo.
type Obligation struct {
	CompanyID  string
	UserID     string
	TodoID     string
	OffsetDays int

	// Recovery marks the one-time notice for a previously overdue todo
	// whose deadline moved forward. It bypasses the offset table.
	Recovery bool
}

// Plan returns the reminder obligations for a company at now. Only open
// todos with a deadline are considered; the day distance is evaluated in
// the company's timezone. Dedup here is advisory: the job table decides
// what actually sends.
func Plan(company *types.Company, todos []*types.Todo, cfg *types.RemindConfig, now time.Time) ([]Obligation, error) {
	loc, err := company.Location()
	if err != nil {
		return nil, err
	}

	var obligations []Obligation
	seen := make(map[string]bool)

	emit := func(o Obligation) {
		key := o.UserID + "\x00" + o.TodoID + "\x00" + strconv.Itoa(o.OffsetDays) + recoveryKey(o.Recovery)
		if seen[key] {
			return
		}
		seen[key] = true
		obligations = append(obligations, o)
	}

	for _, todo := range todos {
		if todo.IsClosed || todo.Deadline == nil {
			continue
		}

		days := timing.DaysUntil(now, *todo.Deadline, loc)
		matches := cfg.HasOffset(days)

		for _, userID := range todo.Assignees {
			if matches {
				emit(Obligation{
					CompanyID:  company.ID,
					UserID:     userID,
					TodoID:     todo.ID,
					OffsetDays: days,
				})
			}
			if cfg.ReportAfterRecovery && todo.RecoveryPending {
				emit(Obligation{
					CompanyID: company.ID,
					UserID:    userID,
					TodoID:    todo.ID,
					Recovery:  true,
				})
			}
		}
	}
	return obligations, nil
}

func recoveryKey(recovery bool) string {
	if recovery {
		return "\x00r"
	}
	return ""
}

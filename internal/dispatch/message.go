package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/nudge/internal/planner"
	"github.com/steveyegge/nudge/internal/types"
)

// renderBody composes the outbound reminder text. The embedded link goes
// through the redirect endpoint so the click can be attributed before
// forwarding to the provider.
func renderBody(todo *types.Todo, ob planner.Obligation, baseURL, tok string, loc *time.Location) string {
	var b strings.Builder

	switch {
	case ob.Recovery:
		b.WriteString(fmt.Sprintf("The deadline for %q was rescheduled after falling overdue.\n", todo.Title))
	case ob.OffsetDays < 0:
		b.WriteString(fmt.Sprintf("%q is overdue by %d day(s).\n", todo.Title, -ob.OffsetDays))
	case ob.OffsetDays == 0:
		b.WriteString(fmt.Sprintf("%q is due today.\n", todo.Title))
	default:
		b.WriteString(fmt.Sprintf("%q is due in %d day(s).\n", todo.Title, ob.OffsetDays))
	}

	if todo.Deadline != nil {
		b.WriteString("Deadline: " + todo.Deadline.In(loc).Format("2006-01-02 15:04") + "\n")
	}
	if todo.DelayedCount > 0 {
		b.WriteString(fmt.Sprintf("This task has slipped %d time(s).\n", todo.DelayedCount))
	}
	b.WriteString(trackedLink(baseURL, todo.ID, tok))
	return b.String()
}

func trackedLink(baseURL, todoID, tok string) string {
	return strings.TrimSuffix(baseURL, "/") + "/redirect/" + todoID + "/" + tok
}

// Package timing decides which configured reminder or report timings are
// due at a given instant.
//
// Matching converts the instant into the company's local time, floors it to
// the timing's rounding interval, and compares the result against the
// configured "HH:MM" clock string. A scheduler running at the interval
// cadence (or finer) therefore matches each timing exactly once per slot.
package timing

import (
	"time"

	"github.com/steveyegge/nudge/internal/types"
)

// clockLayout is the bare time-of-day format timings are configured in.
const clockLayout = "15:04"

// Floor rounds now down to the previous interval boundary within its day.
// The boundary grid starts at midnight local time, so a 30-minute interval
// cycle run at 09:17 floors to 09:00. Intervals that do not evenly divide
// the day still floor to the grid anchored at midnight.
func Floor(now time.Time, intervalMin int) time.Time {
	if intervalMin <= 0 {
		return now
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(midnight)
	interval := time.Duration(intervalMin) * time.Minute
	return midnight.Add(elapsed / interval * interval)
}

// Due returns every timing whose clock string equals now floored to that
// timing's interval, evaluated in loc. The result is deterministic for a
// fixed (timings, now, loc): calling it twice returns the same set.
func Due(timings []types.Timing, now time.Time, loc *time.Location) []types.Timing {
	local := now.In(loc)

	var due []types.Timing
	for _, t := range timings {
		slot := Floor(local, t.IntervalMin).Format(clockLayout)
		if slot == t.At {
			due = append(due, t)
		}
	}
	return due
}

// Day formats now's calendar day in loc. Used as the day component of the
// dispatch idempotency key.
func Day(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

// DaysUntil returns the whole-day distance from now to deadline, both
// evaluated as calendar days in loc. 0 means due today; negative means
// overdue.
func DaysUntil(now, deadline time.Time, loc *time.Location) int {
	n := now.In(loc)
	d := deadline.In(loc)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	dd := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return int(dd.Sub(nd) / (24 * time.Hour))
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

const cycleScopeName = "github.com/steveyegge/nudge/scheduler"

// CycleMetrics counts what scheduling cycles do. All instruments are
// no-ops when telemetry is disabled, so callers record unconditionally.
type CycleMetrics struct {
	cycles     metric.Int64Counter
	sent       metric.Int64Counter
	suppressed metric.Int64Counter
	failed     metric.Int64Counter
	syncErrors metric.Int64Counter
}

// NewCycleMetrics builds the cycle instruments on the global meter.
func NewCycleMetrics() *CycleMetrics {
	m := Meter(cycleScopeName)
	cycles, _ := m.Int64Counter("nudge.cycles",
		metric.WithDescription("Scheduling cycles completed"),
	)
	sent, _ := m.Int64Counter("nudge.reminders.sent",
		metric.WithDescription("Reminder messages delivered"),
	)
	suppressed, _ := m.Int64Counter("nudge.reminders.suppressed",
		metric.WithDescription("Duplicate obligations suppressed by the job table"),
	)
	failed, _ := m.Int64Counter("nudge.reminders.failed",
		metric.WithDescription("Reminder sends that failed at the gateway"),
	)
	syncErrors, _ := m.Int64Counter("nudge.sync.errors",
		metric.WithDescription("Company sync passes that reported errors"),
	)
	return &CycleMetrics{
		cycles:     cycles,
		sent:       sent,
		suppressed: suppressed,
		failed:     failed,
		syncErrors: syncErrors,
	}
}

// RecordCycle accumulates one cycle's counts.
func (c *CycleMetrics) RecordCycle(ctx context.Context, sent, suppressed, failed, syncErrors int) {
	c.cycles.Add(ctx, 1)
	c.sent.Add(ctx, int64(sent))
	c.suppressed.Add(ctx, int64(suppressed))
	c.failed.Add(ctx, int64(failed))
	if syncErrors > 0 {
		c.syncErrors.Add(ctx, int64(syncErrors))
	}
}

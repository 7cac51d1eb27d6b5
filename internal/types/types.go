// Package types defines core data structures for the nudge reminder engine.
package types

import (
	"fmt"
	"time"
)

// ChatTool identifies which chat integration a company delivers reminders through.
type ChatTool string

// Chat tool constants
const (
	ChatSlack     ChatTool = "slack"
	ChatLineWorks ChatTool = "lineworks"
)

// IsValid checks if the chat tool value is valid
func (c ChatTool) IsValid() bool {
	switch c {
	case ChatSlack, ChatLineWorks:
		return true
	}
	return false
}

// Company is the root tenant. All configuration, users, sections and todos
// are scoped to exactly one company and never shared across companies.
type Company struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Timezone      string   `json:"timezone"` // IANA name, e.g. "Asia/Tokyo"
	ChatTool      ChatTool `json:"chat_tool"`
	ReportChannel string   `json:"report_channel,omitempty"` // chat identity that receives rollup reports
	CreatedAt     time.Time `json:"created_at"`
}

// Location resolves the company's timezone. Timezone names are validated
// when the company is stored, so failures here indicate corrupted data.
func (c *Company) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("company %s has invalid timezone %q: %w", c.ID, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks if the company has valid field values
func (c *Company) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("company id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("company name is required")
	}
	if !c.ChatTool.IsValid() {
		return fmt.Errorf("invalid chat tool: %s", c.ChatTool)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Section binds a company to one external provider board or channel.
// Sections are read-only inputs to the synchronizer.
type Section struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	ProviderKey string `json:"provider_key"` // e.g. "trello", "kanbanflow"
	BoardRef    string `json:"board_ref"`    // provider-side board/channel identifier

	// PropertyUsage is the raw YAML mapping of canonical roles to this
	// board's custom-field names. Empty when the provider exposes the
	// required roles natively.
	PropertyUsage string `json:"property_usage,omitempty"`
}

// User is a person who can be assigned todos and receive reminders.
// ChatIdentity is the user's id within the company's chat tool;
// ProviderIDs maps provider keys to the user's identity in that provider.
type User struct {
	ID           string            `json:"id"`
	CompanyID    string            `json:"company_id"`
	Name         string            `json:"name"`
	ChatIdentity string            `json:"chat_identity,omitempty"`
	ProviderIDs  map[string]string `json:"provider_ids,omitempty"`
}

// Todo is the canonical internal representation of one task imported from
// an external provider. Mutated only by the synchronizer and, for counters,
// by the dispatch path.
type Todo struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	SectionID   string `json:"section_id"`
	ProviderKey string `json:"provider_key"`
	ProviderID  string `json:"provider_id"`
	ProviderURL string `json:"provider_url,omitempty"`

	Title     string   `json:"title"`
	Assignees []string `json:"assignees,omitempty"` // internal user ids

	Deadline        *time.Time `json:"deadline,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"` // provider-reported last update we have applied
	FirstAssignedAt *time.Time `json:"first_assigned_at,omitempty"` // write-once
	FirstDdlSetAt   *time.Time `json:"first_ddl_set_at,omitempty"`  // write-once

	DelayedCount  int  `json:"delayed_count"`  // monotonic; reset only on close→reopen
	ReminderCount int  `json:"reminder_count"` // monotonic; reset only on close→reopen
	IsClosed      bool `json:"is_closed"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`

	// RecoveryPending marks a todo whose deadline was overdue and has since
	// been rescheduled forward. Cleared after the one-time recovery reminder.
	RecoveryPending bool `json:"recovery_pending,omitempty"`
}

// Validate checks if the todo has valid field values
func (t *Todo) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.CompanyID == "" {
		return fmt.Errorf("company_id is required")
	}
	if t.ProviderKey == "" || t.ProviderID == "" {
		return fmt.Errorf("provider identity is required")
	}
	if t.DelayedCount < 0 {
		return fmt.Errorf("delayed_count cannot be negative")
	}
	if t.ReminderCount < 0 {
		return fmt.Errorf("reminder_count cannot be negative")
	}
	if t.IsClosed && t.ClosedAt == nil {
		return fmt.Errorf("closed todos must have closed_at timestamp")
	}
	if !t.IsClosed && t.ClosedAt != nil {
		return fmt.Errorf("open todos cannot have closed_at timestamp")
	}
	return nil
}

// HasAssignee reports whether userID is among the todo's assignees.
func (t *Todo) HasAssignee(userID string) bool {
	for _, a := range t.Assignees {
		if a == userID {
			return true
		}
	}
	return false
}

// TodoHistory is an immutable, append-only record of one observed external
// change to a todo: the provider-reported update timestamp and the editor.
// Written once per detected delta, never updated or deleted.
type TodoHistory struct {
	ID         int64     `json:"id"`
	TodoID     string    `json:"todo_id"`
	UpdatedAt  time.Time `json:"updated_at"` // provider-reported
	Editor     string    `json:"editor,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Timing is a configured time-of-day at which a scheduling cycle should act.
// At is a bare "HH:MM" clock string in the company's timezone; IntervalMin
// is the rounding interval the scheduler floors the current time to.
type Timing struct {
	ID          string `json:"id"`
	At          string `json:"at"`
	IntervalMin int    `json:"interval_min"`
}

// Validate checks the timing's clock string and interval.
// Malformed timings are rejected here, at configuration load, never at match time.
func (t *Timing) Validate() error {
	if t.IntervalMin <= 0 {
		return fmt.Errorf("timing %s: interval must be positive (got %d)", t.ID, t.IntervalMin)
	}
	if _, err := time.Parse("15:04", t.At); err != nil {
		return fmt.Errorf("timing %s: invalid clock %q: %w", t.ID, t.At, err)
	}
	return nil
}

// RemindConfig is a company's reminder scheduling configuration:
// which before-deadline day offsets trigger a reminder, and at which
// clock times the scheduler cycle should fire them.
type RemindConfig struct {
	CompanyID           string   `json:"company_id"`
	BeforeDays          []int    `json:"before_days"` // 0 = due today; negatives = overdue
	ReportAfterRecovery bool     `json:"report_after_recovery"`
	Timings             []Timing `json:"timings"`
}

// Validate checks offsets and timings. Offsets may be negative (overdue
// reminders) but a config with no timings is valid: it simply never fires.
func (c *RemindConfig) Validate() error {
	for i := range c.Timings {
		if err := c.Timings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasOffset reports whether days is one of the configured reminder offsets.
func (c *RemindConfig) HasOffset(days int) bool {
	for _, d := range c.BeforeDays {
		if d == days {
			return true
		}
	}
	return false
}

// ProspectConfig is the scheduling configuration for progress-report
// prompts and rollup summaries, on an independent cadence from reminders.
type ProspectConfig struct {
	CompanyID     string   `json:"company_id"`
	PromptTimings []Timing `json:"prompt_timings"`
	ReportTimings []Timing `json:"report_timings"`
}

// Validate checks all prospect timings.
func (c *ProspectConfig) Validate() error {
	for i := range c.PromptTimings {
		if err := c.PromptTimings[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.ReportTimings {
		if err := c.ReportTimings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StatusLevelCount is the number of ordered status levels in a StatusConfig.
const StatusLevelCount = 5

// StatusConfig maps a company's five ordered status levels (1 = no concern,
// 5 = severe) to free-text labels used when rendering reports.
type StatusConfig struct {
	CompanyID string   `json:"company_id"`
	Labels    []string `json:"labels"` // index 0 = level 1
}

// Label returns the label for a 1-based level, or a numeric fallback.
func (s *StatusConfig) Label(level int) string {
	if level >= 1 && level <= len(s.Labels) {
		return s.Labels[level-1]
	}
	return fmt.Sprintf("level %d", level)
}

// Validate checks that exactly StatusLevelCount labels are configured.
func (s *StatusConfig) Validate() error {
	if len(s.Labels) != StatusLevelCount {
		return fmt.Errorf("status config requires %d labels (got %d)", StatusLevelCount, len(s.Labels))
	}
	return nil
}

// RemindUserJob is the durable idempotency record: one row per
// (user, todo, timing, calendar day, offset, kind) combination already
// dispatched. Kind keeps a recovery notice from colliding with the
// ordinary reminder owed for the same day and offset. Existence of the
// row is the sole truth of "already sent". Rows are created
// transactionally with message send and never deleted.
type RemindUserJob struct {
	ID         int64       `json:"id"`
	CompanyID  string      `json:"company_id"`
	UserID     string      `json:"user_id"`
	TodoID     string      `json:"todo_id"` // empty for prospect prompt jobs
	TimingID   string      `json:"timing_id"`
	Day        string      `json:"day"` // "2006-01-02" in the company's timezone
	OffsetDays int         `json:"offset_days"`
	Kind       MessageKind `json:"kind"`
	CreatedAt  time.Time   `json:"created_at"`
}

// MessageKind categorizes outbound chat messages.
type MessageKind string

// Message kind constants
const (
	KindReminder MessageKind = "reminder"
	KindRecovery MessageKind = "recovery"
	KindProspect MessageKind = "prospect"
	KindReport   MessageKind = "report"
)

// IsValid checks if the message kind value is valid
func (k MessageKind) IsValid() bool {
	switch k {
	case KindReminder, KindRecovery, KindProspect, KindReport:
		return true
	}
	return false
}

// Message records one sent chat message. The token is an unguessable
// capability embedded in the outbound link; URLClickedAt and IsReplied are
// populated by the engagement tracker, each at most once.
type Message struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"company_id"`
	TodoID    string      `json:"todo_id,omitempty"`
	UserID    string      `json:"user_id"`
	Kind      MessageKind `json:"kind"`
	Token     string      `json:"token"`
	Body      string      `json:"body,omitempty"`

	SentAt       time.Time  `json:"sent_at"`
	URLClickedAt *time.Time `json:"url_clicked_at,omitempty"`
	IsReplied    bool       `json:"is_replied"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	FailReason   string     `json:"fail_reason,omitempty"`
}

// ProspectResponse is a user's reply to a prospect prompt: a chosen status
// level plus optional free text. Input to the report aggregator.
type ProspectResponse struct {
	ID          int64     `json:"id"`
	CompanyID   string    `json:"company_id"`
	UserID      string    `json:"user_id"`
	Level       int       `json:"level"` // 1..StatusLevelCount
	Text        string    `json:"text,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}

// Validate checks the response's status level.
func (p *ProspectResponse) Validate() error {
	if p.Level < 1 || p.Level > StatusLevelCount {
		return fmt.Errorf("level must be between 1 and %d (got %d)", StatusLevelCount, p.Level)
	}
	return nil
}

// TodoFilter is used to filter todo queries
type TodoFilter struct {
	CompanyID   string
	SectionID   string
	ProviderKey string
	IsClosed    *bool
	HasDeadline *bool
	Assignee    string

	DeadlineAfter  *time.Time
	DeadlineBefore *time.Time
	ClosedAfter    *time.Time
	ClosedBefore   *time.Time

	Limit int
}

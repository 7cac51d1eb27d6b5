package provider

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Canonical roles a provider field can serve. Mapping configuration is
// data per company, not code per provider.
const (
	RoleDeadline = "deadline"
	RoleAssignee = "assignee"
	RoleTitle    = "title"
	RoleEditor   = "editor"
)

// Usage maps canonical roles onto provider custom-field names for one
// section. Loaded from YAML, e.g.:
//
//	deadline: "Due date"
//	assignee: "Owner"
type Usage struct {
	Deadline string `yaml:"deadline"`
	Assignee string `yaml:"assignee"`
	Title    string `yaml:"title"`
	Editor   string `yaml:"editor"`
}

// ParseUsage decodes a property-usage mapping from YAML.
func ParseUsage(data []byte) (*Usage, error) {
	var u Usage
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse property usage: %w", err)
	}
	return &u, nil
}

// Mapped is the canonical view of one provider item after applying the
// property-usage configuration. Missing lists the required roles that
// could not be resolved; the caller skips such items, it does not fail
// the sync.
type Mapped struct {
	Title     string
	Deadline  *time.Time
	Assignees []string
	Editor    string
	Missing   []string
}

// deadlineLayouts are tried in order when a deadline arrives as a custom
// field string rather than a native attribute.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Map resolves an item's canonical fields. Native item attributes win
// over custom-field lookups; the usage mapping only fills what the
// provider does not expose first-class.
func (u *Usage) Map(item Item) Mapped {
	m := Mapped{
		Title:     item.Title,
		Deadline:  item.Deadline,
		Assignees: item.Assignees,
		Editor:    item.Editor,
	}

	if m.Title == "" && u.Title != "" {
		m.Title = item.Fields[u.Title]
	}
	if m.Editor == "" && u.Editor != "" {
		m.Editor = item.Fields[u.Editor]
	}
	if m.Deadline == nil && u.Deadline != "" {
		if raw := strings.TrimSpace(item.Fields[u.Deadline]); raw != "" {
			m.Deadline = parseDeadline(raw)
		}
	}
	if len(m.Assignees) == 0 && u.Assignee != "" {
		m.Assignees = splitAssignees(item.Fields[u.Assignee])
	}

	if m.Deadline == nil {
		m.Missing = append(m.Missing, RoleDeadline)
	}
	if len(m.Assignees) == 0 {
		m.Missing = append(m.Missing, RoleAssignee)
	}
	return m
}

func parseDeadline(raw string) *time.Time {
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func splitAssignees(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

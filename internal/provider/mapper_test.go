package provider

import (
	"testing"
	"time"
)

func TestParseUsage(t *testing.T) {
	u, err := ParseUsage([]byte("deadline: \"Due date\"\nassignee: Owner\n"))
	if err != nil {
		t.Fatalf("ParseUsage: %v", err)
	}
	if u.Deadline != "Due date" || u.Assignee != "Owner" {
		t.Errorf("usage = %+v", u)
	}

	if _, err := ParseUsage([]byte("deadline: [broken")); err == nil {
		t.Error("malformed yaml should fail")
	}
}

func TestMapFromCustomFields(t *testing.T) {
	u := &Usage{Deadline: "Due date", Assignee: "Owner"}
	item := Item{
		ID:    "card-1",
		Title: "Ship the thing",
		Fields: map[string]string{
			"Due date": "2026-09-15",
			"Owner":    "alice, bob",
		},
	}

	m := u.Map(item)
	if len(m.Missing) != 0 {
		t.Fatalf("missing = %v", m.Missing)
	}
	want := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	if m.Deadline == nil || !m.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", m.Deadline, want)
	}
	if len(m.Assignees) != 2 || m.Assignees[0] != "alice" || m.Assignees[1] != "bob" {
		t.Errorf("assignees = %v", m.Assignees)
	}
}

func TestMapNativeFieldsWin(t *testing.T) {
	u := &Usage{Deadline: "Due date", Assignee: "Owner"}
	native := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		ID:        "card-1",
		Title:     "Native",
		Deadline:  &native,
		Assignees: []string{"carol"},
		Fields: map[string]string{
			"Due date": "2026-12-31",
			"Owner":    "alice",
		},
	}

	m := u.Map(item)
	if m.Deadline == nil || !m.Deadline.Equal(native) {
		t.Errorf("deadline = %v, want native %v", m.Deadline, native)
	}
	if len(m.Assignees) != 1 || m.Assignees[0] != "carol" {
		t.Errorf("assignees = %v, want native", m.Assignees)
	}
}

func TestMapReportsMissingRoles(t *testing.T) {
	u := &Usage{}
	m := u.Map(Item{ID: "card-1", Title: "Bare"})
	if len(m.Missing) != 2 {
		t.Fatalf("missing = %v, want deadline and assignee", m.Missing)
	}

	// Unparsable deadline string counts as missing, not as an error.
	u = &Usage{Deadline: "Due date", Assignee: "Owner"}
	m = u.Map(Item{
		ID:     "card-2",
		Fields: map[string]string{"Due date": "next tuesday", "Owner": "alice"},
	})
	if len(m.Missing) != 1 || m.Missing[0] != RoleDeadline {
		t.Errorf("missing = %v, want [deadline]", m.Missing)
	}
}

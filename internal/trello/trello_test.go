package trello

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/nudge/internal/provider"
)

func noRetry(p *Provider) *Provider {
	p.client.newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	return p
}

func TestListItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/boards/board-1/cards" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" || r.URL.Query().Get("token") != "tok" {
			t.Errorf("credentials missing from query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"c1","name":"Ship it","shortUrl":"https://trello.example/c/c1",
			 "due":"2026-09-15T09:00:00.000Z","dateLastActivity":"2026-09-01T08:00:00.000Z",
			 "idMembers":["m1","m2"],"closed":false},
			{"id":"c2","name":"Done already","shortUrl":"https://trello.example/c/c2",
			 "due":null,"dateLastActivity":"2026-08-20T08:00:00.000Z",
			 "idMembers":[],"closed":true}
		]`))
	}))
	defer srv.Close()

	p := New(srv.URL, "k", "tok")
	items, err := p.ListItems(context.Background(), "board-1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.ID != "c1" || first.Title != "Ship it" || len(first.Assignees) != 2 {
		t.Errorf("item = %+v", first)
	}
	wantDue := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)
	if first.Deadline == nil || !first.Deadline.Equal(wantDue) {
		t.Errorf("deadline = %v, want %v", first.Deadline, wantDue)
	}
	if first.Closed {
		t.Error("open card reported closed")
	}
	if !items[1].Closed {
		t.Error("archived card not reported closed")
	}
}

func TestListItemsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := noRetry(New(srv.URL, "k", "tok"))
	_, err := p.ListItems(context.Background(), "board-1")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestListItemsAuthErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := noRetry(New(srv.URL, "k", "tok"))
	if _, err := p.ListItems(context.Background(), "board-1"); !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
	if calls != 1 {
		t.Errorf("auth failure retried %d times", calls)
	}
}

func TestValidate(t *testing.T) {
	if err := New("", "", "").Validate(); err == nil {
		t.Error("missing credentials should fail validation")
	}
	if err := New("", "k", "tok").Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

package lineworks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/nudge/internal/chat"
)

func TestSendDirect(t *testing.T) {
	var gotPath, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var msg textMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		gotText = msg.Content.Text
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g, err := New(srv.URL, "bot-1", "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SendDirect(context.Background(), "user@corp", "deadline in 3 days"); err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if gotPath != "/v1.0/bots/bot-1/users/user@corp/messages" {
		t.Errorf("path = %s", gotPath)
	}
	if gotText != "deadline in 3 days" {
		t.Errorf("text = %q", gotText)
	}
}

func TestSendChannel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g, err := New(srv.URL, "bot-1", "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.SendChannel(context.Background(), "ch-9", "report"); err != nil {
		t.Fatalf("SendChannel: %v", err)
	}
	if gotPath != "/v1.0/bots/bot-1/channels/ch-9/messages" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g, err := New(srv.URL, "bot-1", "tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	if err := g.SendDirect(context.Background(), "u", "x"); !errors.Is(err, chat.ErrSendFailed) {
		t.Errorf("got %v, want ErrSendFailed", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("", "", "tok"); err == nil {
		t.Error("missing bot id should fail")
	}
	if _, err := New("", "bot", ""); err == nil {
		t.Error("missing token should fail")
	}
}

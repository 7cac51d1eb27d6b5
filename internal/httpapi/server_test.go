package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/dispatch"
	"github.com/steveyegge/nudge/internal/engage"
	"github.com/steveyegge/nudge/internal/provider"
	"github.com/steveyegge/nudge/internal/report"
	"github.com/steveyegge/nudge/internal/scheduler"
	"github.com/steveyegge/nudge/internal/storage/sqlite"
	"github.com/steveyegge/nudge/internal/syncer"
	"github.com/steveyegge/nudge/internal/types"
)

func newServer(t *testing.T, cfg Config) (*Server, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "nudge.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	gateways := chat.Registry{}
	sched := scheduler.New(
		store,
		syncer.New(store, provider.NewRegistry()),
		dispatch.New(store, gateways, "https://nudge.example"),
		report.New(store, gateways, "http://nudge.test"),
		scheduler.Options{},
	)
	return NewServer(engage.New(store), sched, cfg), store
}

func seedMessage(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.CreateCompany(ctx, &types.Company{
		ID: "c1", Name: "Acme", Timezone: "UTC", ChatTool: types.ChatSlack,
	}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if err := store.CreateTodo(ctx, &types.Todo{
		ID: "td-1", CompanyID: "c1", ProviderKey: "trello", ProviderID: "card-1",
		ProviderURL: "https://trello.example/c/card-1", Title: "Ship it",
	}); err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if err := store.CreateMessage(ctx, &types.Message{
		ID: "m1", CompanyID: "c1", TodoID: "td-1", UserID: "u1",
		Kind: types.KindReminder, Token: "tok-secret", SentAt: time.Now(),
	}); err != nil {
		t.Fatalf("create message: %v", err)
	}
}

func TestRedirect(t *testing.T) {
	srv, store := newServer(t, Config{})
	seedMessage(t, store)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/redirect/td-1/tok-secret", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://trello.example/c/card-1" {
		t.Errorf("Location = %q", loc)
	}

	msg, err := store.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.URLClickedAt == nil {
		t.Error("click not recorded")
	}
}

func TestRedirectNotFound(t *testing.T) {
	srv, store := newServer(t, Config{})
	seedMessage(t, store)
	handler := srv.Handler()

	for _, path := range []string{
		"/redirect/td-1/tok-wrong",
		"/redirect/td-unknown/tok-secret",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestRespond(t *testing.T) {
	srv, store := newServer(t, Config{})
	seedMessage(t, store)
	ctx := context.Background()
	if err := store.CreateMessage(ctx, &types.Message{
		ID: "m2", CompanyID: "c1", UserID: "u1",
		Kind: types.KindProspect, Token: "tok-prompt", SentAt: time.Now(),
	}); err != nil {
		t.Fatalf("create prompt: %v", err)
	}
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/respond/tok-prompt",
		strings.NewReader(`{"level":2,"text":"on track"}`)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	msg, err := store.GetMessage(ctx, "m2")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !msg.IsReplied {
		t.Error("prompt not marked replied")
	}
	resps, err := store.ListProspectResponses(ctx, "c1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListProspectResponses: %v", err)
	}
	if len(resps) != 1 || resps[0].Level != 2 {
		t.Errorf("responses = %+v", resps)
	}
}

func TestRespondRejects(t *testing.T) {
	srv, store := newServer(t, Config{})
	seedMessage(t, store)
	handler := srv.Handler()

	cases := []struct {
		path, body string
		want       int
	}{
		{"/respond/tok-unknown", `{"level":2}`, http.StatusNotFound},
		{"/respond/tok-secret", `{"level":2}`, http.StatusNotFound}, // reminder token
		{"/respond/tok-secret", `{"level":9}`, http.StatusBadRequest},
		{"/respond/tok-secret", `not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Errorf("%s %s: status = %d, want %d", tc.path, tc.body, rec.Code, tc.want)
		}
	}
}

func TestCronCycleAuth(t *testing.T) {
	srv, _ := newServer(t, Config{CronToken: "secret"})
	handler := srv.Handler()

	// No credentials.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cron/cycle", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", rec.Code)
	}

	// Bearer token.
	req := httptest.NewRequest(http.MethodPost, "/cron/cycle", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want 200", rec.Code)
	}

	// App Engine cron header.
	req = httptest.NewRequest(http.MethodPost, "/cron/cycle", nil)
	req.Header.Set("X-Appengine-Cron", "true")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cron header: status = %d, want 200", rec.Code)
	}
}

func TestCronOnlyRejectsBearer(t *testing.T) {
	srv, _ := newServer(t, Config{CronToken: "secret", CronOnly: true})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/cron/cycle", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when cron-only", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/cron/cycle", nil)
	req.Header.Set("X-Appengine-Cron", "true")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for platform cron", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, Config{})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

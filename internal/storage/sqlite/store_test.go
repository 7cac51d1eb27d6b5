package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nudge.db")
	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCompany(t *testing.T, store *Store, id string) *types.Company {
	t.Helper()
	company := &types.Company{
		ID:       id,
		Name:     "Test Co " + id,
		Timezone: "Asia/Tokyo",
		ChatTool: types.ChatSlack,
	}
	if err := store.CreateCompany(context.Background(), company); err != nil {
		t.Fatalf("failed to create company: %v", err)
	}
	return company
}

func seedTodo(t *testing.T, store *Store, companyID, providerID string, deadline *time.Time) *types.Todo {
	t.Helper()
	todo := &types.Todo{
		ID:          "td-" + providerID,
		CompanyID:   companyID,
		ProviderKey: "trello",
		ProviderID:  providerID,
		ProviderURL: "https://trello.example/c/" + providerID,
		Title:       "Todo " + providerID,
		Deadline:    deadline,
	}
	if err := store.CreateTodo(context.Background(), todo); err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}
	return todo
}

func TestCompanyRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	company := seedCompany(t, store, "c1")

	got, err := store.GetCompany(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCompany: %v", err)
	}
	if got.Name != company.Name || got.Timezone != "Asia/Tokyo" || got.ChatTool != types.ChatSlack {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := store.GetCompany(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing company: got %v, want ErrNotFound", err)
	}

	seedCompany(t, store, "c2")
	companies, err := store.ListCompanies(ctx)
	if err != nil {
		t.Fatalf("ListCompanies: %v", err)
	}
	if len(companies) != 2 {
		t.Errorf("ListCompanies = %d companies, want 2", len(companies))
	}
}

func TestSectionAndUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")

	section := &types.Section{
		ID: "s1", CompanyID: "c1", Name: "Dev board",
		ProviderKey: "trello", BoardRef: "board-1",
	}
	if err := store.CreateSection(ctx, section); err != nil {
		t.Fatalf("CreateSection: %v", err)
	}
	sections, err := store.ListSections(ctx, "c1")
	if err != nil {
		t.Fatalf("ListSections: %v", err)
	}
	if len(sections) != 1 || sections[0].BoardRef != "board-1" {
		t.Errorf("sections = %+v", sections)
	}

	user := &types.User{
		ID: "u1", CompanyID: "c1", Name: "Mika",
		ChatIdentity: "U123",
		ProviderIDs:  map[string]string{"trello": "mika_t"},
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.ProviderIDs["trello"] != "mika_t" || got.ChatIdentity != "U123" {
		t.Errorf("user round trip mismatch: %+v", got)
	}
}

func TestTodoRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")

	deadline := time.Date(2026, 9, 10, 15, 0, 0, 0, time.UTC)
	todo := seedTodo(t, store, "c1", "card-1", &deadline)
	todo.Assignees = []string{"u1", "u2"}
	if err := store.UpdateTodo(ctx, todo); err != nil {
		t.Fatalf("UpdateTodo: %v", err)
	}

	got, err := store.GetTodoByProviderID(ctx, "c1", "trello", "card-1")
	if err != nil {
		t.Fatalf("GetTodoByProviderID: %v", err)
	}
	if got.ID != todo.ID {
		t.Errorf("provider lookup returned %s, want %s", got.ID, todo.ID)
	}
	if len(got.Assignees) != 2 {
		t.Errorf("assignees = %v", got.Assignees)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", got.Deadline, deadline)
	}

	if _, err := store.GetTodoByProviderID(ctx, "c1", "trello", "card-x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing todo: got %v, want ErrNotFound", err)
	}

	// Duplicate provider identity must be rejected by the unique index.
	dup := &types.Todo{
		ID: "td-dup", CompanyID: "c1", ProviderKey: "trello", ProviderID: "card-1",
		Title: "dup",
	}
	if err := store.CreateTodo(ctx, dup); err == nil {
		t.Error("duplicate provider identity should fail")
	}
}

func TestListTodosFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")

	deadline := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	open := seedTodo(t, store, "c1", "card-1", &deadline)
	open.Assignees = []string{"u1"}
	if err := store.UpdateTodo(ctx, open); err != nil {
		t.Fatalf("UpdateTodo: %v", err)
	}
	seedTodo(t, store, "c1", "card-2", nil)

	closedAt := time.Now()
	closed := seedTodo(t, store, "c1", "card-3", &deadline)
	closed.IsClosed = true
	closed.ClosedAt = &closedAt
	if err := store.UpdateTodo(ctx, closed); err != nil {
		t.Fatalf("close todo: %v", err)
	}

	isOpen := false
	hasDeadline := true
	todos, err := store.ListTodos(ctx, types.TodoFilter{
		CompanyID:   "c1",
		IsClosed:    &isOpen,
		HasDeadline: &hasDeadline,
	})
	if err != nil {
		t.Fatalf("ListTodos: %v", err)
	}
	if len(todos) != 1 || todos[0].ID != open.ID {
		t.Errorf("open+deadline filter = %+v", todos)
	}

	todos, err = store.ListTodos(ctx, types.TodoFilter{CompanyID: "c1", Assignee: "u1"})
	if err != nil {
		t.Fatalf("ListTodos by assignee: %v", err)
	}
	if len(todos) != 1 || todos[0].ID != open.ID {
		t.Errorf("assignee filter = %+v", todos)
	}
}

func TestTodoHistoryAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")
	todo := seedTodo(t, store, "c1", "card-1", nil)

	if _, err := store.LatestTodoHistory(ctx, todo.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("empty history: got %v, want ErrNotFound", err)
	}

	t1 := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	for _, h := range []*types.TodoHistory{
		{TodoID: todo.ID, UpdatedAt: t1, Editor: "alice"},
		{TodoID: todo.ID, UpdatedAt: t2, Editor: "bob"},
	} {
		if err := store.AddTodoHistory(ctx, h); err != nil {
			t.Fatalf("AddTodoHistory: %v", err)
		}
	}

	latest, err := store.LatestTodoHistory(ctx, todo.ID)
	if err != nil {
		t.Fatalf("LatestTodoHistory: %v", err)
	}
	if !latest.UpdatedAt.Equal(t2) || latest.Editor != "bob" {
		t.Errorf("latest = %+v, want bob@%v", latest, t2)
	}

	n, err := store.CountTodoHistory(ctx, todo.ID)
	if err != nil {
		t.Fatalf("CountTodoHistory: %v", err)
	}
	if n != 2 {
		t.Errorf("history count = %d, want 2", n)
	}
}

func TestRemindConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")

	cfg := &types.RemindConfig{
		CompanyID:           "c1",
		BeforeDays:          []int{0, 1, 3},
		ReportAfterRecovery: true,
		Timings: []types.Timing{
			{ID: "t1", At: "09:00", IntervalMin: 30},
			{ID: "t2", At: "18:00", IntervalMin: 30},
		},
	}
	if err := store.SaveRemindConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveRemindConfig: %v", err)
	}

	got, err := store.GetRemindConfig(ctx, "c1")
	if err != nil {
		t.Fatalf("GetRemindConfig: %v", err)
	}
	if len(got.BeforeDays) != 3 || !got.ReportAfterRecovery || len(got.Timings) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Malformed timings are rejected at save, never at match time.
	bad := &types.RemindConfig{
		CompanyID: "c1",
		Timings:   []types.Timing{{ID: "t3", At: "9am", IntervalMin: 30}},
	}
	if err := store.SaveRemindConfig(ctx, bad); err == nil {
		t.Error("malformed timing should be rejected at save")
	}

	// A company with no config gets an empty one.
	seedCompany(t, store, "c2")
	empty, err := store.GetRemindConfig(ctx, "c2")
	if err != nil {
		t.Fatalf("GetRemindConfig for unconfigured company: %v", err)
	}
	if len(empty.BeforeDays) != 0 || len(empty.Timings) != 0 {
		t.Errorf("unconfigured company config = %+v", empty)
	}
}

func TestProspectAndStatusConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")

	pcfg := &types.ProspectConfig{
		CompanyID:     "c1",
		PromptTimings: []types.Timing{{ID: "p1", At: "10:00", IntervalMin: 60}},
		ReportTimings: []types.Timing{{ID: "r1", At: "17:00", IntervalMin: 60}},
	}
	if err := store.SaveProspectConfig(ctx, pcfg); err != nil {
		t.Fatalf("SaveProspectConfig: %v", err)
	}
	gotP, err := store.GetProspectConfig(ctx, "c1")
	if err != nil {
		t.Fatalf("GetProspectConfig: %v", err)
	}
	if len(gotP.PromptTimings) != 1 || len(gotP.ReportTimings) != 1 {
		t.Errorf("prospect round trip mismatch: %+v", gotP)
	}

	scfg := &types.StatusConfig{
		CompanyID: "c1",
		Labels:    []string{"smooth", "minor", "watch", "risk", "severe"},
	}
	if err := store.SaveStatusConfig(ctx, scfg); err != nil {
		t.Fatalf("SaveStatusConfig: %v", err)
	}
	gotS, err := store.GetStatusConfig(ctx, "c1")
	if err != nil {
		t.Fatalf("GetStatusConfig: %v", err)
	}
	if gotS.Label(5) != "severe" {
		t.Errorf("Label(5) = %q", gotS.Label(5))
	}
}

func TestCreateRemindJobIdempotency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &types.RemindUserJob{
		CompanyID: "c1", UserID: "u1", TodoID: "td-1",
		TimingID: "t1", Day: "2026-09-01", OffsetDays: 3,
	}
	if err := store.CreateRemindJob(ctx, job); err != nil {
		t.Fatalf("first CreateRemindJob: %v", err)
	}
	if job.ID == 0 {
		t.Error("job id not populated")
	}

	dup := &types.RemindUserJob{
		CompanyID: "c1", UserID: "u1", TodoID: "td-1",
		TimingID: "t1", Day: "2026-09-01", OffsetDays: 3,
	}
	if err := store.CreateRemindJob(ctx, dup); !errors.Is(err, storage.ErrDuplicateJob) {
		t.Fatalf("duplicate job: got %v, want ErrDuplicateJob", err)
	}

	// Different offset on the same day is a distinct key.
	other := &types.RemindUserJob{
		CompanyID: "c1", UserID: "u1", TodoID: "td-1",
		TimingID: "t1", Day: "2026-09-01", OffsetDays: 0,
	}
	if err := store.CreateRemindJob(ctx, other); err != nil {
		t.Fatalf("distinct offset rejected: %v", err)
	}

	// A recovery job sharing every other key field is also distinct.
	recovery := &types.RemindUserJob{
		CompanyID: "c1", UserID: "u1", TodoID: "td-1",
		TimingID: "t1", Day: "2026-09-01", OffsetDays: 3,
		Kind: types.KindRecovery,
	}
	if err := store.CreateRemindJob(ctx, recovery); err != nil {
		t.Fatalf("distinct kind rejected: %v", err)
	}
	if err := store.CreateRemindJob(ctx, &types.RemindUserJob{
		CompanyID: "c1", UserID: "u1", TodoID: "td-1",
		TimingID: "t1", Day: "2026-09-01", OffsetDays: 3,
		Kind: types.KindRecovery,
	}); !errors.Is(err, storage.ErrDuplicateJob) {
		t.Fatalf("duplicate recovery job: got %v, want ErrDuplicateJob", err)
	}
}

func TestCreateRemindJobConcurrentRace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.CreateRemindJob(ctx, &types.RemindUserJob{
				CompanyID: "c1", UserID: "u1", TodoID: "td-race",
				TimingID: "t1", Day: "2026-09-01", OffsetDays: 0,
			})
		}(i)
	}
	wg.Wait()

	var created, duplicate int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, storage.ErrDuplicateJob):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if duplicate != racers-1 {
		t.Errorf("duplicate = %d, want %d", duplicate, racers-1)
	}
}

func TestMessageClickWriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := &types.Message{
		ID: "m1", CompanyID: "c1", TodoID: "td-1", UserID: "u1",
		Kind: types.KindReminder, Token: "tok-abc",
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	first := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	if err := store.MarkMessageClicked(ctx, "m1", first); err != nil {
		t.Fatalf("first MarkMessageClicked: %v", err)
	}
	// A later click must not move the timestamp.
	if err := store.MarkMessageClicked(ctx, "m1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second MarkMessageClicked: %v", err)
	}

	got, err := store.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.URLClickedAt == nil || !got.URLClickedAt.Equal(first) {
		t.Errorf("url_clicked_at = %v, want %v", got.URLClickedAt, first)
	}
}

func TestMessageFailureAndListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	for i, tok := range []string{"tok-1", "tok-2"} {
		msg := &types.Message{
			ID: "m" + tok, CompanyID: "c1", TodoID: "td-1", UserID: "u1",
			Kind: types.KindReminder, Token: tok,
			SentAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	if err := store.MarkMessageFailed(ctx, "mtok-2", base.Add(2*time.Minute), "rate limited"); err != nil {
		t.Fatalf("MarkMessageFailed: %v", err)
	}

	msgs, err := store.ListMessagesByTodo(ctx, "td-1")
	if err != nil {
		t.Fatalf("ListMessagesByTodo: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[1].FailedAt == nil || msgs[1].FailReason != "rate limited" {
		t.Errorf("failure not recorded: %+v", msgs[1])
	}

	since, err := store.ListMessagesSince(ctx, "c1", types.KindReminder, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("ListMessagesSince: %v", err)
	}
	if len(since) != 1 || since[0].Token != "tok-2" {
		t.Errorf("since filter = %+v", since)
	}

	byToken, err := store.GetMessageByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetMessageByToken: %v", err)
	}
	if byToken.ID != "mtok-1" {
		t.Errorf("by token = %+v", byToken)
	}
	if _, err := store.GetMessageByToken(ctx, "tok-none"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown token: got %v, want ErrNotFound", err)
	}

	// Duplicate token must be rejected: tokens are never reused.
	dup := &types.Message{
		ID: "m3", CompanyID: "c1", TodoID: "td-2", UserID: "u1",
		Kind: types.KindReminder, Token: "tok-1",
	}
	if err := store.CreateMessage(ctx, dup); err == nil {
		t.Error("duplicate token should fail")
	}
}

func TestProspectResponses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCompany(t, store, "c1")

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i, level := range []int{1, 3, 5} {
		resp := &types.ProspectResponse{
			CompanyID: "c1", UserID: "u1", Level: level,
			RespondedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := store.AddProspectResponse(ctx, resp); err != nil {
			t.Fatalf("AddProspectResponse: %v", err)
		}
	}

	got, err := store.ListProspectResponses(ctx, "c1", base, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListProspectResponses: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("responses in window = %d, want 2", len(got))
	}

	bad := &types.ProspectResponse{CompanyID: "c1", UserID: "u1", Level: 7}
	if err := store.AddProspectResponse(ctx, bad); err == nil {
		t.Error("invalid level should be rejected")
	}
}

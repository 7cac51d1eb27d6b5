package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/dispatch"
	"github.com/steveyegge/nudge/internal/provider"
	"github.com/steveyegge/nudge/internal/report"
	"github.com/steveyegge/nudge/internal/storage/sqlite"
	"github.com/steveyegge/nudge/internal/syncer"
	"github.com/steveyegge/nudge/internal/types"
)

type fakeProvider struct {
	items map[string][]provider.Item
}

func (f *fakeProvider) Name() string        { return "trello" }
func (f *fakeProvider) DisplayName() string { return "Trello" }
func (f *fakeProvider) Validate() error     { return nil }
func (f *fakeProvider) Close() error        { return nil }
func (f *fakeProvider) ListItems(ctx context.Context, boardRef string) ([]provider.Item, error) {
	return f.items[boardRef], nil
}

type fakeGateway struct {
	directs []string
}

func (f *fakeGateway) Tool() types.ChatTool { return types.ChatSlack }
func (f *fakeGateway) Close() error         { return nil }
func (f *fakeGateway) SendDirect(ctx context.Context, chatIdentity, text string) error {
	f.directs = append(f.directs, chatIdentity)
	return nil
}
func (f *fakeGateway) SendChannel(ctx context.Context, channel, text string) error {
	return nil
}

func newScheduler(t *testing.T) (*Scheduler, *sqlite.Store, *fakeProvider, *fakeGateway) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "nudge.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.CreateCompany(ctx, &types.Company{
		ID: "c1", Name: "Acme", Timezone: "UTC", ChatTool: types.ChatSlack,
	}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if err := store.CreateSection(ctx, &types.Section{
		ID: "s1", CompanyID: "c1", Name: "Main", ProviderKey: "trello", BoardRef: "b1",
	}); err != nil {
		t.Fatalf("create section: %v", err)
	}
	if err := store.CreateUser(ctx, &types.User{
		ID: "u1", CompanyID: "c1", Name: "Alice",
		ChatIdentity: "U1", ProviderIDs: map[string]string{"trello": "m1"},
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := store.SaveRemindConfig(ctx, &types.RemindConfig{
		CompanyID:  "c1",
		BeforeDays: []int{0, 3},
		Timings:    []types.Timing{{ID: "t1", At: "09:00", IntervalMin: 30}},
	}); err != nil {
		t.Fatalf("save remind config: %v", err)
	}

	fake := &fakeProvider{items: map[string][]provider.Item{}}
	reg := provider.NewRegistry()
	if err := reg.Register(fake); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	gateway := &fakeGateway{}
	gateways := chat.Registry{types.ChatSlack: gateway}

	sched := New(
		store,
		syncer.New(store, reg),
		dispatch.New(store, gateways, "https://nudge.example"),
		report.New(store, gateways, "http://nudge.test"),
		Options{MaxConcurrentCompanies: 2},
	)
	return sched, store, fake, gateway
}

func TestRunCycleSyncPlanDispatch(t *testing.T) {
	sched, store, fake, gateway := newScheduler(t)
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 9, 10, 0, 0, time.UTC)
	sched.now = func() time.Time { return now }

	deadline := time.Date(2026, 9, 4, 18, 0, 0, 0, time.UTC)
	fake.items["b1"] = []provider.Item{{
		ID: "card-1", URL: "https://trello.example/c/card-1", Title: "Ship it",
		Assignees: []string{"m1"}, Deadline: &deadline,
		UpdatedAt: now.Add(-time.Hour),
	}}

	summary, err := sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Companies != 1 || summary.CompanyErrors != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
	if summary.Sent != 1 {
		t.Errorf("sent = %d, want 1", summary.Sent)
	}
	if len(gateway.directs) != 1 || gateway.directs[0] != "U1" {
		t.Errorf("directs = %v", gateway.directs)
	}

	todo, err := store.GetTodoByProviderID(ctx, "c1", "trello", "card-1")
	if err != nil {
		t.Fatalf("lookup todo: %v", err)
	}
	if todo.ReminderCount != 1 {
		t.Errorf("reminderCount = %d, want 1", todo.ReminderCount)
	}

	// A second invocation inside the same window re-plans but the job
	// table suppresses the send.
	sched.now = func() time.Time { return now.Add(5 * time.Minute) }
	summary, err = sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if summary.Sent != 0 || summary.AlreadySent != 1 {
		t.Errorf("second summary = %+v", summary)
	}
	if len(gateway.directs) != 1 {
		t.Errorf("duplicate send: %v", gateway.directs)
	}
}

func TestRunCycleOffWindow(t *testing.T) {
	sched, _, fake, gateway := newScheduler(t)
	ctx := context.Background()

	// 11:10 does not floor to any configured timing, so sync runs but
	// nothing dispatches.
	now := time.Date(2026, 9, 1, 11, 10, 0, 0, time.UTC)
	sched.now = func() time.Time { return now }

	deadline := time.Date(2026, 9, 4, 18, 0, 0, 0, time.UTC)
	fake.items["b1"] = []provider.Item{{
		ID: "card-1", URL: "https://trello.example/c/card-1", Title: "Ship it",
		Assignees: []string{"m1"}, Deadline: &deadline,
		UpdatedAt: now.Add(-time.Hour),
	}}

	summary, err := sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
	if summary.Sent != 0 || len(gateway.directs) != 0 {
		t.Errorf("off-window dispatch: %+v, %v", summary, gateway.directs)
	}
}

func TestRunCycleCompanyIsolation(t *testing.T) {
	sched, store, fake, _ := newScheduler(t)
	ctx := context.Background()

	// Second company with a broken timezone: it fails, c1 still runs.
	if err := store.CreateCompany(ctx, &types.Company{
		ID: "c2", Name: "Broken", Timezone: "UTC", ChatTool: types.ChatSlack,
	}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if err := store.CreateSection(ctx, &types.Section{
		ID: "s2", CompanyID: "c2", Name: "Other", ProviderKey: "unregistered", BoardRef: "bx",
	}); err != nil {
		t.Fatalf("create section: %v", err)
	}

	now := time.Date(2026, 9, 1, 9, 10, 0, 0, time.UTC)
	sched.now = func() time.Time { return now }

	deadline := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	fake.items["b1"] = []provider.Item{{
		ID: "card-1", URL: "https://trello.example/c/card-1", Title: "Due today",
		Assignees: []string{"m1"}, Deadline: &deadline,
		UpdatedAt: now.Add(-time.Hour),
	}}

	summary, err := sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Companies != 2 {
		t.Errorf("companies = %d", summary.Companies)
	}
	if summary.CompanyErrors == 0 {
		t.Error("expected a company error for the unregistered provider")
	}
	if summary.Created != 1 || summary.Sent != 1 {
		t.Errorf("healthy company affected: %+v", summary)
	}
}

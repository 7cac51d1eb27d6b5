// Package scheduler drives one scheduling cycle: per-company sync, plan,
// dispatch, then the prospect step. Companies fan out concurrently under
// a bounded errgroup since they share no mutable state; all work for one
// company runs serialized to respect provider rate limits.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/nudge/internal/dispatch"
	"github.com/steveyegge/nudge/internal/planner"
	"github.com/steveyegge/nudge/internal/report"
	"github.com/steveyegge/nudge/internal/storage"
	"github.com/steveyegge/nudge/internal/syncer"
	"github.com/steveyegge/nudge/internal/telemetry"
	"github.com/steveyegge/nudge/internal/timing"
	"github.com/steveyegge/nudge/internal/types"
)

// CycleSummary aggregates what one cycle did across all companies.
type CycleSummary struct {
	Companies     int
	CompanyErrors int

	Created int
	Updated int
	Closed  int
	Skipped int

	Sent        int
	AlreadySent int
	SendFailed  int

	Prompts int
	Reports int
}

// Scheduler owns the cycle loop over all companies.
type Scheduler struct {
	store      storage.Storage
	syncer     *syncer.Syncer
	dispatcher *dispatch.Coordinator
	reports    *report.Aggregator

	maxConcurrent  int
	companyTimeout time.Duration
	reportPeriod   time.Duration

	metrics *telemetry.CycleMetrics
	now     func() time.Time
}

// Options bound the cycle's concurrency and per-company budget.
type Options struct {
	MaxConcurrentCompanies int
	CompanyTimeout         time.Duration
	ReportPeriod           time.Duration
}

func New(store storage.Storage, sync *syncer.Syncer, disp *dispatch.Coordinator, reports *report.Aggregator, opts Options) *Scheduler {
	if opts.MaxConcurrentCompanies <= 0 {
		opts.MaxConcurrentCompanies = 4
	}
	if opts.CompanyTimeout <= 0 {
		opts.CompanyTimeout = 2 * time.Minute
	}
	if opts.ReportPeriod <= 0 {
		opts.ReportPeriod = 7 * 24 * time.Hour
	}
	return &Scheduler{
		store:          store,
		syncer:         sync,
		dispatcher:     disp,
		reports:        reports,
		maxConcurrent:  opts.MaxConcurrentCompanies,
		companyTimeout: opts.CompanyTimeout,
		reportPeriod:   opts.ReportPeriod,
		metrics:        telemetry.NewCycleMetrics(),
		now:            time.Now,
	}
}

// RunCycle processes every company once. Per-company failures are logged
// and counted, never fatal to the cycle; a cancelled ctx abandons the
// remaining companies. Resumption next cycle is safe because the job
// table short-circuits anything already sent.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleSummary, error) {
	now := s.now()

	tracer := telemetry.Tracer("github.com/steveyegge/nudge/scheduler")
	ctx, span := tracer.Start(ctx, "cycle.run")
	defer span.End()

	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return CycleSummary{}, err
	}

	var (
		mu      sync.Mutex
		summary CycleSummary
	)
	summary.Companies = len(companies)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, company := range companies {
		company := company
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			cctx, cspan := tracer.Start(gctx, "cycle.company",
				trace.WithAttributes(attribute.String("nudge.company_id", company.ID)),
			)
			result, err := s.runCompany(cctx, company, now)
			if err != nil {
				cspan.RecordError(err)
				cspan.SetStatus(codes.Error, err.Error())
			}
			cspan.End()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("cycle: company=%s failed: %v", company.ID, err)
				summary.CompanyErrors++
			}
			summary.add(result)
			return nil
		})
	}
	_ = g.Wait()
	span.SetAttributes(
		attribute.Int("nudge.companies", summary.Companies),
		attribute.Int("nudge.sent", summary.Sent),
		attribute.Int("nudge.company_errors", summary.CompanyErrors),
	)
	s.metrics.RecordCycle(ctx, summary.Sent, summary.AlreadySent, summary.SendFailed, summary.CompanyErrors)
	return summary, ctx.Err()
}

// runCompany executes sync → plan → dispatch → prospect for one company.
// The ordering is load-bearing: dispatch obligations derive from
// post-sync todo state.
func (s *Scheduler) runCompany(ctx context.Context, company *types.Company, now time.Time) (CycleSummary, error) {
	var result CycleSummary

	ctx, cancel := context.WithTimeout(ctx, s.companyTimeout)
	defer cancel()

	loc, err := company.Location()
	if err != nil {
		return result, err
	}

	sections, err := s.store.ListSections(ctx, company.ID)
	if err != nil {
		return result, err
	}
	for _, key := range providerKeys(sections) {
		syncResult, err := s.syncer.Sync(ctx, company, key)
		if err != nil {
			// Planning still runs on last-known todo state.
			log.Printf("cycle: company=%s provider=%s sync failed: %v", company.ID, key, err)
			result.CompanyErrors++
			continue
		}
		result.Created += syncResult.Created
		result.Updated += syncResult.Updated
		result.Closed += syncResult.Closed
		result.Skipped += syncResult.Skipped
	}

	cfg, err := s.store.GetRemindConfig(ctx, company.ID)
	if err != nil {
		return result, err
	}
	for _, tm := range timing.Due(cfg.Timings, now, loc) {
		open := false
		todos, err := s.store.ListTodos(ctx, types.TodoFilter{CompanyID: company.ID, IsClosed: &open})
		if err != nil {
			return result, err
		}
		obligations, err := planner.Plan(company, todos, cfg, now)
		if err != nil {
			return result, err
		}
		batch, err := s.dispatcher.DispatchBatch(ctx, company, obligations, tm)
		result.Sent += batch.Sent
		result.AlreadySent += batch.AlreadySent
		result.SendFailed += batch.Failed
		if err != nil {
			return result, err
		}
	}

	prompts, err := s.reports.PromptDue(ctx, company, now)
	result.Prompts += prompts
	if err != nil {
		return result, err
	}
	delivered, err := s.reports.ReportDue(ctx, company, now, s.reportPeriod)
	if delivered {
		result.Reports++
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *CycleSummary) add(o CycleSummary) {
	s.CompanyErrors += o.CompanyErrors
	s.Created += o.Created
	s.Updated += o.Updated
	s.Closed += o.Closed
	s.Skipped += o.Skipped
	s.Sent += o.Sent
	s.AlreadySent += o.AlreadySent
	s.SendFailed += o.SendFailed
	s.Prompts += o.Prompts
	s.Reports += o.Reports
}

// providerKeys returns the distinct provider keys bound by sections,
// preserving first-seen order.
func providerKeys(sections []*types.Section) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, sec := range sections {
		if !seen[sec.ProviderKey] {
			seen[sec.ProviderKey] = true
			keys = append(keys, sec.ProviderKey)
		}
	}
	return keys
}

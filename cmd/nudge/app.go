package main

import (
	"context"
	"fmt"
	"log"

	"github.com/steveyegge/nudge/internal/chat"
	"github.com/steveyegge/nudge/internal/config"
	"github.com/steveyegge/nudge/internal/dispatch"
	"github.com/steveyegge/nudge/internal/engage"
	"github.com/steveyegge/nudge/internal/kanbanflow"
	"github.com/steveyegge/nudge/internal/lineworks"
	"github.com/steveyegge/nudge/internal/provider"
	"github.com/steveyegge/nudge/internal/report"
	"github.com/steveyegge/nudge/internal/scheduler"
	"github.com/steveyegge/nudge/internal/slackgw"
	"github.com/steveyegge/nudge/internal/storage/sqlite"
	"github.com/steveyegge/nudge/internal/syncer"
	"github.com/steveyegge/nudge/internal/telemetry"
	"github.com/steveyegge/nudge/internal/trello"
	"github.com/steveyegge/nudge/internal/types"
	"github.com/steveyegge/nudge/internal/vikunja"
)

// app holds the wired service graph shared by the serve, cycle and
// sync commands.
type app struct {
	cfg       *config.Config
	store     *sqlite.Store
	providers *provider.Registry
	gateways  chat.Registry
	syncer    *syncer.Syncer
	sched     *scheduler.Scheduler
	tracker   *engage.Tracker
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	if err := telemetry.Init(ctx, "nudge", version); err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}

	providers := provider.NewRegistry()
	if cfg.Trello.APIKey != "" && cfg.Trello.APIToken != "" {
		if err := providers.Register(trello.New("", cfg.Trello.APIKey, cfg.Trello.APIToken)); err != nil {
			return nil, err
		}
	}
	if cfg.KanbanFlow.APIToken != "" {
		if err := providers.Register(kanbanflow.New("", cfg.KanbanFlow.APIToken)); err != nil {
			return nil, err
		}
	}
	if cfg.Vikunja.BaseURL != "" && cfg.Vikunja.APIToken != "" {
		if err := providers.Register(vikunja.New(cfg.Vikunja.BaseURL, cfg.Vikunja.APIToken)); err != nil {
			return nil, err
		}
	}
	if len(providers.Names()) == 0 {
		log.Printf("app: no task providers configured")
	}

	gateways := chat.Registry{}
	if cfg.Slack.BotToken != "" {
		gw, err := slackgw.New(cfg.Slack.BotToken)
		if err != nil {
			return nil, fmt.Errorf("slack gateway: %w", err)
		}
		gateways[types.ChatSlack] = gw
	}
	if cfg.LineWorks.BotID != "" && cfg.LineWorks.AccessToken != "" {
		gw, err := lineworks.New("", cfg.LineWorks.BotID, cfg.LineWorks.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("lineworks gateway: %w", err)
		}
		gateways[types.ChatLineWorks] = gw
	}

	sync := syncer.New(store, providers)
	coord := dispatch.New(store, gateways, cfg.BaseURL)
	agg := report.New(store, gateways, cfg.BaseURL)

	sched := scheduler.New(store, sync, coord, agg, scheduler.Options{
		MaxConcurrentCompanies: cfg.MaxConcurrentCompanies,
		CompanyTimeout:         cfg.CompanyTimeout,
		ReportPeriod:           cfg.ReportPeriod,
	})

	return &app{
		cfg:       cfg,
		store:     store,
		providers: providers,
		gateways:  gateways,
		syncer:    sync,
		sched:     sched,
		tracker:   engage.New(store),
	}, nil
}

func (a *app) Close(ctx context.Context) {
	for _, gw := range a.gateways {
		if err := gw.Close(); err != nil {
			log.Printf("app: close %s gateway: %v", gw.Tool(), err)
		}
	}
	if err := a.providers.Close(); err != nil {
		log.Printf("app: close providers: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("app: close store: %v", err)
	}
	telemetry.Shutdown(ctx)
}

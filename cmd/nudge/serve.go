package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/nudge/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (redirect tracking and cron endpoints)",
	Long: `Serve starts the HTTP server. Reminder cycles are driven externally
by POSTing to /cron/cycle, so a scheduler such as App Engine cron or a
systemd timer controls the cadence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close(cmd.Context())

		srv := httpapi.NewServer(app.tracker, app.sched, httpapi.Config{
			Addr:      app.cfg.ListenAddr,
			CronToken: app.cfg.CronToken,
			CronOnly:  app.cfg.CronOnly,
		})
		return srv.Start(ctx)
	},
}

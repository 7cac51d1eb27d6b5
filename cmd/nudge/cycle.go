package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one reminder cycle and exit",
	Long: `Cycle syncs every company, dispatches due reminders and reports, then
prints a summary. Useful for local testing and one-shot cron setups that
invoke the binary instead of the HTTP endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		summary, err := app.sched.RunCycle(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

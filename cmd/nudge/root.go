package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Task reminder service for external kanban boards",
	Long: `nudge syncs todos from task providers (Trello, KanbanFlow, Vikunja), tracks
deadline history, and delivers reminders and status reports through
chat gateways (Slack, LINE WORKS) on per-company schedules.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the nudge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nudge %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory containing nudge.yaml (default: working directory)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(redirectURLCmd)
}

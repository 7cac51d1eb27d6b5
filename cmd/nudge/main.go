// nudge is a cross-provider task-reminder service: it syncs todos from
// external task boards, schedules deadline reminders per company
// timezone, and delivers them through chat gateways.
package main

import (
	"fmt"
	"os"
)

var version = "0.3.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nudge: %v\n", err)
		os.Exit(1)
	}
}

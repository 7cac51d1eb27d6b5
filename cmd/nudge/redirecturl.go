package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var redirectURLCmd = &cobra.Command{
	Use:   "redirect-url <todo-id>",
	Short: "Print the tracked redirect links sent for a todo",
	Long: `Redirect-url lists every message sent for a todo with its tracked
link and click state. Useful when debugging why a reminder shows as
unopened.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		msgs, err := app.store.ListMessagesByTodo(ctx, args[0])
		if err != nil {
			return fmt.Errorf("messages for %s: %w", args[0], err)
		}
		edits, err := app.store.CountTodoHistory(ctx, args[0])
		if err != nil {
			return fmt.Errorf("history for %s: %w", args[0], err)
		}
		fmt.Printf("todo %s: %d provider edits observed\n", args[0], edits)
		if len(msgs) == 0 {
			fmt.Printf("no messages for todo %s\n", args[0])
			return nil
		}
		for _, msg := range msgs {
			clicked := "unopened"
			if msg.URLClickedAt != nil {
				clicked = "clicked " + msg.URLClickedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%s  %s/redirect/%s/%s  kind=%s user=%s sent=%s  %s\n",
				msg.ID, app.cfg.BaseURL, msg.TodoID, msg.Token, msg.Kind,
				msg.UserID, msg.SentAt.Format("2006-01-02 15:04"), clicked)
		}
		return nil
	},
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncProviderKey string

var syncCmd = &cobra.Command{
	Use:   "sync <company-id>",
	Short: "Sync one company's todos from its task providers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close(ctx)

		company, err := app.store.GetCompany(ctx, args[0])
		if err != nil {
			return fmt.Errorf("company %s: %w", args[0], err)
		}

		keys := []string{syncProviderKey}
		if syncProviderKey == "" {
			keys = app.providers.Names()
		}

		for _, key := range keys {
			result, err := app.syncer.Sync(ctx, company, key)
			if err != nil {
				return fmt.Errorf("sync %s/%s: %w", company.ID, key, err)
			}
			fmt.Printf("%s/%s: created=%d updated=%d closed=%d reopened=%d skipped=%d section_errors=%d\n",
				company.ID, key, result.Created, result.Updated, result.Closed,
				result.Reopened, result.Skipped, result.SectionErrors)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncProviderKey, "provider", "", "sync only this provider (default: all registered)")
}

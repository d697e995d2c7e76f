package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tgo/captain/knowdesk/internal/service"
)

var (
	askTenant   string
	askLanguage string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against a tenant's index",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askTenant, "tenant", "", "tenant id")
	askCmd.Flags().StringVar(&askLanguage, "lang", "", "preferred answer language (ISO 639-1)")
	_ = askCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	tenantID, err := uuid.Parse(askTenant)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Query.Ask(ctx, &service.QueryRequest{
		TenantID:          tenantID,
		Query:             args[0],
		PreferredLanguage: askLanguage,
	})
	if err != nil {
		return err
	}

	cmd.Printf("[%s] %s\n", resp.Language, resp.Answer)
	if len(resp.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, src := range resp.Sources {
			cmd.Printf("  [%d] %s - %s\n", i+1, src.Title, src.URL)
		}
	}
	return nil
}

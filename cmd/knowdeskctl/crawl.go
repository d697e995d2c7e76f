package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tgo/captain/knowdesk/internal/service"
)

var (
	crawlTenant      string
	crawlURL         string
	crawlMaxDepth    int
	crawlMaxPages    int
	crawlRateLimitMs int
	crawlDomains     []string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl a site into a tenant's index",
	Long: `Runs a breadth-first crawl from --url, storing changed pages for the tenant.
Pages whose content hash is unchanged are not re-embedded. Ctrl-C cancels the
crawl and reports what was ingested so far.`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlTenant, "tenant", "", "tenant id")
	crawlCmd.Flags().StringVar(&crawlURL, "url", "", "start url")
	crawlCmd.Flags().IntVar(&crawlMaxDepth, "max-depth", 0, "maximum link depth (0 uses the configured default)")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "maximum pages to visit (0 uses the configured cap)")
	crawlCmd.Flags().IntVar(&crawlRateLimitMs, "rate-limit-ms", -1, "minimum milliseconds between requests (-1 uses the configured default)")
	crawlCmd.Flags().StringSliceVar(&crawlDomains, "domain", nil, "restrict the crawl to these domains (repeatable)")
	_ = crawlCmd.MarkFlagRequired("tenant")
	_ = crawlCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	tenantID, err := uuid.Parse(crawlTenant)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := &service.CrawlRequest{
		StartURL:       crawlURL,
		MaxDepth:       crawlMaxDepth,
		MaxPages:       crawlMaxPages,
		AllowedDomains: crawlDomains,
	}
	if crawlRateLimitMs >= 0 {
		rl := crawlRateLimitMs
		req.RateLimitMs = &rl
	}

	result, crawlErr := a.Crawl.Crawl(ctx, tenantID, req)
	if result != nil {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
	}
	if crawlErr != nil {
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}
	return nil
}

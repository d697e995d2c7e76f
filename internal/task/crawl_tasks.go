package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/service"
)

const staleJobMessage = "interrupted: service restarted before the crawl finished"

type staleJobMarker interface {
	MarkStale(ctx context.Context, message string) (int64, error)
}

// StaleCrawlJobRecoveryTask fails crawl jobs left pending or in progress by
// a process that no longer exists. Run it once at startup, before any new
// job is accepted.
type StaleCrawlJobRecoveryTask struct {
	jobs   staleJobMarker
	logger *slog.Logger
}

func NewStaleCrawlJobRecoveryTask(jobs staleJobMarker) *StaleCrawlJobRecoveryTask {
	return &StaleCrawlJobRecoveryTask{
		jobs:   jobs,
		logger: slog.Default().With("component", "stale_crawl_job_recovery"),
	}
}

func (t *StaleCrawlJobRecoveryTask) Name() string {
	return "stale_crawl_job_recovery"
}

func (t *StaleCrawlJobRecoveryTask) Run(ctx context.Context) error {
	n, err := t.jobs.MarkStale(ctx, staleJobMessage)
	if err != nil {
		return fmt.Errorf("mark stale crawl jobs: %w", err)
	}
	if n > 0 {
		t.logger.Warn("marked stale crawl jobs as failed", "count", n)
	}
	return nil
}

type activeTenantLister interface {
	ListActive(ctx context.Context) ([]model.Tenant, error)
}

type crawler interface {
	Crawl(ctx context.Context, tenantID uuid.UUID, req *service.CrawlRequest) (*service.CrawlResult, error)
}

// TenantRecrawlTask crawls the seed URLs of every active tenant, one at a
// time. Change detection keeps unchanged pages from being re-embedded.
type TenantRecrawlTask struct {
	tenants activeTenantLister
	crawler crawler
	logger  *slog.Logger
}

func NewTenantRecrawlTask(tenants activeTenantLister, crawler crawler) *TenantRecrawlTask {
	return &TenantRecrawlTask{
		tenants: tenants,
		crawler: crawler,
		logger:  slog.Default().With("component", "tenant_recrawl"),
	}
}

func (t *TenantRecrawlTask) Name() string {
	return "tenant_recrawl"
}

func (t *TenantRecrawlTask) Run(ctx context.Context) error {
	tenants, err := t.tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	var errs []error
	for _, tenant := range tenants {
		for _, seed := range tenant.SeedURLs {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			res, err := t.crawler.Crawl(ctx, tenant.ID, &service.CrawlRequest{StartURL: seed})
			if err != nil {
				errs = append(errs, fmt.Errorf("tenant %s seed %s: %w", tenant.ID, seed, err))
				continue
			}
			t.logger.Info("tenant recrawled",
				"tenant_id", tenant.ID,
				"seed", seed,
				"documents_created", res.DocumentsCreated,
				"documents_updated", res.DocumentsUpdated,
				"chunks_created", res.ChunksCreated)
		}
	}
	return errors.Join(errs...)
}

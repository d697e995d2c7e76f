package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"

	"github.com/tgo/captain/knowdesk/internal/chunker"
	"github.com/tgo/captain/knowdesk/internal/extractor"
	"github.com/tgo/captain/knowdesk/internal/llm"
	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository"
)

const (
	DefaultCrawlMaxPages    = 100
	DefaultCrawlMaxDepth    = 3
	DefaultCrawlRateLimitMs = 100

	defaultChunkLanguage = "en"
	detectSampleRunes    = 1000
)

type CrawlConfig struct {
	MaxPages        int
	MaxDepth        int
	RateLimitMs     int
	Chunking        chunker.Config
	ProviderTimeout time.Duration
}

func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxPages:        DefaultCrawlMaxPages,
		MaxDepth:        DefaultCrawlMaxDepth,
		RateLimitMs:     DefaultCrawlRateLimitMs,
		Chunking:        chunker.DefaultConfig(),
		ProviderTimeout: DefaultProviderTimeout,
	}
}

// CrawlDeps are the collaborators of a CrawlService. Detector is optional;
// without it every chunk is tagged "en".
type CrawlDeps struct {
	Tenants   TenantStore
	Documents DocumentStore
	Chunks    ChunkIndex
	Jobs      CrawlJobStore
	Fetcher   Fetcher
	Extractor *extractor.Extractor
	Embedder  llm.Embedder
	Detector  llm.LanguageDetector
}

type CrawlRequest struct {
	StartURL string `json:"start_url" binding:"required"`
	// MaxDepth <= 0 uses the configured default.
	MaxDepth int `json:"max_depth"`
	// RateLimitMs nil uses the configured default; 0 disables throttling.
	RateLimitMs *int `json:"rate_limit_ms"`
	// AllowedDomains must be covered by the tenant's domains. Empty means
	// the tenant's full list.
	AllowedDomains []string `json:"allowed_domains"`
	// MaxPages <= 0 or above the configured cap uses the cap.
	MaxPages int `json:"max_pages"`
}

type CrawlResult struct {
	JobID            uuid.UUID            `json:"job_id"`
	Status           model.CrawlJobStatus `json:"status"`
	DocumentsCreated int                  `json:"documents_created"`
	DocumentsUpdated int                  `json:"documents_updated"`
	ChunksCreated    int                  `json:"chunks_created"`
	PagesVisited     int                  `json:"pages_visited"`
	PagesFailed      int                  `json:"pages_failed"`
	PagesSkipped     int                  `json:"pages_skipped"`
}

// crawlPlan is a validated CrawlRequest bound to its tenant.
type crawlPlan struct {
	tenantID  uuid.UUID
	startURL  string
	domains   []string
	maxDepth  int
	maxPages  int
	rateLimit time.Duration
}

type CrawlService struct {
	deps   CrawlDeps
	cfg    CrawlConfig
	logger *slog.Logger
}

func NewCrawlService(deps CrawlDeps, cfg CrawlConfig) (*CrawlService, error) {
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultCrawlMaxPages
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultCrawlMaxDepth
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New()
	}
	return &CrawlService{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default().With("component", "crawl_service"),
	}, nil
}

// Crawl runs a breadth-first crawl from req.StartURL and blocks until it
// finishes. Cancelling ctx stops the crawl at the next fetch, embedding call
// or throttle wait; the partial result is returned with ctx's error.
func (s *CrawlService) Crawl(ctx context.Context, tenantID uuid.UUID, req *CrawlRequest) (*CrawlResult, error) {
	plan, job, err := s.prepare(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, plan, job)
}

func (s *CrawlService) prepare(ctx context.Context, tenantID uuid.UUID, req *CrawlRequest) (*crawlPlan, *model.CrawlJob, error) {
	tenant, err := s.deps.Tenants.FindByID(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if !tenant.IsActive {
		return nil, nil, ErrTenantInactive
	}

	plan, err := s.buildPlan(tenant, req)
	if err != nil {
		return nil, nil, err
	}

	job := &model.CrawlJob{
		TenantID:       tenant.ID,
		StartURL:       plan.startURL,
		Status:         model.CrawlJobStatusPending,
		ScannedDomains: plan.domains,
		MaxDepth:       plan.maxDepth,
		RateLimitMs:    int(plan.rateLimit / time.Millisecond),
	}
	if err := s.deps.Jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("create crawl job: %w", err)
	}
	return plan, job, nil
}

func (s *CrawlService) buildPlan(tenant *model.Tenant, req *CrawlRequest) (*crawlPlan, error) {
	startURL, err := normalizeStartURL(req.StartURL)
	if err != nil {
		return nil, err
	}

	domains := []string(tenant.AllowedDomains)
	if len(req.AllowedDomains) > 0 {
		requested, err := NormalizeDomains(req.AllowedDomains)
		if err != nil {
			return nil, err
		}
		for _, d := range requested {
			if !HostAllowed(d, tenant.AllowedDomains) {
				return nil, fmt.Errorf("%w: domain %q is not allowed for this tenant", ErrInvalidRequest, d)
			}
		}
		domains = requested
	}
	if !URLAllowed(startURL, domains) {
		return nil, fmt.Errorf("%w: start url %q is outside the allowed domains", ErrInvalidRequest, startURL)
	}

	plan := &crawlPlan{
		tenantID:  tenant.ID,
		startURL:  startURL,
		domains:   domains,
		maxDepth:  s.cfg.MaxDepth,
		maxPages:  s.cfg.MaxPages,
		rateLimit: time.Duration(s.cfg.RateLimitMs) * time.Millisecond,
	}
	if req.MaxDepth > 0 {
		plan.maxDepth = req.MaxDepth
	}
	if req.MaxPages > 0 && req.MaxPages < plan.maxPages {
		plan.maxPages = req.MaxPages
	}
	if req.RateLimitMs != nil {
		if *req.RateLimitMs < 0 {
			return nil, fmt.Errorf("%w: rate_limit_ms must not be negative", ErrInvalidRequest)
		}
		plan.rateLimit = time.Duration(*req.RateLimitMs) * time.Millisecond
	}
	return plan, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (s *CrawlService) run(ctx context.Context, plan *crawlPlan, job *model.CrawlJob) (*CrawlResult, error) {
	logger := s.logger.With("job_id", job.ID, "tenant_id", plan.tenantID)

	started := time.Now().UTC()
	job.Status = model.CrawlJobStatusInProgress
	job.StartedAt = &started
	if err := s.deps.Jobs.Update(ctx, job); err != nil {
		logger.Warn("failed to mark crawl job in progress", "error", err)
	}
	logger.Info("crawl started", "start_url", plan.startURL, "max_depth", plan.maxDepth, "max_pages", plan.maxPages)

	result := &CrawlResult{JobID: job.ID}
	limiter := newLimiter(plan.rateLimit)
	front := newFrontier(plan.startURL)

	var runErr error
	for front.visited < plan.maxPages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		entry, ok := front.next()
		if !ok {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			runErr = ctxErrOr(ctx, err)
			break
		}

		result.PagesVisited++
		links, err := s.processPage(ctx, plan, entry, limiter, result)
		switch {
		case err == nil:
		case errors.Is(err, errPageSkipped):
			result.PagesSkipped++
		case ctx.Err() != nil:
			runErr = ctx.Err()
		case errors.Is(err, ErrIngestStore):
			runErr = err
		default:
			result.PagesFailed++
			logger.Warn("page failed", "url", entry.url, "error", err)
		}
		if runErr != nil {
			break
		}

		if entry.depth >= plan.maxDepth {
			continue
		}
		for _, link := range links {
			if URLAllowed(link, plan.domains) {
				front.push(link, entry.depth+1)
			}
		}
	}

	s.finishJob(ctx, job, result, runErr)
	logger.Info("crawl finished",
		"status", job.Status,
		"pages_visited", result.PagesVisited,
		"pages_failed", result.PagesFailed,
		"pages_skipped", result.PagesSkipped,
		"documents_created", result.DocumentsCreated,
		"documents_updated", result.DocumentsUpdated,
		"chunks_created", result.ChunksCreated,
		"pending", front.pending())
	return result, runErr
}

var errPageSkipped = errors.New("page skipped")

// processPage fetches, extracts and indexes one page and returns its
// outbound links. An unchanged page keeps its chunks untouched.
func (s *CrawlService) processPage(ctx context.Context, plan *crawlPlan, entry frontierEntry, limiter *rate.Limiter, result *CrawlResult) ([]string, error) {
	fetched, err := s.deps.Fetcher.Fetch(ctx, entry.url)
	if errors.Is(err, ErrNotHTML) {
		return nil, errPageSkipped
	}
	if err != nil {
		return nil, err
	}
	if fetched.URL != "" && !URLAllowed(fetched.URL, plan.domains) {
		s.logger.Info("redirect left allowed domains", "url", entry.url, "final_url", fetched.URL)
		return nil, errPageSkipped
	}

	page, err := s.deps.Extractor.Extract(fetched.Body, entry.url)
	if errors.Is(err, extractor.ErrEmptyContent) {
		return page.Links, errPageSkipped
	}
	if err != nil {
		return nil, err
	}

	hash := ContentHash(page.Text)
	upsert, err := s.deps.Documents.Upsert(ctx, plan.tenantID, entry.url, page.Title, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestStore, err)
	}
	switch {
	case upsert.IsUnchanged:
		return page.Links, nil
	case upsert.IsNew:
		result.DocumentsCreated++
	default:
		result.DocumentsUpdated++
		if err := s.deps.Chunks.DeleteByDocument(ctx, upsert.DocumentID); err != nil {
			return nil, fmt.Errorf("%w: purge chunks: %w", ErrIngestStore, err)
		}
	}

	created, err := s.indexChunks(ctx, plan, upsert.DocumentID, entry.url, page, limiter)
	result.ChunksCreated += created
	if err != nil {
		// A half-indexed document would look unchanged to the next crawl.
		if delErr := s.deps.Documents.Delete(context.WithoutCancel(ctx), upsert.DocumentID); delErr != nil {
			s.logger.Error("failed to roll back partial document", "document_id", upsert.DocumentID, "error", delErr)
		}
		return nil, err
	}
	return page.Links, nil
}

// indexChunks splits, embeds and stores the page text. A chunk whose embed
// or store fails is dropped; ordinals stay contiguous over stored chunks.
func (s *CrawlService) indexChunks(ctx context.Context, plan *crawlPlan, documentID uuid.UUID, url string, page *extractor.Page, limiter *rate.Limiter) (int, error) {
	pieces, err := chunker.Split(page.Text, s.cfg.Chunking)
	if err != nil {
		return 0, err
	}
	language := s.detectLanguage(ctx, page.Text)

	ordinal := 0
	for i, piece := range pieces {
		if err := limiter.Wait(ctx); err != nil {
			return ordinal, ctxErrOr(ctx, err)
		}

		vector, err := s.embed(ctx, piece)
		if err != nil {
			if ctx.Err() != nil {
				return ordinal, ctx.Err()
			}
			s.logger.Warn("chunk embedding failed", "url", url, "chunk", i, "error", err)
			continue
		}

		_, err = s.deps.Chunks.Store(ctx, &model.Chunk{
			DocumentID: documentID,
			TenantID:   plan.tenantID,
			Content:    piece,
			Embedding:  pgvector.NewVector(vector),
			ChunkIndex: ordinal,
			URL:        url,
			Language:   language,
			Metadata:   model.JSONMap{"title": page.Title},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ordinal, ctx.Err()
			}
			s.logger.Warn("chunk store failed", "url", url, "chunk", i, "error", err)
			continue
		}
		ordinal++
	}
	return ordinal, nil
}

func (s *CrawlService) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	return s.deps.Embedder.Embed(ctx, text)
}

func (s *CrawlService) detectLanguage(ctx context.Context, text string) string {
	if s.deps.Detector == nil {
		return defaultChunkLanguage
	}
	sample := []rune(text)
	if len(sample) > detectSampleRunes {
		sample = sample[:detectSampleRunes]
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	det, err := s.deps.Detector.Detect(ctx, string(sample))
	if err != nil || det.Language == "" {
		return defaultChunkLanguage
	}
	return det.Language
}

func (s *CrawlService) finishJob(ctx context.Context, job *model.CrawlJob, result *CrawlResult, runErr error) {
	finished := time.Now().UTC()
	job.FinishedAt = &finished
	job.PagesVisited = result.PagesVisited
	job.PagesFailed = result.PagesFailed
	job.DocumentsCreated = result.DocumentsCreated
	job.DocumentsUpdated = result.DocumentsUpdated
	job.ChunksCreated = result.ChunksCreated

	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		job.Status = model.CrawlJobStatusCancelled
		job.ErrorMessage = runErr.Error()
	case runErr != nil:
		job.Status = model.CrawlJobStatusFailed
		job.ErrorMessage = runErr.Error()
	case result.PagesVisited > 0 && result.PagesFailed == result.PagesVisited:
		job.Status = model.CrawlJobStatusFailed
		job.ErrorMessage = "every fetched page failed"
	default:
		job.Status = model.CrawlJobStatusCompleted
	}
	result.Status = job.Status

	if err := s.deps.Jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to save crawl job", "job_id", job.ID, "error", err)
	}
}

// ContentHash is the hex SHA-256 of the cleaned page text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ctxErrOr prefers the context's own error; rate.Limiter.Wait reports a
// deadline it cannot meet with a plain error.
func ctxErrOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

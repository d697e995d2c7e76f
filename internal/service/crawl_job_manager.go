package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository"
)

// CrawlJobManager runs crawls in the background, one goroutine per job, and
// owns the cancel func of every running job.
type CrawlJobManager struct {
	crawl  *CrawlService
	jobs   CrawlJobStore
	logger *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewCrawlJobManager(crawl *CrawlService, jobs CrawlJobStore) *CrawlJobManager {
	return &CrawlJobManager{
		crawl:   crawl,
		jobs:    jobs,
		logger:  slog.Default().With("component", "crawl_job_manager"),
		running: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start validates the request, records a pending job and returns it while
// the crawl proceeds in the background. After Shutdown has begun it returns
// ErrShuttingDown.
func (m *CrawlJobManager) Start(ctx context.Context, tenantID uuid.UUID, req *CrawlRequest) (*model.CrawlJob, error) {
	if m.isClosed() {
		return nil, ErrShuttingDown
	}

	plan, job, err := m.crawl.prepare(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	snapshot := *job

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		// The pending record already exists; close it out as cancelled.
		m.crawl.finishJob(ctx, job, &CrawlResult{JobID: job.ID}, fmt.Errorf("%w: %w", ErrShuttingDown, context.Canceled))
		return nil, ErrShuttingDown
	}
	m.running[job.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, job.ID)
			m.mu.Unlock()
			cancel()
		}()

		if _, err := m.crawl.run(runCtx, plan, job); err != nil {
			m.logger.Warn("crawl job ended with error", "job_id", job.ID, "error", err)
		}
	}()

	return &snapshot, nil
}

func (m *CrawlJobManager) Get(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	job, err := m.jobs.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCrawlJobNotFound
	}
	return job, err
}

func (m *CrawlJobManager) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.CrawlJob, error) {
	return m.jobs.ListByTenant(ctx, tenantID, limit)
}

// Cancel stops a running job. The job reaches the cancelled state once its
// worker observes the cancellation.
func (m *CrawlJobManager) Cancel(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	return ErrCrawlJobNotRunning
}

func (m *CrawlJobManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *CrawlJobManager) IsRunning(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Wait blocks until every started job has finished.
func (m *CrawlJobManager) Wait() {
	m.wg.Wait()
}

// Shutdown refuses new jobs, cancels all running ones and waits for them
// until ctx expires.
func (m *CrawlJobManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

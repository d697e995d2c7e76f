package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgo/captain/knowdesk/internal/chunker"
	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository/memory"
)

type sitePage struct {
	contentType string
	status      int
	body        string
}

// testSite is an httptest server whose pages can be changed between crawls.
type testSite struct {
	mu    sync.Mutex
	pages map[string]sitePage
	hits  map[string]int
	agent string
	srv   *httptest.Server
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	s := &testSite{pages: make(map[string]sitePage), hits: make(map[string]int)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testSite) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.agent = r.UserAgent()
	p, ok := s.pages[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", p.contentType)
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(p.body))
}

func (s *testSite) set(path, body string) {
	s.setRaw(path, "text/html; charset=utf-8", http.StatusOK, body)
}

func (s *testSite) setRaw(path, contentType string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = sitePage{contentType: contentType, status: status, body: body}
}

func (s *testSite) url(path string) string {
	return s.srv.URL + path
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func htmlPage(title, text string, links ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>%s</title></head><body><main><p>%s</p>", title, text)
	for _, l := range links {
		fmt.Fprintf(&sb, `<a href="%s">link</a>`, l)
	}
	sb.WriteString("</main></body></html>")
	return sb.String()
}

type crawlEnv struct {
	store    *memory.Store
	tenant   *model.Tenant
	embedder *wordEmbedder
	svc      *CrawlService
}

func testCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxPages:        50,
		MaxDepth:        3,
		RateLimitMs:     0,
		Chunking:        chunker.Config{ChunkSizeTokens: 10, OverlapTokens: 2},
		ProviderTimeout: 2 * time.Second,
	}
}

func newCrawlEnv(t *testing.T, mutate func(*CrawlDeps, *CrawlConfig)) *crawlEnv {
	t.Helper()
	store := memory.New(testDims)
	tenant := &model.Tenant{Name: "Inst", AllowedDomains: model.StringArray{"127.0.0.1"}, IsActive: true}
	require.NoError(t, store.Tenants().Create(context.Background(), tenant))

	embedder := &wordEmbedder{}
	deps := CrawlDeps{
		Tenants:   store.Tenants(),
		Documents: store.Documents(),
		Chunks:    store.Chunks(),
		Jobs:      store.CrawlJobs(),
		Fetcher:   NewHTTPFetcher(2*time.Second, ""),
		Embedder:  embedder,
	}
	cfg := testCrawlConfig()
	if mutate != nil {
		mutate(&deps, &cfg)
	}

	svc, err := NewCrawlService(deps, cfg)
	require.NoError(t, err)
	return &crawlEnv{store: store, tenant: tenant, embedder: embedder, svc: svc}
}

func (e *crawlEnv) crawl(t *testing.T, req *CrawlRequest) *CrawlResult {
	t.Helper()
	res, err := e.svc.Crawl(context.Background(), e.tenant.ID, req)
	require.NoError(t, err)
	return res
}

func (e *crawlEnv) chunkIDs(t *testing.T, url string) []uuid.UUID {
	t.Helper()
	doc, err := e.store.Documents().FindByTenantAndURL(context.Background(), e.tenant.ID, url)
	require.NoError(t, err)
	chunks, err := e.store.Chunks().ListByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		ids[i] = c.ID
	}
	return ids
}

func TestCrawlScenarioChangeDetection(t *testing.T) {
	site := newTestSite(t)
	env := newCrawlEnv(t, nil)
	faq := site.url("/faq")

	site.set("/faq", htmlPage("FAQ", strings.Repeat("Admissions open on 1 September and close in March. ", 4)))

	first := env.crawl(t, &CrawlRequest{StartURL: faq})
	assert.Equal(t, 1, first.DocumentsCreated)
	assert.Greater(t, first.ChunksCreated, 0)
	assert.Equal(t, model.CrawlJobStatusCompleted, first.Status)
	firstIDs := env.chunkIDs(t, faq)
	assert.Len(t, firstIDs, first.ChunksCreated)

	second := env.crawl(t, &CrawlRequest{StartURL: faq})
	assert.Equal(t, 0, second.DocumentsCreated)
	assert.Equal(t, 0, second.DocumentsUpdated)
	assert.Equal(t, 0, second.ChunksCreated)
	assert.Equal(t, firstIDs, env.chunkIDs(t, faq))

	site.set("/faq", htmlPage("FAQ", strings.Repeat("Tuition is due in October. ", 9)))

	third := env.crawl(t, &CrawlRequest{StartURL: faq})
	assert.Equal(t, 0, third.DocumentsCreated)
	assert.Equal(t, 1, third.DocumentsUpdated)
	assert.Greater(t, third.ChunksCreated, 0)

	thirdIDs := env.chunkIDs(t, faq)
	assert.Len(t, thirdIDs, third.ChunksCreated)
	for _, old := range firstIDs {
		assert.NotContains(t, thirdIDs, old)
	}

	chunks, err := env.store.Chunks().Search(context.Background(), env.tenant.ID, mustEmbed(t, env.embedder, "tuition"), 100, -1)
	require.NoError(t, err)
	for _, h := range chunks {
		assert.NotContains(t, h.Content, "Admissions")
	}
}

func mustEmbed(t *testing.T, e *wordEmbedder, text string) []float32 {
	t.Helper()
	v, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestCrawlHonorsMaxDepth(t *testing.T) {
	site := newTestSite(t)
	for i := 0; i < 5; i++ {
		site.set(fmt.Sprintf("/d%d", i), htmlPage("D", fmt.Sprintf("Depth page number %d.", i), fmt.Sprintf("/d%d", i+1)))
	}
	env := newCrawlEnv(t, nil)

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/d0"), MaxDepth: 2})
	assert.Equal(t, 3, res.PagesVisited)
	assert.Equal(t, 1, site.hitCount("/d2"))
	assert.Equal(t, 0, site.hitCount("/d3"))

	// zero falls back to the configured depth of 3
	res = env.crawl(t, &CrawlRequest{StartURL: site.url("/d0")})
	assert.Equal(t, 4, res.PagesVisited)
	assert.Equal(t, 1, site.hitCount("/d3"))
	assert.Equal(t, 0, site.hitCount("/d4"))
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	site := newTestSite(t)
	var links []string
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("/p%d", i)
		links = append(links, p)
		site.set(p, htmlPage("P", fmt.Sprintf("Leaf page %d.", i)))
	}
	site.set("/hub", htmlPage("Hub", "Index of pages.", links...))
	env := newCrawlEnv(t, func(_ *CrawlDeps, cfg *CrawlConfig) { cfg.MaxPages = 4 })

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/hub")})
	assert.Equal(t, 4, res.PagesVisited)
	assert.Equal(t, 4, res.DocumentsCreated)

	res = env.crawl(t, &CrawlRequest{StartURL: site.url("/hub"), MaxPages: 2})
	assert.Equal(t, 2, res.PagesVisited)
}

func TestCrawlDomainPolicy(t *testing.T) {
	site := newTestSite(t)
	offHost := strings.Replace(site.url("/out"), "127.0.0.1", "localhost", 1)
	site.set("/start", htmlPage("Start", "Welcome to the campus.", "/in", offHost, "https://127.0.0.1.attacker.test/x"))
	site.set("/in", htmlPage("In", "Inside the allowed domain."))
	site.set("/out", htmlPage("Out", "Should never be fetched."))
	env := newCrawlEnv(t, nil)

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/start")})
	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, 1, site.hitCount("/in"))
	assert.Equal(t, 0, site.hitCount("/out"))
}

func TestCrawlSkipsAndFailuresContinue(t *testing.T) {
	site := newTestSite(t)
	site.set("/start", htmlPage("Start", "Main page text.", "/missing", "/file.pdf", "/ok", "/empty"))
	site.setRaw("/file.pdf", "application/pdf", http.StatusOK, "%PDF-1.4")
	site.set("/ok", htmlPage("OK", "Another page with text."))
	site.set("/empty", "<html><body><script>x()</script></body></html>")
	env := newCrawlEnv(t, nil)

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/start")})
	assert.Equal(t, 5, res.PagesVisited)
	assert.Equal(t, 1, res.PagesFailed)
	assert.Equal(t, 2, res.PagesSkipped)
	assert.Equal(t, 2, res.DocumentsCreated)
	assert.Equal(t, model.CrawlJobStatusCompleted, res.Status)
	assert.Equal(t, DefaultUserAgent, site.agent)
}

func TestCrawlDropsChunksThatFailToEmbed(t *testing.T) {
	site := newTestSite(t)
	text := "Library hours are nine to five. BROKEN section follows here. Parking is free after six on weekdays."
	site.set("/lib", htmlPage("Library", text))
	env := newCrawlEnv(t, nil)
	env.embedder.failMarker = "BROKEN"

	pieces, err := chunker.Split(text, testCrawlConfig().Chunking)
	require.NoError(t, err)
	want := 0
	for _, p := range pieces {
		if !strings.Contains(p, "BROKEN") {
			want++
		}
	}
	require.Less(t, want, len(pieces))
	require.Greater(t, want, 0)

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/lib")})
	assert.Equal(t, want, res.ChunksCreated)
	assert.Len(t, env.chunkIDs(t, site.url("/lib")), want)
}

type cancelAfterFirstFetch struct {
	Fetcher
	cancel context.CancelFunc
}

func (f *cancelAfterFirstFetch) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	res, err := f.Fetcher.Fetch(ctx, url)
	f.cancel()
	return res, err
}

func TestCrawlCancellation(t *testing.T) {
	site := newTestSite(t)
	site.set("/a", htmlPage("A", "First page of many.", "/b"))
	site.set("/b", htmlPage("B", "Second page."))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newCrawlEnv(t, func(deps *CrawlDeps, _ *CrawlConfig) {
		deps.Fetcher = &cancelAfterFirstFetch{Fetcher: deps.Fetcher, cancel: cancel}
	})

	res, err := env.svc.Crawl(ctx, env.tenant.ID, &CrawlRequest{StartURL: site.url("/a")})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, model.CrawlJobStatusCancelled, res.Status)
	assert.Equal(t, 0, site.hitCount("/b"))

	// the interrupted page is re-ingested by the next crawl
	_, err = env.store.Documents().FindByTenantAndURL(context.Background(), env.tenant.ID, site.url("/a"))
	assert.Error(t, err)

	job, err := env.store.CrawlJobs().FindByID(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobStatusCancelled, job.Status)
	assert.NotNil(t, job.FinishedAt)
}

func TestCrawlUpsertFailureIsTerminal(t *testing.T) {
	site := newTestSite(t)
	site.set("/a", htmlPage("A", "Some text.", "/b"))
	site.set("/b", htmlPage("B", "More text."))
	env := newCrawlEnv(t, func(deps *CrawlDeps, _ *CrawlConfig) {
		deps.Documents = failingDocuments{DocumentStore: deps.Documents}
	})

	res, err := env.svc.Crawl(context.Background(), env.tenant.ID, &CrawlRequest{StartURL: site.url("/a")})
	require.ErrorIs(t, err, ErrIngestStore)
	assert.Equal(t, model.CrawlJobStatusFailed, res.Status)
	assert.Equal(t, 0, site.hitCount("/b"))
}

func TestCrawlRateLimitSpacesRequests(t *testing.T) {
	site := newTestSite(t)
	site.set("/a", htmlPage("A", "Alpha.", "/b"))
	site.set("/b", htmlPage("B", "Beta.", "/c"))
	site.set("/c", htmlPage("C", "Gamma."))
	env := newCrawlEnv(t, nil)

	interval := 25
	start := time.Now()
	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/a"), RateLimitMs: &interval})
	elapsed := time.Since(start)

	require.Equal(t, 3, res.PagesVisited)
	require.Equal(t, 3, res.ChunksCreated)
	// three fetches and three embeddings, the first of which is not delayed
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestCrawlRecordsJob(t *testing.T) {
	site := newTestSite(t)
	site.set("/a", htmlPage("A", "Alpha page.", "/b"))
	site.set("/b", htmlPage("B", "Beta page."))
	env := newCrawlEnv(t, nil)

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/a")})
	job, err := env.store.CrawlJobs().FindByID(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.PagesVisited)
	assert.Equal(t, 2, job.DocumentsCreated)
	assert.Equal(t, res.ChunksCreated, job.ChunksCreated)
	assert.Equal(t, model.StringArray{"127.0.0.1"}, job.ScannedDomains)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)
	assert.False(t, job.FinishedAt.Before(*job.StartedAt))
}

func TestCrawlAllPagesFailedMarksJobFailed(t *testing.T) {
	site := newTestSite(t)
	env := newCrawlEnv(t, nil)

	res := env.crawl(t, &CrawlRequest{StartURL: site.url("/nothing-here")})
	assert.Equal(t, 1, res.PagesFailed)
	assert.Equal(t, model.CrawlJobStatusFailed, res.Status)
}

func TestCrawlValidation(t *testing.T) {
	env := newCrawlEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Crawl(ctx, uuid.New(), &CrawlRequest{StartURL: "http://127.0.0.1/"})
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = env.svc.Crawl(ctx, env.tenant.ID, &CrawlRequest{StartURL: "ftp://127.0.0.1/"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.svc.Crawl(ctx, env.tenant.ID, &CrawlRequest{StartURL: "https://other.edu/"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.svc.Crawl(ctx, env.tenant.ID, &CrawlRequest{StartURL: "http://127.0.0.1/", AllowedDomains: []string{"other.edu"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	negative := -1
	_, err = env.svc.Crawl(ctx, env.tenant.ID, &CrawlRequest{StartURL: "http://127.0.0.1/", RateLimitMs: &negative})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	env.tenant.IsActive = false
	require.NoError(t, env.store.Tenants().Update(ctx, env.tenant))
	_, err = env.svc.Crawl(ctx, env.tenant.ID, &CrawlRequest{StartURL: "http://127.0.0.1/"})
	assert.ErrorIs(t, err, ErrTenantInactive)
}

func TestNewCrawlServiceRejectsBadChunking(t *testing.T) {
	cfg := testCrawlConfig()
	cfg.Chunking = chunker.Config{ChunkSizeTokens: 5, OverlapTokens: 5}
	_, err := NewCrawlService(CrawlDeps{}, cfg)
	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(""))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
	assert.Len(t, ContentHash("text"), 64)
}

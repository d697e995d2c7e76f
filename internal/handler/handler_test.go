package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgo/captain/knowdesk/internal/chunker"
	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository/memory"
	"github.com/tgo/captain/knowdesk/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubEmbedder maps every text to the same direction unless it contains
// "explode".
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "explode") {
		return nil, errors.New("provider exploded: secret-upstream-detail")
	}
	return []float32{1, 0}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _, _ string, _ float32, _ int) (string, error) {
	return "Tuition is 100 credits.", nil
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	tenant *model.Tenant
	jobs   *service.CrawlJobManager
	ready  error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New(2)
	ctx := context.Background()

	tenant := &model.Tenant{Name: "Inst", AllowedDomains: model.StringArray{"127.0.0.1"}, IsActive: true}
	require.NoError(t, store.Tenants().Create(ctx, tenant))

	crawlCfg := service.DefaultCrawlConfig()
	crawlCfg.RateLimitMs = 0
	crawlCfg.Chunking = chunker.Config{ChunkSizeTokens: 20, OverlapTokens: 2}
	crawl, err := service.NewCrawlService(service.CrawlDeps{
		Tenants:   store.Tenants(),
		Documents: store.Documents(),
		Chunks:    store.Chunks(),
		Jobs:      store.CrawlJobs(),
		Fetcher:   service.NewHTTPFetcher(2*time.Second, ""),
		Embedder:  stubEmbedder{},
	}, crawlCfg)
	require.NoError(t, err)

	query := service.NewQueryService(service.QueryDeps{
		Tenants:   store.Tenants(),
		Chunks:    store.Chunks(),
		QueryLogs: store.QueryLogs(),
		Embedder:  stubEmbedder{},
		Generator: stubGenerator{},
	}, service.DefaultQueryConfig())

	ts := &testServer{store: store, tenant: tenant}
	ts.jobs = service.NewCrawlJobManager(crawl, store.CrawlJobs())
	svcs := &Services{
		Tenants: service.NewTenantService(store.Tenants(), store.Documents()),
		Crawl:   crawl,
		Jobs:    ts.jobs,
		Query:   query,
		Ready:   func(context.Context) error { return ts.ready },
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts.router = SetupRouter(&config.Config{GinMode: "test"}, svcs, logger)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ts *testServer) seedChunk(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	res, err := ts.store.Documents().Upsert(ctx, ts.tenant.ID, "https://inst.edu/admissions/fees", "Fees", "h1")
	require.NoError(t, err)
	_, err = ts.store.Chunks().Store(ctx, &model.Chunk{
		DocumentID: res.DocumentID,
		TenantID:   ts.tenant.ID,
		Content:    "Tuition is 100 credits per term.",
		URL:        "https://inst.edu/admissions/fees",
		Embedding:  pgvector.NewVector([]float32{1, 0}),
	})
	require.NoError(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/live", "/ready", "/"} {
		w := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	ts.ready = errors.New("database unreachable")
	w := ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body errorBody
	decode(t, w, &body)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	assert.Contains(t, body.Error.Message, "database unreachable")
}

func TestQueryEndpointAnswers(t *testing.T) {
	ts := newTestServer(t)
	ts.seedChunk(t)

	w := ts.do(t, http.MethodPost, "/v1/query", gin.H{
		"tenant_id": ts.tenant.ID.String(),
		"query":     "How much is tuition?",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp service.QueryResponse
	decode(t, w, &resp)
	assert.Equal(t, "Tuition is 100 credits.", resp.Answer)
	assert.Equal(t, "en", resp.Language)
	assert.Equal(t, []service.Source{{URL: "https://inst.edu/admissions/fees", Title: "fees"}}, resp.Sources)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestQueryEndpointErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.seedChunk(t)

	w := ts.do(t, http.MethodPost, "/v1/query", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/query", gin.H{"tenant_id": "nope", "query": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/query", gin.H{"tenant_id": uuid.NewString(), "query": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	var notFound errorBody
	decode(t, w, &notFound)
	assert.Equal(t, "TENANT_NOT_FOUND", notFound.Error.Code)

	w = ts.do(t, http.MethodPost, "/v1/query", gin.H{"tenant_id": ts.tenant.ID.String(), "query": "please explode"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var failed errorBody
	decode(t, w, &failed)
	assert.Equal(t, "failed to answer query", failed.Error.Message)
	assert.NotContains(t, w.Body.String(), "secret-upstream-detail")
}

func TestTenantEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/tenants", gin.H{
		"name":            "Lakeside College",
		"allowed_domains": []string{"Lakeside.edu"},
		"seed_urls":       []string{"https://lakeside.edu/faq"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Tenant
	decode(t, w, &created)
	assert.Equal(t, model.StringArray{"lakeside.edu"}, created.AllowedDomains)

	w = ts.do(t, http.MethodPost, "/v1/tenants", gin.H{"name": "Bad", "allowed_domains": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/tenants/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/tenants?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []model.Tenant `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, w, &page)
	assert.EqualValues(t, 2, page.Pagination.Total)

	w = ts.do(t, http.MethodPut, "/v1/tenants/"+created.ID.String()+"/domains", gin.H{
		"allowed_domains": []string{"lakeside.org"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Tenant
	decode(t, w, &updated)
	assert.Equal(t, model.StringArray{"lakeside.org"}, updated.AllowedDomains)
	assert.Empty(t, updated.SeedURLs)

	w = ts.do(t, http.MethodGet, "/v1/tenants/"+created.ID.String()+"/documents", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/v1/tenants/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/tenants/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/tenants/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/faq", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>FAQ</title></head><body><main><p>Tuition is 100 credits per term.</p><a href="/hours">Hours</a></main></body></html>`))
	})
	mux.HandleFunc("/hours", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Hours</title></head><body><main><p>The library opens at nine.</p></main></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncCrawlEndpoint(t *testing.T) {
	ts := newTestServer(t)
	site := newSite(t)
	path := "/v1/tenants/" + ts.tenant.ID.String() + "/crawl"

	w := ts.do(t, http.MethodPost, path, gin.H{"start_url": site.URL + "/faq"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first service.CrawlResult
	decode(t, w, &first)
	assert.Equal(t, model.CrawlJobStatusCompleted, first.Status)
	assert.Equal(t, 2, first.DocumentsCreated)
	assert.Equal(t, 2, first.ChunksCreated)

	w = ts.do(t, http.MethodPost, path, gin.H{"start_url": site.URL + "/faq"})
	require.Equal(t, http.StatusOK, w.Code)
	var second service.CrawlResult
	decode(t, w, &second)
	assert.Zero(t, second.DocumentsCreated)
	assert.Zero(t, second.ChunksCreated)

	w = ts.do(t, http.MethodPost, path, gin.H{"start_url": "https://elsewhere.org/"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/tenants/"+uuid.NewString()+"/crawl", gin.H{"start_url": site.URL + "/faq"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCrawlJobEndpoints(t *testing.T) {
	ts := newTestServer(t)
	site := newSite(t)

	w := ts.do(t, http.MethodPost, "/v1/tenants/"+ts.tenant.ID.String()+"/crawl-jobs", gin.H{"start_url": site.URL + "/faq"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var job model.CrawlJob
	decode(t, w, &job)
	ts.jobs.Wait()

	w = ts.do(t, http.MethodGet, "/v1/crawl-jobs/"+job.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Job     model.CrawlJob `json:"job"`
		Running bool           `json:"running"`
	}
	decode(t, w, &got)
	assert.Equal(t, model.CrawlJobStatusCompleted, got.Job.Status)
	assert.False(t, got.Running)

	w = ts.do(t, http.MethodGet, "/v1/tenants/"+ts.tenant.ID.String()+"/crawl-jobs", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/v1/crawl-jobs/"+job.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodDelete, "/v1/crawl-jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartCrawlJobAfterShutdownIsUnavailable(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.jobs.Shutdown(context.Background()))

	w := ts.do(t, http.MethodPost, "/v1/tenants/"+ts.tenant.ID.String()+"/crawl-jobs", gin.H{"start_url": "http://127.0.0.1/faq"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body errorBody
	decode(t, w, &body)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
}

package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/service"
)

type echoChatModel struct{}

func (echoChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if strings.Contains(msgs[0].Content, "language") && strings.Contains(msgs[0].Content, "JSON") {
		return schema.AssistantMessage(`{"language":"en","confidence":0.9}`, nil), nil
	}
	return schema.AssistantMessage("Answer from context.", nil), nil
}

func (echoChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

type unitEmbedder struct{}

func (unitEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0, 0}
	}
	return out, nil
}

func memoryConfig() *config.Config {
	return &config.Config{
		GinMode:                  "test",
		StoreDriver:              "memory",
		LLMProvider:              "openai",
		EmbeddingDimensions:      4,
		ChunkSizeTokens:          50,
		ChunkOverlapTokens:       5,
		CrawlMaxPages:            10,
		CrawlMaxDepth:            2,
		QueryTopK:                5,
		QuerySimilarityThreshold: 0.5,
		AnswerTemperature:        0.2,
		AnswerMaxTokens:          200,
	}
}

func newMemoryApp(t *testing.T) *App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), memoryConfig(), logger, Options{
		ChatModel: echoChatModel{},
		Embedder:  unitEmbedder{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewWiresMemoryApp(t *testing.T) {
	a := newMemoryApp(t)

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Cache)
	assert.NoError(t, a.Ready(context.Background()))

	svcs := a.Services()
	assert.NotNil(t, svcs.Tenants)
	assert.NotNil(t, svcs.Crawl)
	assert.NotNil(t, svcs.Jobs)
	assert.NotNil(t, svcs.Query)
}

func TestMemoryAppEndToEnd(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Fees</title></head><body><main><p>Tuition is due in September.</p></main></body></html>`))
	}))
	defer site.Close()

	a := newMemoryApp(t)
	ctx := context.Background()

	tenant, err := a.Tenants.Create(ctx, &service.CreateTenantRequest{
		Name:           "Inst",
		AllowedDomains: []string{"127.0.0.1"},
	})
	require.NoError(t, err)

	zero := 0
	res, err := a.Crawl.Crawl(ctx, tenant.ID, &service.CrawlRequest{StartURL: site.URL + "/fees", RateLimitMs: &zero})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DocumentsCreated)
	assert.Equal(t, 1, res.ChunksCreated)

	resp, err := a.Query.Ask(ctx, &service.QueryRequest{TenantID: tenant.ID, Query: "When is tuition due?"})
	require.NoError(t, err)
	assert.Equal(t, "Answer from context.", resp.Answer)
	assert.Equal(t, "en", resp.Language)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, site.URL+"/fees", resp.Sources[0].URL)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "cassandra"
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestNewRequiresAPIKeyWithoutOverrides(t *testing.T) {
	_, err := New(context.Background(), memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	assert.ErrorContains(t, err, "API key is required")
}

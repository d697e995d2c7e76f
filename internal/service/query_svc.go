package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/llm"
	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository"
)

const (
	DefaultQueryTopK           = 5
	DefaultSimilarityThreshold = 0.5
	DefaultAnswerTemperature   = 0.1
	DefaultAnswerMaxTokens     = 800
	DefaultProviderTimeout     = 20 * time.Second

	canonicalLanguage  = "en"
	fallbackConfidence = 0.5
	maxQueryRunes      = 2000
)

const answerSystemPrompt = `You are the help desk assistant of {institution}.
Answer the user's question using only the numbered context passages you are given.
If the passages do not contain the answer, say that you do not have that information. Do not guess.
Keep the answer short and factual.
Respond in the language whose ISO 639-1 code is "{language}".`

const answerUserPrompt = `Question: {question}

Context:
{context}`

var answerTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage(answerSystemPrompt),
	schema.UserMessage(answerUserPrompt),
)

type QueryConfig struct {
	TopK                int
	SimilarityThreshold float64
	Temperature         float32
	MaxTokens           int
	ProviderTimeout     time.Duration
}

func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                DefaultQueryTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		Temperature:         DefaultAnswerTemperature,
		MaxTokens:           DefaultAnswerMaxTokens,
		ProviderTimeout:     DefaultProviderTimeout,
	}
}

type QueryDeps struct {
	Tenants    TenantStore
	Chunks     ChunkIndex
	QueryLogs  QueryLogStore
	Detector   llm.LanguageDetector
	Translator llm.Translator
	Embedder   llm.Embedder
	Generator  llm.Generator
}

type QueryRequest struct {
	TenantID          uuid.UUID
	Query             string
	PreferredLanguage string
}

type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type QueryResponse struct {
	Answer   string   `json:"answer"`
	Language string   `json:"language"`
	Sources  []Source `json:"sources"`
}

type QueryService struct {
	deps   QueryDeps
	cfg    QueryConfig
	logger *slog.Logger
}

func NewQueryService(deps QueryDeps, cfg QueryConfig) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultQueryTopK
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAnswerMaxTokens
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	return &QueryService{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default().With("component", "query_service"),
	}
}

// Ask answers a question from the tenant's indexed content. Detection and
// translation failures degrade; embedding, retrieval and generation failures
// end the request with ErrQueryFailed.
func (s *QueryService) Ask(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Query)
	if question == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if len([]rune(question)) > maxQueryRunes {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidRequest, maxQueryRunes)
	}

	tenant, err := s.deps.Tenants.FindByID(ctx, req.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load tenant: %w", ErrQueryFailed, err)
	}
	logger := s.logger.With("tenant_id", tenant.ID)

	detected := s.detectLanguage(ctx, question, req.PreferredLanguage)
	if detected.Kind == OutcomeDegraded {
		logger.Warn("language detection degraded", "error", detected.Err)
	}
	language := detected.Value.Language

	canonical := s.canonicalize(ctx, question, language)
	if canonical.Kind == OutcomeDegraded {
		logger.Warn("translation degraded", "language", language, "error", canonical.Err)
	}

	embedded := s.embedQuery(ctx, canonical.Value)
	if embedded.Kind == OutcomeFatal {
		logger.Error("query embedding failed", "error", embedded.Err)
		return nil, fmt.Errorf("%w: embed: %w", ErrQueryFailed, embedded.Err)
	}

	retrieved := s.retrieve(ctx, tenant.ID, embedded.Value)
	if retrieved.Kind == OutcomeFatal {
		logger.Error("retrieval failed", "error", retrieved.Err)
		return nil, fmt.Errorf("%w: retrieve: %w", ErrQueryFailed, retrieved.Err)
	}
	hits := retrieved.Value

	var resp *QueryResponse
	if len(hits) == 0 {
		resp = &QueryResponse{
			Answer:   NoInformationMessage(language),
			Language: language,
			Sources:  []Source{},
		}
	} else {
		generated := s.generate(ctx, tenant.Name, question, language, hits)
		if generated.Kind == OutcomeFatal {
			logger.Error("answer generation failed", "error", generated.Err)
			return nil, fmt.Errorf("%w: generate: %w", ErrQueryFailed, generated.Err)
		}
		resp = &QueryResponse{
			Answer:   generated.Value,
			Language: language,
			Sources:  ExtractSources(hits),
		}
	}

	latency := time.Since(start)
	s.logQuery(ctx, tenant.ID, question, language, latency, len(resp.Sources))
	logger.Info("query answered",
		"language", language,
		"hits", len(hits),
		"sources", len(resp.Sources),
		"latency_ms", latency.Milliseconds())
	return resp, nil
}

func (s *QueryService) detectLanguage(ctx context.Context, question, preferred string) Outcome[llm.Detection] {
	if lang, valid := llm.NormalizeLanguage(preferred); valid {
		return okOutcome(llm.Detection{Language: lang, Confidence: 1})
	}

	fallback := llm.Detection{Language: canonicalLanguage, Confidence: fallbackConfidence}
	if s.deps.Detector == nil {
		return degradedOutcome(fallback, errors.New("no language detector configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	det, err := s.deps.Detector.Detect(ctx, question)
	if err != nil {
		return degradedOutcome(fallback, err)
	}
	lang, valid := llm.NormalizeLanguage(det.Language)
	if !valid {
		return degradedOutcome(fallback, fmt.Errorf("invalid language %q", det.Language))
	}
	det.Language = lang
	return okOutcome(det)
}

func (s *QueryService) canonicalize(ctx context.Context, question, language string) Outcome[string] {
	if language == canonicalLanguage {
		return okOutcome(question)
	}
	if s.deps.Translator == nil {
		return degradedOutcome(question, errors.New("no translator configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	translated, err := s.deps.Translator.Translate(ctx, question, language)
	if err != nil {
		return degradedOutcome(question, err)
	}
	if strings.TrimSpace(translated) == "" {
		return degradedOutcome(question, errors.New("empty translation"))
	}
	return okOutcome(translated)
}

func (s *QueryService) embedQuery(ctx context.Context, text string) Outcome[[]float32] {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	vec, err := s.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return fatalOutcome[[]float32](err)
	}
	return okOutcome(vec)
}

func (s *QueryService) retrieve(ctx context.Context, tenantID uuid.UUID, embedding []float32) Outcome[[]model.SearchHit] {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	hits, err := s.deps.Chunks.Search(ctx, tenantID, embedding, s.cfg.TopK, s.cfg.SimilarityThreshold)
	if err != nil {
		return fatalOutcome[[]model.SearchHit](err)
	}
	return okOutcome(hits)
}

func (s *QueryService) generate(ctx context.Context, institution, question, language string, hits []model.SearchHit) Outcome[string] {
	messages, err := answerTemplate.Format(ctx, map[string]any{
		"institution": institution,
		"language":    language,
		"question":    question,
		"context":     FormatPassages(hits),
	})
	if err != nil {
		return fatalOutcome[string](fmt.Errorf("format prompt: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	answer, err := s.deps.Generator.Generate(ctx, messages[0].Content, messages[1].Content, s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return fatalOutcome[string](err)
	}
	return okOutcome(answer)
}

// logQuery never fails the request; the answer is already computed.
func (s *QueryService) logQuery(ctx context.Context, tenantID uuid.UUID, question, language string, latency time.Duration, sourceCount int) {
	if s.deps.QueryLogs == nil {
		return
	}
	entry := &model.QueryLog{
		TenantID:         tenantID,
		Query:            question,
		DetectedLanguage: language,
		LatencyMs:        latency.Milliseconds(),
		SourceCount:      sourceCount,
	}
	if err := s.deps.QueryLogs.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to write query log", "tenant_id", tenantID, "error", err)
	}
}

// FormatPassages numbers the retrieved chunks and tags each with its URL.
func FormatPassages(hits []model.SearchHit) string {
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] (source: %s)\n%s", i+1, h.URL, h.Content)
	}
	return sb.String()
}

// ExtractSources dedupes hit URLs in order of first appearance.
func ExtractSources(hits []model.SearchHit) []Source {
	sources := make([]Source, 0, len(hits))
	seen := make(map[string]bool)
	for _, h := range hits {
		if h.URL == "" || seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		sources = append(sources, Source{URL: h.URL, Title: SourceTitle(h.URL)})
	}
	return sources
}

// SourceTitle is the last non-empty path segment of rawURL, or rawURL
// itself when the path is empty.
func SourceTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return rawURL
}

package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/llm"
	"github.com/tgo/captain/knowdesk/internal/model"
)

const testDims = 8

// wordEmbedder hashes words into a small bag-of-words vector. Texts
// containing failMarker fail to embed.
type wordEmbedder struct {
	mu         sync.Mutex
	calls      int
	failMarker string
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.failMarker != "" && strings.Contains(text, e.failMarker) {
		return nil, errors.New("embedding provider rejected input")
	}
	vec := make([]float32, testDims)
	vec[0] = 1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%testDims]++
	}
	return vec, nil
}

// mapEmbedder returns fixed vectors per text.
type mapEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	inputs  []string
}

func (e *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	if e.err != nil {
		return nil, e.err
	}
	vec, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return vec, nil
}

type fakeDetector struct {
	det   llm.Detection
	err   error
	block bool
	calls int
}

func (d *fakeDetector) Detect(ctx context.Context, _ string) (llm.Detection, error) {
	d.calls++
	if d.block {
		<-ctx.Done()
		return llm.Detection{}, ctx.Err()
	}
	return d.det, d.err
}

type fakeTranslator struct {
	out      string
	err      error
	calls    int
	lastFrom string
}

func (t *fakeTranslator) Translate(_ context.Context, _ string, from string) (string, error) {
	t.calls++
	t.lastFrom = from
	return t.out, t.err
}

type fakeGenerator struct {
	answer      string
	err         error
	calls       int
	system      string
	user        string
	temperature float32
	maxTokens   int
}

func (g *fakeGenerator) Generate(_ context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	g.calls++
	g.system, g.user = systemPrompt, userPrompt
	g.temperature, g.maxTokens = temperature, maxTokens
	return g.answer, g.err
}

type failingQueryLogs struct{}

func (failingQueryLogs) Create(context.Context, *model.QueryLog) error {
	return errors.New("query log table is read-only")
}

// failingDocuments wraps a DocumentStore and fails every Upsert.
type failingDocuments struct {
	DocumentStore
}

func (failingDocuments) Upsert(context.Context, uuid.UUID, string, string, string) (*model.UpsertResult, error) {
	return nil, errors.New("connection reset")
}

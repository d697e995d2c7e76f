// Package memory is an in-process implementation of the repositories with
// the same semantics as the postgres ones. Vector search is an exact cosine
// scan. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository"
)

type docKey struct {
	tenantID uuid.UUID
	url      string
}

type Store struct {
	mu         sync.RWMutex
	dimensions int

	tenants   map[uuid.UUID]model.Tenant
	documents map[uuid.UUID]model.Document
	docIndex  map[docKey]uuid.UUID
	chunks    map[uuid.UUID]model.Chunk
	jobs      map[uuid.UUID]model.CrawlJob
	queryLogs []model.QueryLog
}

func New(dimensions int) *Store {
	return &Store{
		dimensions: dimensions,
		tenants:    make(map[uuid.UUID]model.Tenant),
		documents:  make(map[uuid.UUID]model.Document),
		docIndex:   make(map[docKey]uuid.UUID),
		chunks:     make(map[uuid.UUID]model.Chunk),
		jobs:       make(map[uuid.UUID]model.CrawlJob),
	}
}

func (s *Store) Tenants() *TenantRepository { return &TenantRepository{s: s} }
func (s *Store) Documents() *DocumentRepository { return &DocumentRepository{s: s} }
func (s *Store) Chunks() *ChunkRepository { return &ChunkRepository{s: s} }
func (s *Store) CrawlJobs() *CrawlJobRepository { return &CrawlJobRepository{s: s} }
func (s *Store) QueryLogs() *QueryLogRepository { return &QueryLogRepository{s: s} }

// QueryLogEntries returns a copy of every logged query.
func (s *Store) QueryLogEntries() []model.QueryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.QueryLog(nil), s.queryLogs...)
}

type TenantRepository struct{ s *Store }

func (r *TenantRepository) Create(_ context.Context, tenant *model.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	r.s.tenants[tenant.ID] = *tenant
	return nil
}

func (r *TenantRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *TenantRepository) List(_ context.Context, limit, offset int) ([]model.Tenant, int64, error) {
	r.s.mu.RLock()
	all := make([]model.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		all = append(all, t)
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return page(all, limit, offset), int64(len(all)), nil
}

func (r *TenantRepository) ListActive(ctx context.Context) ([]model.Tenant, error) {
	all, _, err := r.List(ctx, -1, 0)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, t := range all {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (r *TenantRepository) Update(_ context.Context, tenant *model.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tenants[tenant.ID]; !ok {
		return repository.ErrNotFound
	}
	tenant.UpdatedAt = time.Now().UTC()
	r.s.tenants[tenant.ID] = *tenant
	return nil
}

func (r *TenantRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tenants[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tenants, id)
	return nil
}

type DocumentRepository struct{ s *Store }

// Upsert holds the store lock for the whole read-compare-write, which gives
// the same atomicity as the row lock in the postgres implementation.
func (r *DocumentRepository) Upsert(_ context.Context, tenantID uuid.UUID, url, title, hash string) (*model.UpsertResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	key := docKey{tenantID: tenantID, url: url}
	id, ok := r.s.docIndex[key]
	if !ok {
		doc := model.Document{
			ID:               uuid.New(),
			TenantID:         tenantID,
			URL:              url,
			Title:            title,
			ContentHash:      hash,
			CrawledAt:        now,
			ContentUpdatedAt: now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		r.s.documents[doc.ID] = doc
		r.s.docIndex[key] = doc.ID
		return &model.UpsertResult{DocumentID: doc.ID, IsNew: true}, nil
	}

	doc := r.s.documents[id]
	if doc.ContentHash == hash {
		return &model.UpsertResult{DocumentID: id, IsUnchanged: true}, nil
	}
	doc.Title = title
	doc.ContentHash = hash
	doc.CrawledAt = now
	doc.ContentUpdatedAt = now
	doc.UpdatedAt = now
	r.s.documents[id] = doc
	return &model.UpsertResult{DocumentID: id}, nil
}

func (r *DocumentRepository) FindByTenantAndURL(_ context.Context, tenantID uuid.UUID, url string) (*model.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.docIndex[docKey{tenantID: tenantID, url: url}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	doc := r.s.documents[id]
	return &doc, nil
}

func (r *DocumentRepository) ListByTenant(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	r.s.mu.RLock()
	var docs []model.Document
	for _, d := range r.s.documents {
		if d.TenantID == tenantID {
			docs = append(docs, d)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })
	return page(docs, limit, offset), int64(len(docs)), nil
}

func (r *DocumentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	doc, ok := r.s.documents[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.s.deleteChunksLocked(func(c model.Chunk) bool { return c.DocumentID == id })
	delete(r.s.docIndex, docKey{tenantID: doc.TenantID, url: doc.URL})
	delete(r.s.documents, id)
	return nil
}

func (r *DocumentRepository) DeleteByTenant(_ context.Context, tenantID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.deleteChunksLocked(func(c model.Chunk) bool { return c.TenantID == tenantID })
	for id, d := range r.s.documents {
		if d.TenantID == tenantID {
			delete(r.s.docIndex, docKey{tenantID: tenantID, url: d.URL})
			delete(r.s.documents, id)
		}
	}
	return nil
}

type ChunkRepository struct{ s *Store }

func (r *ChunkRepository) Store(_ context.Context, chunk *model.Chunk) (uuid.UUID, error) {
	if n := len(chunk.Embedding.Slice()); n != r.s.dimensions {
		return uuid.Nil, fmt.Errorf("%w: got %d, want %d", repository.ErrDimensionMismatch, n, r.s.dimensions)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	chunk.CreatedAt = time.Now().UTC()
	r.s.chunks[chunk.ID] = *chunk
	return chunk.ID, nil
}

func (r *ChunkRepository) Search(_ context.Context, tenantID uuid.UUID, embedding []float32, limit int, threshold float64) ([]model.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(embedding) != r.s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", repository.ErrDimensionMismatch, len(embedding), r.s.dimensions)
	}

	r.s.mu.RLock()
	var hits []model.SearchHit
	for _, c := range r.s.chunks {
		if c.TenantID != tenantID {
			continue
		}
		sim := CosineSimilarity(embedding, c.Embedding.Slice())
		if sim <= threshold {
			continue
		}
		hits = append(hits, model.SearchHit{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Content:    c.Content,
			URL:        c.URL,
			ChunkIndex: c.ChunkIndex,
			Language:   c.Language,
			Metadata:   c.Metadata,
			Similarity: sim,
		})
	}
	r.s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].URL != hits[j].URL {
			return hits[i].URL < hits[j].URL
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *ChunkRepository) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deleteChunksLocked(func(c model.Chunk) bool { return c.DocumentID == documentID })
	return nil
}

func (r *ChunkRepository) CountByDocument(_ context.Context, documentID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, c := range r.s.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (r *ChunkRepository) ListByDocument(_ context.Context, documentID uuid.UUID) ([]model.Chunk, error) {
	r.s.mu.RLock()
	var chunks []model.Chunk
	for _, c := range r.s.chunks {
		if c.DocumentID == documentID {
			chunks = append(chunks, c)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

type CrawlJobRepository struct{ s *Store }

func (r *CrawlJobRepository) Create(_ context.Context, job *model.CrawlJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	r.s.jobs[job.ID] = *job
	return nil
}

func (r *CrawlJobRepository) Update(_ context.Context, job *model.CrawlJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	r.s.jobs[job.ID] = *job
	return nil
}

func (r *CrawlJobRepository) FindByID(_ context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	job, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &job, nil
}

func (r *CrawlJobRepository) ListByTenant(_ context.Context, tenantID uuid.UUID, limit int) ([]model.CrawlJob, error) {
	r.s.mu.RLock()
	var jobs []model.CrawlJob
	for _, j := range r.s.jobs {
		if j.TenantID == tenantID {
			jobs = append(jobs, j)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return page(jobs, limit, 0), nil
}

func (r *CrawlJobRepository) MarkStale(_ context.Context, message string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for id, j := range r.s.jobs {
		if j.Status != model.CrawlJobStatusPending && j.Status != model.CrawlJobStatusInProgress {
			continue
		}
		j.Status = model.CrawlJobStatusFailed
		j.ErrorMessage = message
		j.FinishedAt = &now
		r.s.jobs[id] = j
		n++
	}
	return n, nil
}

type QueryLogRepository struct{ s *Store }

func (r *QueryLogRepository) Create(_ context.Context, entry *model.QueryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now().UTC()
	r.s.queryLogs = append(r.s.queryLogs, *entry)
	return nil
}

func (s *Store) deleteChunksLocked(match func(model.Chunk) bool) {
	for id, c := range s.chunks {
		if match(c) {
			delete(s.chunks, id)
		}
	}
}

// CosineSimilarity returns 0 when either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// page applies limit/offset; a negative limit returns everything after offset.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

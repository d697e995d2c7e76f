package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/model"
)

// The store interfaces below are satisfied by both internal/repository
// (postgres + pgvector) and internal/repository/memory.

type TenantStore interface {
	Create(ctx context.Context, tenant *model.Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	List(ctx context.Context, limit, offset int) ([]model.Tenant, int64, error)
	ListActive(ctx context.Context) ([]model.Tenant, error)
	Update(ctx context.Context, tenant *model.Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type DocumentStore interface {
	Upsert(ctx context.Context, tenantID uuid.UUID, url, title, hash string) (*model.UpsertResult, error)
	FindByTenantAndURL(ctx context.Context, tenantID uuid.UUID, url string) (*model.Document, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]model.Document, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

// ChunkIndex is the vector index. Search must always filter by tenant.
type ChunkIndex interface {
	Store(ctx context.Context, chunk *model.Chunk) (uuid.UUID, error)
	Search(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int, threshold float64) ([]model.SearchHit, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.Chunk, error)
}

type CrawlJobStore interface {
	Create(ctx context.Context, job *model.CrawlJob) error
	Update(ctx context.Context, job *model.CrawlJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.CrawlJob, error)
	MarkStale(ctx context.Context, message string) (int64, error)
}

type QueryLogStore interface {
	Create(ctx context.Context, entry *model.QueryLog) error
}

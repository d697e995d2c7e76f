package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tgo/captain/knowdesk/internal/model"
)

type CrawlJobRepository struct {
	db *gorm.DB
}

func NewCrawlJobRepository(db *gorm.DB) *CrawlJobRepository {
	return &CrawlJobRepository{db: db}
}

func (r *CrawlJobRepository) Create(ctx context.Context, job *model.CrawlJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *CrawlJobRepository) Update(ctx context.Context, job *model.CrawlJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *CrawlJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	var job model.CrawlJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *CrawlJobRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]model.CrawlJob, error) {
	var jobs []model.CrawlJob
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// MarkStale fails every job still pending or in progress. It is run at
// startup, when no crawl from this process can be live yet.
func (r *CrawlJobRepository) MarkStale(ctx context.Context, message string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.CrawlJob{}).
		Where("status IN ?", []model.CrawlJobStatus{model.CrawlJobStatusPending, model.CrawlJobStatusInProgress}).
		Updates(map[string]interface{}{
			"status":        model.CrawlJobStatusFailed,
			"error_message": message,
			"finished_at":   now,
		})
	return res.RowsAffected, res.Error
}

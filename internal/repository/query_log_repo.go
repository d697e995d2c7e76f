package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tgo/captain/knowdesk/internal/model"
)

type QueryLogRepository struct {
	db *gorm.DB
}

func NewQueryLogRepository(db *gorm.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func (r *QueryLogRepository) Create(ctx context.Context, entry *model.QueryLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

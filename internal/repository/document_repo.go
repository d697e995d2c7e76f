package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tgo/captain/knowdesk/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert is the change-detection step of ingestion. It runs in a
// transaction holding a row lock on (tenant, url); a concurrent insert that
// loses the race on the unique index is retried once and then sees the
// winner's row.
func (r *DocumentRepository) Upsert(ctx context.Context, tenantID uuid.UUID, url, title, hash string) (*model.UpsertResult, error) {
	result, err := r.upsert(ctx, tenantID, url, title, hash)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.upsert(ctx, tenantID, url, title, hash)
	}
	return result, err
}

func (r *DocumentRepository) upsert(ctx context.Context, tenantID uuid.UUID, url, title, hash string) (*model.UpsertResult, error) {
	var result *model.UpsertResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND url = ?", tenantID, url).
			First(&doc).Error

		now := time.Now().UTC()
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			doc = model.Document{
				TenantID:         tenantID,
				URL:              url,
				Title:            title,
				ContentHash:      hash,
				CrawledAt:        now,
				ContentUpdatedAt: now,
			}
			if err := tx.Create(&doc).Error; err != nil {
				return err
			}
			result = &model.UpsertResult{DocumentID: doc.ID, IsNew: true}
			return nil
		case err != nil:
			return err
		}

		if doc.ContentHash == hash {
			result = &model.UpsertResult{DocumentID: doc.ID, IsUnchanged: true}
			return nil
		}

		err = tx.Model(&doc).Updates(map[string]interface{}{
			"title":              title,
			"content_hash":       hash,
			"crawled_at":         now,
			"content_updated_at": now,
		}).Error
		if err != nil {
			return err
		}
		result = &model.UpsertResult{DocumentID: doc.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *DocumentRepository) FindByTenantAndURL(ctx context.Context, tenantID uuid.UUID, url string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND url = ?", tenantID, url).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Document{}).Where("tenant_id = ?", tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("url ASC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, total, err
}

// Delete removes the document and its chunks in one transaction.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteByTenant removes every document and chunk owned by the tenant.
func (r *DocumentRepository) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ?", tenantID).Delete(&model.Document{}).Error
	})
}

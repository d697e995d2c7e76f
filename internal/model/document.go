package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is the change-detection record for one (tenant, url) pair.
// Deletes are hard deletes so the unique index never collides with a
// tombstoned row.
type Document struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_kd_documents_tenant_url,priority:1" json:"tenant_id"`
	URL              string    `gorm:"size:2000;not null;uniqueIndex:idx_kd_documents_tenant_url,priority:2" json:"url"`
	Title            string    `gorm:"size:500" json:"title"`
	ContentHash      string    `gorm:"size:64;not null" json:"content_hash"`
	CrawledAt        time.Time `json:"crawled_at"`
	ContentUpdatedAt time.Time `json:"content_updated_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Document) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (Document) TableName() string {
	return "kd_documents"
}

// UpsertResult reports what the change-detection store decided for a page.
type UpsertResult struct {
	DocumentID  uuid.UUID
	IsNew       bool
	IsUnchanged bool
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueryLog is written once per served query and never updated.
type QueryLog struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Query            string    `gorm:"type:text;not null" json:"query"`
	DetectedLanguage string    `gorm:"size:16" json:"detected_language"`
	LatencyMs        int64     `json:"latency_ms"`
	SourceCount      int       `json:"source_count"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (m *QueryLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (QueryLog) TableName() string {
	return "kd_query_logs"
}

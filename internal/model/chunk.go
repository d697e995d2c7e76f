package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type Chunk struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	TenantID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Content    string          `gorm:"type:text;not null" json:"content"`
	Embedding  pgvector.Vector `gorm:"type:vector" json:"-"` // dimension is fixed by database.AutoMigrate
	ChunkIndex int             `gorm:"not null;default:0" json:"chunk_index"`
	URL        string          `gorm:"size:2000" json:"url"`
	Language   string          `gorm:"size:16" json:"language"`
	Metadata   JSONMap         `gorm:"type:jsonb" json:"metadata"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (m *Chunk) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (Chunk) TableName() string {
	return "kd_chunks"
}

// SearchHit is one nearest-neighbour result. Similarity is 1 - cosine distance.
type SearchHit struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
	URL        string    `json:"url"`
	ChunkIndex int       `json:"chunk_index"`
	Language   string    `json:"language"`
	Metadata   JSONMap   `json:"metadata,omitempty"`
	Similarity float64   `json:"similarity"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type CrawlJobStatus string

const (
	CrawlJobStatusPending    CrawlJobStatus = "pending"
	CrawlJobStatusInProgress CrawlJobStatus = "in_progress"
	CrawlJobStatusCompleted  CrawlJobStatus = "completed"
	CrawlJobStatusFailed     CrawlJobStatus = "failed"
	CrawlJobStatusCancelled  CrawlJobStatus = "cancelled"
)

// IsTerminal reports whether the job can no longer change state.
func (s CrawlJobStatus) IsTerminal() bool {
	switch s {
	case CrawlJobStatusCompleted, CrawlJobStatusFailed, CrawlJobStatusCancelled:
		return true
	}
	return false
}

type CrawlJob struct {
	BaseModel
	TenantID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	StartURL         string         `gorm:"size:2000;not null" json:"start_url"`
	Status           CrawlJobStatus `gorm:"size:32;not null;default:'pending';index" json:"status"`
	ScannedDomains   StringArray    `gorm:"type:jsonb" json:"scanned_domains"`
	MaxDepth         int            `json:"max_depth"`
	RateLimitMs      int            `json:"rate_limit_ms"`
	PagesVisited     int            `json:"pages_visited"`
	PagesFailed      int            `json:"pages_failed"`
	DocumentsCreated int            `json:"documents_created"`
	DocumentsUpdated int            `json:"documents_updated"`
	ChunksCreated    int            `json:"chunks_created"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
}

func (CrawlJob) TableName() string {
	return "kd_crawl_jobs"
}

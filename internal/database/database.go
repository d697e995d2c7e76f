package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/model"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the pgvector extension, migrates every table and pins
// the embedding column to the configured dimension so the HNSW cosine index
// can be built.
func AutoMigrate(db *gorm.DB, dimensions int) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Tenant{},
		&model.Document{},
		&model.Chunk{},
		&model.CrawlJob{},
		&model.QueryLog{},
	); err != nil {
		return err
	}

	alter := fmt.Sprintf("ALTER TABLE kd_chunks ALTER COLUMN embedding TYPE vector(%d)", dimensions)
	if err := db.Exec(alter).Error; err != nil {
		return fmt.Errorf("set embedding dimension: %w", err)
	}

	index := "CREATE INDEX IF NOT EXISTS idx_kd_chunks_embedding ON kd_chunks USING hnsw (embedding vector_cosine_ops)"
	if err := db.Exec(index).Error; err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}

	return nil
}

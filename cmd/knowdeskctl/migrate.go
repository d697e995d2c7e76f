package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != "postgres" {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := database.AutoMigrate(db, cfg.EmbeddingDimensions); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	cmd.Printf("schema migrated (embedding dimensions %d)\n", cfg.EmbeddingDimensions)
	return nil
}

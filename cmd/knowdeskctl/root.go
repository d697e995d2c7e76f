package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tgo/captain/knowdesk/internal/app"
	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:           "knowdeskctl",
	Short:         "Operate a knowdesk deployment",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		_ = godotenv.Load()
	},
}

// newApp builds the application from the environment. Tests replace it.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel, true)
	return app.New(ctx, cfg, logger, app.Options{SkipMigrate: true})
}

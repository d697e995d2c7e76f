package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tgo/captain/knowdesk/internal/app"
	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/handler"
	"github.com/tgo/captain/knowdesk/internal/pkg/logging"
	"github.com/tgo/captain/knowdesk/internal/task"
	"github.com/tgo/captain/knowdesk/internal/trace"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.IsDevelopment())

	closeTrace := trace.Init(cfg.CozeloopWorkspaceID, cfg.CozeloopAPIToken, logger)
	defer closeTrace(context.Background())

	application, err := app.New(context.Background(), cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// Startup tasks run before the server accepts new crawl jobs.
	startup := task.NewScheduler()
	startup.RegisterTask(task.NewStaleCrawlJobRecoveryTask(application.Stores.Jobs))
	if err := startup.RunOnce(context.Background()); err != nil {
		logger.Warn("startup tasks failed", "error", err)
	}

	periodic := task.NewScheduler()
	if cfg.RecrawlInterval > 0 {
		periodic.RegisterTask(task.NewTenantRecrawlTask(application.Stores.Tenants, application.Crawl))
		periodic.StartPeriodic(cfg.RecrawlInterval)
	}

	router := handler.SetupRouter(cfg, application.Services(), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	periodic.Stop()
	if err := application.Jobs.Shutdown(ctx); err != nil {
		logger.Warn("crawl jobs did not stop in time", "error", err)
	}

	logger.Info("server exited")
}

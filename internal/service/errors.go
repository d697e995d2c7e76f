package service

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantInactive     = errors.New("tenant is inactive")
	ErrCrawlJobNotFound   = errors.New("crawl job not found")
	ErrCrawlJobNotRunning = errors.New("crawl job is not running")
	ErrIngestStore        = errors.New("ingest store write failed")
	ErrQueryFailed        = errors.New("failed to answer query")
	ErrShuttingDown       = errors.New("crawl manager is shutting down")
)

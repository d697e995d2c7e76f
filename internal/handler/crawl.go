package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tgo/captain/knowdesk/internal/pkg/response"
	"github.com/tgo/captain/knowdesk/internal/service"
)

type CrawlHandler struct {
	crawl *service.CrawlService
	jobs  *service.CrawlJobManager
}

func NewCrawlHandler(crawl *service.CrawlService, jobs *service.CrawlJobManager) *CrawlHandler {
	return &CrawlHandler{crawl: crawl, jobs: jobs}
}

// Crawl runs a crawl inside the request and returns its counters. A crawl
// that stopped early still reports what it ingested.
func (h *CrawlHandler) Crawl(c *gin.Context) {
	tenantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.crawl.Crawl(c.Request.Context(), tenantID, &req)
	if err != nil {
		if result == nil {
			writeServiceError(c, err, "failed to crawl")
			return
		}
		_ = c.Error(err)
		if errors.Is(err, service.ErrIngestStore) {
			response.Error(c, http.StatusInternalServerError, "CRAWL_FAILED", "failed to store crawled content", result)
			return
		}
	}

	response.Success(c, result)
}

func (h *CrawlHandler) StartJob(c *gin.Context) {
	tenantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.Start(c.Request.Context(), tenantID, &req)
	if err != nil {
		writeServiceError(c, err, "failed to start crawl job")
		return
	}

	response.Accepted(c, job)
}

func (h *CrawlHandler) ListJobs(c *gin.Context) {
	tenantID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.jobs.ListByTenant(c.Request.Context(), tenantID, limit)
	if err != nil {
		writeServiceError(c, err, "failed to list crawl jobs")
		return
	}

	response.Success(c, gin.H{"data": jobs})
}

func (h *CrawlHandler) GetJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, "failed to load crawl job")
		return
	}

	response.Success(c, gin.H{
		"job":     job,
		"running": h.jobs.IsRunning(id),
	})
}

func (h *CrawlHandler) CancelJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.jobs.Cancel(c.Request.Context(), id); err != nil {
		writeServiceError(c, err, "failed to cancel crawl job")
		return
	}

	response.Accepted(c, gin.H{"id": id, "status": "cancelling"})
}

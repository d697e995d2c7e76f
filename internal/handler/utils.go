package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/pkg/response"
	"github.com/tgo/captain/knowdesk/internal/service"
)

const maxPageLimit = 100

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxPageLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// writeServiceError maps service sentinels to the error envelope. Anything
// unrecognised becomes a 500 carrying fallback instead of the error text.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrTenantNotFound):
		response.NotFound(c, "TENANT")
	case errors.Is(err, service.ErrCrawlJobNotFound):
		response.NotFound(c, "CRAWL_JOB")
	case errors.Is(err, service.ErrTenantInactive):
		response.Conflict(c, "TENANT_INACTIVE", "tenant is inactive")
	case errors.Is(err, service.ErrCrawlJobNotRunning):
		response.Conflict(c, "CRAWL_JOB_NOT_RUNNING", "crawl job is not running")
	case errors.Is(err, service.ErrShuttingDown):
		response.Unavailable(c, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c, fallback)
	}
}

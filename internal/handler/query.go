package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/pkg/response"
	"github.com/tgo/captain/knowdesk/internal/service"
)

type QueryHandler struct {
	svc *service.QueryService
}

func NewQueryHandler(svc *service.QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type queryRequest struct {
	TenantID          string `json:"tenant_id" binding:"required"`
	Query             string `json:"query" binding:"required"`
	PreferredLanguage string `json:"preferred_language"`
}

// Ask answers a visitor question. Internal failures never leak detail to
// the caller.
func (h *QueryHandler) Ask(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		response.BadRequest(c, "invalid tenant_id")
		return
	}

	resp, err := h.svc.Ask(c.Request.Context(), &service.QueryRequest{
		TenantID:          tenantID,
		Query:             req.Query,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		writeServiceError(c, err, service.ErrQueryFailed.Error())
		return
	}

	response.Success(c, resp)
}

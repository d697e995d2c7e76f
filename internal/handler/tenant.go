package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tgo/captain/knowdesk/internal/pkg/response"
	"github.com/tgo/captain/knowdesk/internal/service"
)

type TenantHandler struct {
	svc *service.TenantService
}

func NewTenantHandler(svc *service.TenantService) *TenantHandler {
	return &TenantHandler{svc: svc}
}

func (h *TenantHandler) List(c *gin.Context) {
	limit, offset := pagination(c)

	tenants, total, err := h.svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeServiceError(c, err, "failed to list tenants")
		return
	}

	response.List(c, tenants, total, limit, offset)
}

func (h *TenantHandler) Create(c *gin.Context) {
	var req service.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tenant, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, err, "failed to create tenant")
		return
	}

	response.Created(c, tenant)
}

func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	tenant, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, "failed to load tenant")
		return
	}

	response.Success(c, tenant)
}

func (h *TenantHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, err, "failed to delete tenant")
		return
	}

	response.NoContent(c)
}

type updateDomainsRequest struct {
	AllowedDomains []string `json:"allowed_domains" binding:"required"`
}

func (h *TenantHandler) UpdateDomains(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req updateDomainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tenant, err := h.svc.UpdateDomains(c.Request.Context(), id, req.AllowedDomains)
	if err != nil {
		writeServiceError(c, err, "failed to update domains")
		return
	}

	response.Success(c, tenant)
}

func (h *TenantHandler) ListDocuments(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, offset := pagination(c)

	docs, total, err := h.svc.ListDocuments(c.Request.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(c, err, "failed to list documents")
		return
	}

	response.List(c, docs, total, limit, offset)
}

package handler

import (
	"strconv"

	"leadflow_backend/internal/agents/service"
	"leadflow_backend/internal/agents/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:leadId", h.GetByLead)
}

func (h *Handler) GetByLead(c *gin.Context) {
	leadID, err := strconv.ParseInt(c.Param("leadId"), 10, 64)
	if err != nil || leadID <= 0 {
		httpkit.HandleError(c, apperr.Validation("lead id must be a positive integer"))
		return
	}

	a, err := h.svc.Get(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToAssignmentResponse(a))
}

package handler

import (
	"net/http"
	"strconv"

	"leadflow_backend/internal/quotes/service"
	"leadflow_backend/internal/quotes/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
}

const msgInvalidRequest = "invalid request"

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.ListByLead)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/decision", h.Decide)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	q, err := h.svc.CreateQuote(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToQuoteResponse(q))
}

func (h *Handler) GetByID(c *gin.Context) {
	q, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToQuoteResponse(q))
}

func (h *Handler) ListByLead(c *gin.Context) {
	leadID, err := strconv.ParseInt(c.Query("leadId"), 10, 64)
	if err != nil || leadID <= 0 {
		httpkit.HandleError(c, apperr.Validation("leadId query parameter is required"))
		return
	}

	items, err := h.svc.ListByLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToQuoteResponses(items)})
}

func (h *Handler) Decide(c *gin.Context) {
	var req transport.DecideQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	q, err := h.svc.Decide(c.Request.Context(), c.Param("id"), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToQuoteResponse(q))
}

package handler

import (
	"strconv"
	"time"

	"leadflow_backend/internal/owners/domain"
	"leadflow_backend/internal/owners/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type EntryResponse struct {
	OwnerID   string    `json:"ownerId"`
	LeadID    int64     `json:"leadId"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toEntryResponses(entries []domain.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{OwnerID: e.OwnerID, LeadID: e.LeadID, Status: e.Status, Reason: e.Reason, UpdatedAt: e.UpdatedAt})
	}
	return out
}

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:ownerId/leads", h.ListLeads)
	rg.GET("/:ownerId/leads/:leadId/history", h.History)
	rg.GET("/:ownerId/leads/:leadId/latest", h.Latest)
}

func (h *Handler) ListLeads(c *gin.Context) {
	items, err := h.svc.ListByOwner(c.Request.Context(), c.Param("ownerId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toEntryResponses(items))
}

func (h *Handler) History(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpkit.HandleError(c, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.svc.History(c.Request.Context(), c.Param("ownerId"), leadID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toEntryResponses(entries))
}

func (h *Handler) Latest(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	e, err := h.svc.Latest(c.Request.Context(), c.Param("ownerId"), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toEntryResponses([]domain.Entry{e})[0])
}

func parseLeadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("leadId"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.HandleError(c, apperr.Validation("lead id must be a positive integer"))
		return 0, false
	}
	return id, true
}

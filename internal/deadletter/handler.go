package deadletter

import (
	"strconv"
	"time"

	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecordResponse is the operator view of a dead letter.
type RecordResponse struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Consumer   string          `json:"consumer"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	LeadID     string          `json:"leadId"`
	Envelope   events.Envelope `json:"envelope"`
	Reason     string          `json:"reason"`
	Attempts   int             `json:"attempts"`
	FailedAt   time.Time       `json:"failedAt"`
	ReplayedAt *time.Time      `json:"replayedAt,omitempty"`
}

func toResponse(rec Record) RecordResponse {
	return RecordResponse{
		ID:         rec.ID.String(),
		Topic:      rec.Topic,
		Consumer:   rec.Consumer,
		EventID:    rec.EventID,
		EventType:  rec.EventType,
		LeadID:     rec.LeadID,
		Envelope:   rec.Envelope,
		Reason:     rec.Reason,
		Attempts:   rec.Attempts,
		FailedAt:   rec.FailedAt,
		ReplayedAt: rec.ReplayedAt,
	}
}

// DefaultPath is where the dead-letter endpoints of a service are mounted
// under the operator API.
const DefaultPath = "/dead-letters"

// Module exposes the operator dead-letter endpoints of one service.
type Module struct {
	svc  *Service
	path string
}

// NewModule mounts svc at path, or at DefaultPath when path is empty.
func NewModule(svc *Service, path string) *Module {
	if path == "" {
		path = DefaultPath
	}
	return &Module{svc: svc, path: path}
}

func (m *Module) Name() string {
	return "deadletter"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rg := ctx.V1.Group(m.path)
	rg.GET("", m.list)
	rg.POST("/:id/replay", m.replay)
}

func (m *Module) list(c *gin.Context) {
	filter := ListFilter{
		Consumer:        c.Query("consumer"),
		IncludeReplayed: c.Query("includeReplayed") == "true",
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpkit.HandleError(c, apperr.Validation("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	items, err := m.svc.List(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]RecordResponse, 0, len(items))
	for _, rec := range items {
		out = append(out, toResponse(rec))
	}
	httpkit.OK(c, out)
}

func (m *Module) replay(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("dead letter id must be a uuid"))
		return
	}

	rec, err := m.svc.Replay(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(rec))
}

var _ apphttp.Module = (*Module)(nil)

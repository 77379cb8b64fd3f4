package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/cassa/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler handles health and system info endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	db        Pinger
	sync      SyncService
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. sync may be nil when the
// realtime session is disabled.
func NewSystemHandler(name, version string, db Pinger, sync SyncService) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		db:        db,
		sync:      sync,
		startTime: time.Now(),
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Database  string `json:"database"`
	Sync      string `json:"sync,omitempty"`
}

// Health handles GET /health. A failing database ping answers 503.
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Database:  "ok",
	}
	if h.sync != nil {
		resp.Sync = string(h.sync.Status().State)
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, dto.NewSuccessResponse(resp))
			return
		}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}

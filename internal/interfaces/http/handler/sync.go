package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cassa/backend/internal/application/realtime"
	"github.com/cassa/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// maxEventPayload bounds a single pushed event body
const maxEventPayload = 64 << 10

// SyncService is the realtime reconciler as used by the API
type SyncService interface {
	OnEvent(ctx context.Context, class string, payload []byte) (realtime.Outcome, error)
	Refresh(ctx context.Context, reason string) error
	Status() realtime.Status
}

// SyncHandler handles event intake and cache sync endpoints
type SyncHandler struct {
	BaseHandler
	sync SyncService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// EventResponse reports what the reconciler did with a pushed event
type EventResponse struct {
	Class   string `json:"class"`
	Outcome string `json:"outcome"`
}

// SyncStatusResponse exposes the reconciler session
type SyncStatusResponse struct {
	SessionID    string         `json:"session_id"`
	State        string         `json:"state"`
	CacheVersion uint64         `json:"cache_version"`
	CacheValid   bool           `json:"cache_valid"`
	FetchedAt    *time.Time     `json:"fetched_at,omitempty"`
	Invalidated  string         `json:"invalidated_by,omitempty"`
	Refreshes    int64          `json:"refreshes"`
	Accepted     int64          `json:"accepted"`
	Duplicates   int64          `json:"duplicates"`
	Filtered     int64          `json:"filtered"`
	Ignored      int64          `json:"ignored"`
	Reconnects   int            `json:"reconnects"`
	LastError    string         `json:"last_error,omitempty"`
	Buckets      map[string]int `json:"buckets"`
}

// PushEvent handles POST /events/:class
func (h *SyncHandler) PushEvent(c *gin.Context) {
	class := c.Param("class")
	if !realtime.IsKnownClass(class) {
		h.BadRequest(c, "unknown event class: "+class)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventPayload))
	if err != nil {
		h.BadRequest(c, "failed to read event payload")
		return
	}

	outcome, err := h.sync.OnEvent(c.Request.Context(), class, payload)
	if err != nil {
		if errors.Is(err, realtime.ErrUnknownEventClass) {
			h.BadRequest(c, "unknown event class: "+class)
			return
		}
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(EventResponse{Class: class, Outcome: string(outcome)}))
}

// Status handles GET /sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	h.Success(c, toSyncStatusResponse(h.sync.Status()))
}

// Refresh handles POST /sync/refresh. It runs a full fetch before answering.
func (h *SyncHandler) Refresh(c *gin.Context) {
	if err := h.sync.Refresh(c.Request.Context(), "manual"); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSyncStatusResponse(h.sync.Status()))
}

func toSyncStatusResponse(s realtime.Status) SyncStatusResponse {
	resp := SyncStatusResponse{
		SessionID:    s.SessionID,
		State:        string(s.State),
		CacheVersion: s.CacheVersion,
		CacheValid:   s.CacheValid,
		Invalidated:  s.Invalidated,
		Refreshes:    s.Refreshes,
		Accepted:     s.Accepted,
		Duplicates:   s.Duplicates,
		Filtered:     s.Filtered,
		Ignored:      s.Ignored,
		Reconnects:   s.Reconnects,
		LastError:    s.LastError,
		Buckets:      make(map[string]int, len(s.Buckets)),
	}
	if !s.FetchedAt.IsZero() {
		t := s.FetchedAt
		resp.FetchedAt = &t
	}
	for b, n := range s.Buckets {
		resp.Buckets[string(b)] = n
	}
	return resp
}

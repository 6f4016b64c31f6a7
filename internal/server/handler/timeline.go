package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// TimelineService defines the methods that the timeline handler requires
// from the service layer.
type TimelineService interface {
	Timeline(ctx context.Context, positionID string) (domain.Timeline, error)
	Rebuild(ctx context.Context, positionID string) (domain.Timeline, error)
	Live(ctx context.Context, positionID string, asOf time.Time) (domain.PositionSnapshot, error)
}

// TimelineHandler serves position timelines and live state.
type TimelineHandler struct {
	timelines TimelineService
	logger    *slog.Logger
	now       func() time.Time
}

// NewTimelineHandler creates a TimelineHandler.
func NewTimelineHandler(timelines TimelineService, logger *slog.Logger) *TimelineHandler {
	return &TimelineHandler{
		timelines: timelines,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// liveResponse wraps a live snapshot with the instant it describes.
type liveResponse struct {
	PositionID string                  `json:"position_id"`
	AsOf       time.Time               `json:"as_of"`
	State      domain.PositionSnapshot `json:"state"`
}

// GetTimeline returns the position's enriched event history.
// GET /api/troves/{id}/timeline
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.timelines.Timeline(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get timeline", err)
		return
	}
	if tl.Events == nil {
		tl.Events = []domain.EnrichedEvent{}
	}
	writeJSON(w, http.StatusOK, tl)
}

// GetLive returns the position's state with interest accrued to ?at=<unix
// seconds>, defaulting to now.
// GET /api/troves/{id}/live?at=1735689600
func (h *TimelineHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseUnixParam(r, "at", h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, "live state", err)
		return
	}
	id := pathParam(r, "id")
	snap, err := h.timelines.Live(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, r, h.logger, "live state", err)
		return
	}
	writeJSON(w, http.StatusOK, liveResponse{PositionID: id, AsOf: asOf, State: snap})
}

// Rebuild reconstructs the position from its stored events.
// POST /api/troves/{id}/rebuild
func (h *TimelineHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	tl, err := h.timelines.Rebuild(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position_id": tl.PositionID,
		"events":      len(tl.Events),
		"status":      tl.Last().Status,
		"built_at":    tl.BuiltAt,
	})
}

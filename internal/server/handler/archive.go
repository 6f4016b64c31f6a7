package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/alanyoungcy/troveledger/internal/blob/s3"
	"github.com/alanyoungcy/troveledger/internal/domain"
)

// Archive reads exported timelines back from object storage.
type Archive interface {
	Archived(ctx context.Context, positionID string, day time.Time) (domain.Timeline, error)
	Manifest(ctx context.Context, day time.Time) ([]s3blob.ManifestEntry, error)
}

// ArchiveHandler serves daily timeline exports.
type ArchiveHandler struct {
	archive Archive
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archive Archive, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logger}
}

// GetArchived returns the timeline exported for a position on a day.
// GET /api/troves/{id}/archive/{date}
func (h *ArchiveHandler) GetArchived(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(pathParam(r, "date"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get archived timeline", err)
		return
	}
	tl, err := h.archive.Archived(r.Context(), pathParam(r, "id"), day)
	if err != nil {
		writeServiceError(w, r, h.logger, "get archived timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// GetManifest lists every export run of a day.
// GET /api/archive/{date}
func (h *ArchiveHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	day, err := parseDay(pathParam(r, "date"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get manifest", err)
		return
	}
	entries, err := h.archive.Manifest(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, h.logger, "get manifest", err)
		return
	}
	if entries == nil {
		entries = []s3blob.ManifestEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(time.DateOnly), "entries": entries})
}

func parseDay(v string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, &domain.InputConstraintError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return day, nil
}

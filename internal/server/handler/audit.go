package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

const maxAuditLimit = 500

// AuditLog is the read side of the audit store.
type AuditLog interface {
	List(ctx context.Context, event string, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler exposes the audit log to operators.
type AuditHandler struct {
	audit  AuditLog
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

type auditJSON struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit returns recent audit entries.
// GET /api/audit?event=&since=&limit=&offset=
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 100}

	var err error
	if opts.Limit, err = intParam(q.Get("limit"), "limit", opts.Limit); err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset"), "offset", 0); err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if opts.Limit < 1 || opts.Limit > maxAuditLimit {
		writeServiceError(w, r, h.logger, "list audit",
			&domain.InputConstraintError{Field: "limit", Reason: "must be 1-" + strconv.Itoa(maxAuditLimit)})
		return
	}
	if q.Get("since") != "" {
		since, err := parseUnixParam(r, "since", time.Time{})
		if err != nil {
			writeServiceError(w, r, h.logger, "list audit", err)
			return
		}
		opts.Since = &since
	}

	entries, err := h.audit.List(r.Context(), q.Get("event"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	out := make([]auditJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditJSON{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func intParam(v, name string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &domain.InputConstraintError{Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}

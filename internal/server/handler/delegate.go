package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// DelegateService defines the methods that the delegate handler requires
// from the service layer.
type DelegateService interface {
	List(ctx context.Context) ([]domain.Delegate, error)
	Rename(ctx context.Context, manager, name string) (domain.Delegate, error)
}

// DelegateHandler serves batch manager display names.
type DelegateHandler struct {
	delegates DelegateService
	logger    *slog.Logger
}

// NewDelegateHandler creates a DelegateHandler.
func NewDelegateHandler(delegates DelegateService, logger *slog.Logger) *DelegateHandler {
	return &DelegateHandler{delegates: delegates, logger: logger}
}

type delegateJSON struct {
	Manager   string `json:"manager"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toDelegateJSON(d domain.Delegate) delegateJSON {
	out := delegateJSON{Manager: d.Manager.Hex(), Name: d.Name}
	if !d.UpdatedAt.IsZero() {
		out.UpdatedAt = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// ListDelegates returns every named batch manager.
// GET /api/delegates
func (h *DelegateHandler) ListDelegates(w http.ResponseWriter, r *http.Request) {
	list, err := h.delegates.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list delegates", err)
		return
	}
	out := make([]delegateJSON, 0, len(list))
	for _, d := range list {
		out = append(out, toDelegateJSON(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"delegates": out})
}

// RenameDelegate sets a batch manager's display name from {"name": "..."}.
// PUT /api/delegates/{manager}
func (h *DelegateHandler) RenameDelegate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.delegates.Rename(r.Context(), pathParam(r, "manager"), body.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, "rename delegate", err)
		return
	}
	writeJSON(w, http.StatusOK, toDelegateJSON(d))
}

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/models"
	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/store"
)

// Supported actions.
const (
	ActionPush = "push"
	ActionPull = "pull"
)

// maxBodyBytes bounds a pushed snapshot.
const maxBodyBytes = 32 << 20

// ReplicaHandler serves the spreadsheet script endpoints.
type ReplicaHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewReplicaHandler creates a new ReplicaHandler.
func NewReplicaHandler(s *store.Store, logger *slog.Logger) *ReplicaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplicaHandler{store: s, logger: logger}
}

// Post handles POST /. A push replaces both sheets. Other actions are
// accepted and ignored, as the script does.
func (h *ReplicaHandler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req models.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Action == ActionPush {
		if err := h.store.ReplaceSnapshot(req.Transactions, req.Accounts); err != nil {
			h.logger.Error("failed to replace sheets", "error", err, "request_id", RequestIDFrom(r.Context()))
			writeJSONError(w, http.StatusInternalServerError, "failed to write sheets")
			return
		}
		h.logger.Info("snapshot pushed",
			"transactions", len(req.Transactions),
			"accounts", len(req.Accounts),
			"request_id", RequestIDFrom(r.Context()))
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "success"})
}

// Get handles GET /?action=pull.
func (h *ReplicaHandler) Get(w http.ResponseWriter, r *http.Request) {
	if action := r.URL.Query().Get("action"); action != ActionPull {
		writeJSONError(w, http.StatusBadRequest, "unsupported action")
		return
	}

	snap, err := h.store.Snapshot()
	if err != nil {
		h.logger.Error("failed to read sheets", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeJSONError(w, http.StatusInternalServerError, "failed to read sheets")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

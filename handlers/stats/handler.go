package stats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"filedepot/audit"
	"filedepot/handlers/content"
)

func New(log *slog.Logger, auditLog *audit.Log) Handler {
	return Handler{
		log:      log,
		auditLog: auditLog,
	}
}

// Handler serves per-file access statistics from the audit log.
type Handler struct {
	log      *slog.Logger
	auditLog *audit.Log
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}

	tenantID, err := content.Tenant(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("name")

	s, ok, err := h.auditLog.Get(r.Context(), tenantID, id)
	if err != nil {
		h.log.Error("failed to load audit stats", slog.String("id", id), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no audit records", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

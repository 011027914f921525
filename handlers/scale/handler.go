package scale

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"filedepot/audit"
	"filedepot/files"
	"filedepot/handlers/content"
	"filedepot/metrics"
	"filedepot/scale"
)

func New(log *slog.Logger, db *files.DB, scaler *scale.Scaler, recorder *audit.Recorder, m metrics.Metrics) Handler {
	return Handler{
		log:      log,
		db:       db,
		scaler:   scaler,
		recorder: recorder,
		metrics:  m,
	}
}

// Handler creates scaled derivatives of stored images.
type Handler struct {
	log      *slog.Logger
	db       *files.DB
	scaler   *scale.Scaler
	recorder *audit.Recorder
	metrics  metrics.Metrics
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}

	tenantID, err := content.Tenant(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("name")

	width, err := strconv.Atoi(r.URL.Query().Get("width"))
	if err != nil || width < 1 {
		http.Error(w, "width must be a positive integer", http.StatusBadRequest)
		return
	}

	src, ok, err := h.db.Get(r.Context(), tenantID, id)
	if err != nil {
		h.log.Error("failed to load file record", slog.String("id", id), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	out, err := h.scaler.Scale(r.Context(), src, width)
	if err != nil {
		if errors.Is(err, scale.ErrNotImage) || errors.Is(err, scale.ErrWidthExceedsSource) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("failed to scale image", slog.String("id", id), slog.Int("width", width), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if out == nil {
		h.log.Warn("scaled image could not be stored", slog.String("id", id), slog.Int("width", width))
		http.Error(w, "scaled image could not be stored", http.StatusInsufficientStorage)
		return
	}

	if err := h.db.Put(r.Context(), out); err != nil {
		h.log.Error("failed to persist scaled file record", slog.String("id", id), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.recorder.Write(out.TenantID, out.ID)
	h.metrics.IncrementScales(r.Context())
	h.log.Info("image scaled", slog.String("source", id), slog.String("id", out.ID), slog.Int("width", width))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(out.View()); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

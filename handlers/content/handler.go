package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"filedepot/audit"
	"filedepot/files"
	"filedepot/metrics"
	"filedepot/storage"
)

// Cache-Control values emitted by Get. Exactly one of the two is always set
// for filesystem and database backed files.
const (
	CacheControlPublic  = "public, max-age=31536000"
	CacheControlNoStore = "no-store, no-cache, must-revalidate"
)

func New(log *slog.Logger, db *files.DB, router *storage.Router, fs *storage.Filesystem, recorder *audit.Recorder, m metrics.Metrics, maxUploadBytes int64) Handler {
	return Handler{
		log:            log,
		db:             db,
		router:         router,
		fs:             fs,
		recorder:       recorder,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

// Handler stores and serves file content.
type Handler struct {
	log            *slog.Logger
	db             *files.DB
	router         *storage.Router
	fs             *storage.Filesystem
	recorder       *audit.Recorder
	metrics        metrics.Metrics
	maxUploadBytes int64
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.Get(w, r)
		return
	case http.MethodPut:
		h.Put(w, r)
		return
	case http.MethodDelete:
		h.Delete(w, r)
		return
	}
	http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
}

// Tenant parses the tenant path segment of a request.
func Tenant(r *http.Request) (int64, error) {
	tenantID, err := strconv.ParseInt(r.PathValue("tenant"), 10, 64)
	if err != nil || tenantID < 0 {
		return 0, fmt.Errorf("invalid tenant: %q", r.PathValue("tenant"))
	}
	return tenantID, nil
}

// Put stores the request body as a new file under the tenant.
func (h Handler) Put(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	tenantID, err := Tenant(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filename := r.PathValue("name")
	if filename == "" {
		http.Error(w, "filename required", http.StatusBadRequest)
		return
	}
	if r.ContentLength < 0 {
		http.Error(w, "content length required", http.StatusLengthRequired)
		return
	}
	if r.ContentLength > h.maxUploadBytes {
		http.Error(w, fmt.Sprintf("upload exceeds maximum size of %d bytes", h.maxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	f, err := h.router.Save(r.Context(), tenantID, files.NewToken(), filename, r.ContentLength, body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.log.Error("failed to save file", slog.String("filename", filename), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if f == nil {
		h.log.Warn("no backend accepted the file", slog.String("filename", filename), slog.Int64("tenant", tenantID))
		http.Error(w, "file could not be stored", http.StatusInsufficientStorage)
		return
	}

	if err := h.db.Put(r.Context(), f); err != nil {
		h.log.Error("failed to persist file record", slog.String("filename", filename), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.recorder.Write(f.TenantID, f.ID)
	h.metrics.IncrementUploadMetrics(r.Context(), string(f.Ref.Backend()), f.Size)
	h.log.Info("file uploaded", slog.String("id", f.ID), slog.String("filename", filename), slog.Int64("tenant", tenantID), slog.String("backend", string(f.Ref.Backend())))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(f.View()); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

// Get streams a stored file. Content-Type, Content-Length and Last-Modified
// are always set; Content-Disposition only when download=1; Accept-Ranges
// and Cache-Control for filesystem and database backends. The headers are
// committed before the content read, so a read failure after this point
// produces a response with correct headers and a short or empty body.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := Tenant(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("name")

	f, ok, err := h.db.Get(r.Context(), tenantID, id)
	if err != nil {
		h.log.Error("failed to load file record", slog.String("id", id), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	forceDownload := r.URL.Query().Get("download") == "1"
	allowCache := r.URL.Query().Get("cache") == "1"

	lastModified := f.UploadedAt
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", f.Size))
	w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	if forceDownload {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	if allowCache {
		w.Header().Set("Cache-Control", CacheControlPublic)
	} else {
		w.Header().Set("Cache-Control", CacheControlNoStore)
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch ref := f.Ref.(type) {
	case files.FilesystemRef:
		data, ok, err := h.fs.Read(r.Context(), ref.Path)
		if err != nil || !ok {
			h.log.Error("failed to read file content", slog.String("id", id), slog.String("path", ref.Path), slog.Any("error", err))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			h.log.Error("failed to serve file", slog.String("id", id), slog.Any("error", err))
			return
		}
	case files.DatabaseRef:
		rc, _, err := ref.Handle.Open(r.Context())
		if err != nil {
			h.log.Error("failed to open large object", slog.String("id", id), slog.Any("error", err))
			w.WriteHeader(http.StatusOK)
			return
		}
		defer rc.Close()
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			h.log.Error("failed to serve file", slog.String("id", id), slog.Any("error", err))
			return
		}
	default:
		h.log.Error("file has no readable storage reference", slog.String("id", id))
		w.WriteHeader(http.StatusOK)
		return
	}

	h.recorder.Read(f.TenantID, f.ID)
	h.metrics.IncrementDownloadMetrics(r.Context(), string(f.Ref.Backend()), f.Size)
}

// Delete removes a file's content and its metadata record.
func (h Handler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, err := Tenant(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("name")

	f, ok, err := h.db.Get(r.Context(), tenantID, id)
	if err != nil {
		h.log.Error("failed to load file record", slog.String("id", id), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	switch ref := f.Ref.(type) {
	case files.FilesystemRef:
		if ok, err := h.fs.Remove(r.Context(), ref.Path); err != nil || !ok {
			// Metadata removal proceeds; the orphaned content is logged.
			h.log.Warn("failed to remove file content", slog.String("id", id), slog.String("path", ref.Path), slog.Any("error", err))
		}
	case files.DatabaseRef:
		if err := ref.Handle.Remove(r.Context()); err != nil {
			h.log.Warn("failed to remove large object", slog.String("id", id), slog.Any("error", err))
		}
	}

	if err := h.db.Delete(r.Context(), tenantID, id); err != nil {
		h.log.Error("failed to delete file record", slog.String("id", id), slog.Int64("tenant", tenantID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.recorder.Delete(f.TenantID, f.ID)
	h.log.Info("file deleted", slog.String("id", id), slog.Int64("tenant", tenantID))
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"log/slog"
	"net/http"

	"filedepot/audit"
	"filedepot/auth"
	"filedepot/files"
	authmiddleware "filedepot/handlers/auth"
	contenthandler "filedepot/handlers/content"
	scalehandler "filedepot/handlers/scale"
	statshandler "filedepot/handlers/stats"
	"filedepot/metrics"
	"filedepot/scale"
	"filedepot/storage"
)

func New(log *slog.Logger, db *files.DB, router *storage.Router, fs *storage.Filesystem, scaler *scale.Scaler, auditLog *audit.Log, recorder *audit.Recorder, m metrics.Metrics, authConfig *auth.AuthConfig, maxUploadBytes int64) http.Handler {
	ch := contenthandler.New(log, db, router, fs, recorder, m, maxUploadBytes)
	sch := scalehandler.New(log, db, scaler, recorder, m)
	sth := statshandler.New(log, auditLog)

	mux := http.NewServeMux()
	mux.Handle("/files/{tenant}/{name}", ch)
	mux.Handle("/files/{tenant}/{name}/scale", sch)
	mux.Handle("/files/{tenant}/{name}/audit", sth)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	authHandler := authmiddleware.NewMiddleware(log, authConfig, mux)
	return NewLogger(log, authHandler)
}

package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"filedepot/auth"
)

type Middleware struct {
	log        *slog.Logger
	authConfig *auth.AuthConfig
	next       http.Handler
}

func NewMiddleware(log *slog.Logger, authConfig *auth.AuthConfig, next http.Handler) *Middleware {
	if authConfig == nil || len(authConfig.Keys) == 0 {
		log.Warn("no authentication configured - all access is permitted")
	}
	return &Middleware{
		log:        log,
		authConfig: authConfig,
		next:       next,
	}
}

// tenantFromPath extracts the tenant segment from /files/<tenant>/... paths.
// Requests outside the files tree fall back to the default tenant.
func tenantFromPath(path string) int64 {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "files" {
		return 0
	}
	tenantID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || tenantID < 0 {
		return 0
	}
	return tenantID
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// If no auth config, allow all access.
	if m.authConfig == nil || len(m.authConfig.Keys) == 0 {
		m.next.ServeHTTP(w, r)
		return
	}

	// Liveness checks are never authenticated.
	if r.URL.Path == "/healthz" {
		m.next.ServeHTTP(w, r)
		return
	}

	isWriteOperation := r.Method == http.MethodPut || r.Method == http.MethodPost || r.Method == http.MethodDelete

	// Check if authentication is required for read operations.
	if !isWriteOperation && !m.authConfig.RequireAuthForRead {
		m.next.ServeHTTP(w, r)
		return
	}

	// Check for Authorization header.
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		operation := "read"
		if isWriteOperation {
			operation = "write"
		}
		m.log.Warn("request without authorization header", slog.String("operation", operation), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	// Extract JWT token from Bearer header.
	token := strings.TrimPrefix(authHeader, "Bearer ")

	// Verify JWT token.
	keyFingerprint, err := auth.VerifyJWT(token, m.authConfig)
	if err != nil {
		m.log.Warn("invalid JWT token", slog.String("error", err.Error()), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
		return
	}

	keys := m.authConfig.KeysByFingerprint(keyFingerprint)
	if len(keys) == 0 {
		m.log.Warn("key not found in auth config", slog.String("fingerprint", keyFingerprint))
		http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
		return
	}

	// Check permissions against the tenant being accessed.
	tenantID := tenantFromPath(r.URL.Path)
	allowed := false
	for _, key := range keys {
		if !key.CoversTenant(tenantID) {
			continue
		}
		if !isWriteOperation || key.Permission == auth.PermissionReadWrite {
			allowed = true
			break
		}
	}
	if !allowed {
		m.log.Warn("insufficient permissions", slog.String("fingerprint", keyFingerprint), slog.Int64("tenant", tenantID), slog.String("method", r.Method))
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	m.log.Debug("authorized request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("fingerprint", keyFingerprint), slog.Int64("tenant", tenantID))
	m.next.ServeHTTP(w, r)
}

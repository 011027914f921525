package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"

	"filedepot/blob"
	"filedepot/files"
)

// Router binds uploaded content to the configured backend and builds the
// file record for it. The router never persists metadata; the returned file
// is in memory only until the caller puts it in the files DB.
type Router struct {
	log     *slog.Logger
	backend files.Backend
	fs      *Filesystem
	blobs   *blob.Store
}

func NewRouter(log *slog.Logger, backend files.Backend, fs *Filesystem, blobs *blob.Store) *Router {
	return &Router{
		log:     log,
		backend: backend,
		fs:      fs,
		blobs:   blobs,
	}
}

func (r *Router) Backend() files.Backend {
	return r.backend
}

// ContentType resolves the MIME type from the filename extension.
func ContentType(filename string) string {
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Save stores content in the configured backend and returns the file record
// to persist. A nil file with a nil error is a soft failure: nothing was
// stored and there is nothing to persist. Filesystem saves read the content
// up front (an error there is the caller's, not the backend's) and write it
// through the failover path; database saves wrap the content in a pending
// large-object handle without any I/O and cannot fail here; amazon is a
// placeholder that stores nothing.
func (r *Router) Save(ctx context.Context, tenantID int64, token, filename string, size int64, content io.Reader) (*files.File, error) {
	f := &files.File{
		TenantID:    tenantID,
		Filename:    filename,
		ContentType: ContentType(filename),
		Size:        size,
	}

	switch r.backend {
	case files.BackendFilesystem:
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("failed to read content for %s: %w", filename, err)
		}
		primaryPath := r.fs.PrimaryPath(files.StoredName(tenantID, token, filename))
		finalPath, ok, err := r.fs.Write(ctx, primaryPath, data)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		f.Ref = files.FilesystemRef{Path: finalPath}
		return f, nil
	case files.BackendDatabase:
		f.Ref = files.DatabaseRef{Handle: r.blobs.NewHandle(content, size)}
		return f, nil
	case files.BackendAmazon:
		// Placeholder backend: accepted in configuration, stores nothing.
		r.log.Debug("amazon backend is not implemented, discarding content", slog.String("filename", filename))
		discard(content)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown storage backend: %q", r.backend)
}

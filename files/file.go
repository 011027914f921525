package files

import (
	"fmt"
	"path"
	"strings"
	"time"

	"filedepot/blob"

	"github.com/google/uuid"
)

// Backend identifies the storage mechanism holding a file's content.
type Backend string

const (
	BackendDatabase   Backend = "database"
	BackendFilesystem Backend = "filesystem"
	// BackendAmazon is accepted in configuration but is a placeholder:
	// saves against it store nothing and return no file.
	BackendAmazon Backend = "amazon"
)

func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendDatabase, BackendFilesystem, BackendAmazon:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown storage backend: %q", s)
}

// Ref is the backend-specific location of a file's content. Exactly one
// concrete type exists per functional backend, so a file can never carry
// both a filesystem path and a large-object handle.
type Ref interface {
	Backend() Backend
}

// FilesystemRef locates content at an absolute path under one of the
// configured filesystem roots.
type FilesystemRef struct {
	Path string
}

func (FilesystemRef) Backend() Backend { return BackendFilesystem }

// DatabaseRef locates content in a large object.
type DatabaseRef struct {
	Handle *blob.Handle
}

func (DatabaseRef) Backend() Backend { return BackendDatabase }

// File is the metadata record for one stored file. The router constructs it
// in memory; DB.Put makes it durable.
type File struct {
	ID          string
	TenantID    int64
	Filename    string
	ContentType string
	Size        int64
	UploadedAt  time.Time
	Ref         Ref
}

// DefaultTenant is the sentinel owner for files stored without a tenant.
const DefaultTenant int64 = 0

func tenant(id int64) int64 {
	if id <= 0 {
		return DefaultTenant
	}
	return id
}

// NewToken returns a unique token for namespacing one stored file. Callers
// that reuse a token against the same tenant and filename race on the same
// stored path, last writer wins.
func NewToken() string {
	return uuid.NewString()
}

// StoredName builds the flat filesystem name for a file:
// "<tenant>-<token>-<filename>". It is pure, so identical inputs always
// produce identical names.
func StoredName(tenantID int64, token, filename string) string {
	return fmt.Sprintf("%d-%s-%s", tenant(tenantID), token, filename)
}

// ObjectKey builds the object-store form of the stored name:
// "<tenant>/<token>-<filename>".
func ObjectKey(tenantID int64, token, filename string) string {
	return path.Join(fmt.Sprintf("%d", tenant(tenantID)), token+"-"+filename)
}

// ScaledFilename inserts "-<width>" before the extension, so
// "photo.jpg" scaled to 640 becomes "photo-640.jpg".
func ScaledFilename(filename string, width int) string {
	ext := path.Ext(filename)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(filename, ext), width, ext)
}

// IsImage reports whether the file's recorded content type is an image type.
func (f *File) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

// View is the JSON shape of a file returned by the HTTP API.
type View struct {
	ID          string    `json:"id"`
	TenantID    int64     `json:"tenantId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Backend     Backend   `json:"backend"`
}

func (f *File) View() View {
	v := View{
		ID:          f.ID,
		TenantID:    tenant(f.TenantID),
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		UploadedAt:  f.UploadedAt,
	}
	if f.Ref != nil {
		v.Backend = f.Ref.Backend()
	}
	return v
}

package files

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"filedepot/blob"

	"github.com/a-h/kv"
)

func NewDB(store kv.Store, blobs *blob.Store) *DB {
	return &DB{store: store, blobs: blobs}
}

// DB persists file records in the key/value store under
// /files/<tenant>/<id> keys. Content itself lives in the backend named by
// the record; the database backend's content is materialized on Put.
type DB struct {
	store kv.Store
	blobs *blob.Store
}

// record is the stored form of a File. The backend tag determines which of
// the location fields is set; toRecord and fromRecord reject records that
// break that invariant.
type record struct {
	TenantID    int64     `json:"tenantId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Backend     Backend   `json:"backend"`
	Path        string    `json:"path,omitempty"`
	OID         uint32    `json:"oid,omitempty"`
}

func buildKey(tenantID int64, id string) string {
	return path.Join("/files", fmt.Sprintf("%d", tenant(tenantID)), url.PathEscape(id))
}

func toRecord(f *File) (record, error) {
	r := record{
		TenantID:    tenant(f.TenantID),
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size,
		UploadedAt:  f.UploadedAt,
	}
	switch ref := f.Ref.(type) {
	case FilesystemRef:
		if ref.Path == "" {
			return record{}, fmt.Errorf("filesystem file %s has no path", f.ID)
		}
		r.Backend = BackendFilesystem
		r.Path = ref.Path
	case DatabaseRef:
		if ref.Handle == nil || !ref.Handle.Materialized() {
			return record{}, fmt.Errorf("database file %s has no materialized content", f.ID)
		}
		r.Backend = BackendDatabase
		r.OID = ref.Handle.OID()
	default:
		return record{}, fmt.Errorf("file %s has no storage reference", f.ID)
	}
	return r, nil
}

func (db *DB) fromRecord(id string, r record) (*File, error) {
	f := &File{
		ID:          id,
		TenantID:    r.TenantID,
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Size:        r.Size,
		UploadedAt:  r.UploadedAt,
	}
	switch r.Backend {
	case BackendFilesystem:
		if r.Path == "" || r.OID != 0 {
			return nil, fmt.Errorf("corrupt record for file %s: filesystem backend with path=%q oid=%d", id, r.Path, r.OID)
		}
		f.Ref = FilesystemRef{Path: r.Path}
	case BackendDatabase:
		if r.OID == 0 || r.Path != "" {
			return nil, fmt.Errorf("corrupt record for file %s: database backend with path=%q oid=%d", id, r.Path, r.OID)
		}
		if db.blobs == nil {
			return nil, fmt.Errorf("file %s is database backed but no blob store is configured", id)
		}
		f.Ref = DatabaseRef{Handle: db.blobs.HandleFor(r.OID, r.Size)}
	default:
		return nil, fmt.Errorf("corrupt record for file %s: unknown backend %q", id, r.Backend)
	}
	return f, nil
}

// Put makes the file durable. A database-backed file whose content is still
// pending is materialized first, so a record never references content that
// was not written.
func (db *DB) Put(ctx context.Context, f *File) error {
	if f.ID == "" {
		f.ID = NewToken()
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	if ref, ok := f.Ref.(DatabaseRef); ok && ref.Handle != nil {
		if err := ref.Handle.Materialize(ctx); err != nil {
			return fmt.Errorf("failed to store content for file %s: %w", f.ID, err)
		}
	}
	r, err := toRecord(f)
	if err != nil {
		return err
	}
	return db.store.Put(ctx, buildKey(f.TenantID, f.ID), -1, r)
}

// Get retrieves a file record by tenant and id.
func (db *DB) Get(ctx context.Context, tenantID int64, id string) (f *File, ok bool, err error) {
	var r record
	_, ok, err = db.store.Get(ctx, buildKey(tenantID, id), &r)
	if err != nil || !ok {
		return nil, ok, err
	}
	f, err = db.fromRecord(id, r)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// Delete removes the metadata record. Backend content is the caller's
// responsibility, since removal differs per backend.
func (db *DB) Delete(ctx context.Context, tenantID int64, id string) error {
	_, err := db.store.Delete(ctx, buildKey(tenantID, id))
	return err
}

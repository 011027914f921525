package blob

import (
	"context"
	"fmt"
	"io"
)

// Handle is a reference to large-object content. A pending handle wraps an
// unread content stream and a declared length without performing any I/O;
// the content is only written to the database when Materialize is called,
// which happens when the owning file record is persisted.
type Handle struct {
	store   *Store
	oid     uint32
	size    int64
	pending io.Reader
}

// NewHandle wraps content in a pending handle. No I/O is performed.
func (s *Store) NewHandle(content io.Reader, size int64) *Handle {
	return &Handle{store: s, size: size, pending: content}
}

// HandleFor rebuilds a handle for an already-stored large object.
func (s *Store) HandleFor(oid uint32, size int64) *Handle {
	return &Handle{store: s, oid: oid, size: size}
}

func (h *Handle) OID() uint32 {
	return h.oid
}

func (h *Handle) Size() int64 {
	return h.size
}

// Materialized reports whether the content has been written to the database.
func (h *Handle) Materialized() bool {
	return h.pending == nil
}

// Materialize writes the pending content to a new large object. It is an
// error if the content length does not match the declared size.
func (h *Handle) Materialize(ctx context.Context) error {
	if h.pending == nil {
		return nil
	}
	oid, written, err := h.store.Create(ctx, h.pending)
	if err != nil {
		return err
	}
	if written != h.size {
		// Best effort cleanup of the mis-sized object.
		_ = h.store.Remove(ctx, oid)
		return fmt.Errorf("large object size mismatch: declared %d bytes, wrote %d", h.size, written)
	}
	h.oid = oid
	h.pending = nil
	return nil
}

// Open returns a reader over the materialized content.
func (h *Handle) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if !h.Materialized() {
		return nil, 0, fmt.Errorf("large object handle has not been materialized")
	}
	return h.store.Open(ctx, h.oid)
}

// Remove unlinks the materialized content.
func (h *Handle) Remove(ctx context.Context) error {
	if !h.Materialized() {
		return nil
	}
	return h.store.Remove(ctx, h.oid)
}

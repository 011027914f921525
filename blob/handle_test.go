package blob

import (
	"strings"
	"testing"
)

func TestHandle(t *testing.T) {
	s := &Store{}

	t.Run("a new handle is pending and performs no I/O", func(t *testing.T) {
		h := s.NewHandle(strings.NewReader("content"), 7)
		if h.Materialized() {
			t.Error("expected a pending handle")
		}
		if h.Size() != 7 {
			t.Errorf("expected size 7, got %d", h.Size())
		}
		if h.OID() != 0 {
			t.Errorf("expected no oid before materialization, got %d", h.OID())
		}
	})
	t.Run("a rebuilt handle is already materialized", func(t *testing.T) {
		h := s.HandleFor(42, 1024)
		if !h.Materialized() {
			t.Error("expected a materialized handle")
		}
		if h.OID() != 42 {
			t.Errorf("expected oid 42, got %d", h.OID())
		}
	})
	t.Run("a pending handle cannot be opened", func(t *testing.T) {
		h := s.NewHandle(strings.NewReader("content"), 7)
		if _, _, err := h.Open(t.Context()); err == nil {
			t.Error("expected an error opening a pending handle")
		}
	})
	t.Run("removing a pending handle is a no-op", func(t *testing.T) {
		h := s.NewHandle(strings.NewReader("content"), 7)
		if err := h.Remove(t.Context()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

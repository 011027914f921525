package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filedepot/files"
	"filedepot/fsio"
	"filedepot/metrics"
)

func newTestRouter(t *testing.T, backend files.Backend) (*Router, *Filesystem) {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	exec := fsio.New(log, 4, time.Second)
	t.Cleanup(exec.Close)
	fs := NewFilesystem(log, exec, metrics.Metrics{}, t.TempDir(), t.TempDir(), false)
	return NewRouter(log, backend, fs, nil), fs
}

func TestContentType(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{filename: "photo.png", expected: "image/png"},
		{filename: "photo.jpg", expected: "image/jpeg"},
		{filename: "data.bin", expected: "application/octet-stream"},
		{filename: "noextension", expected: "application/octet-stream"},
	}
	for _, test := range tests {
		t.Run(test.filename, func(t *testing.T) {
			actual := ContentType(test.filename)
			if !strings.HasPrefix(actual, test.expected) {
				t.Errorf("expected content type %q, got %q", test.expected, actual)
			}
		})
	}
}

func TestSave(t *testing.T) {
	t.Run("filesystem saves write the content and return a filesystem reference", func(t *testing.T) {
		router, _ := newTestRouter(t, files.BackendFilesystem)
		f, err := router.Save(t.Context(), 1, "token-1", "hello.txt", 5, strings.NewReader("hello"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f == nil {
			t.Fatal("expected a file record")
		}
		ref, isFilesystem := f.Ref.(files.FilesystemRef)
		if !isFilesystem {
			t.Fatalf("expected a filesystem reference, got %T", f.Ref)
		}
		content, err := os.ReadFile(ref.Path)
		if err != nil {
			t.Fatalf("failed to read stored content: %v", err)
		}
		if string(content) != "hello" {
			t.Errorf("expected %q, got %q", "hello", string(content))
		}
		if f.ContentType != "text/plain; charset=utf-8" {
			t.Errorf("unexpected content type %q", f.ContentType)
		}
		if f.Size != 5 {
			t.Errorf("expected size 5, got %d", f.Size)
		}
	})
	t.Run("the same tenant, token and filename always store to the same path", func(t *testing.T) {
		router, fs := newTestRouter(t, files.BackendFilesystem)
		a, err := router.Save(t.Context(), 1, "token-1", "hello.txt", 1, strings.NewReader("a"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := router.Save(t.Context(), 1, "token-1", "hello.txt", 1, strings.NewReader("b"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		aPath := a.Ref.(files.FilesystemRef).Path
		bPath := b.Ref.(files.FilesystemRef).Path
		if aPath != bPath {
			t.Errorf("expected identical paths, got %q and %q", aPath, bPath)
		}
		if aPath != fs.PrimaryPath(files.StoredName(1, "token-1", "hello.txt")) {
			t.Errorf("unexpected stored path %q", aPath)
		}
	})
	t.Run("a save against an unwritable primary lands on the failover root", func(t *testing.T) {
		log := slog.New(slog.NewJSONHandler(io.Discard, nil))
		exec := fsio.New(log, 4, time.Second)
		t.Cleanup(exec.Close)
		base := t.TempDir()
		primary := filepath.Join(base, "primary")
		if err := os.WriteFile(primary, []byte("not a directory"), 0644); err != nil {
			t.Fatalf("failed to block primary root: %v", err)
		}
		failover := filepath.Join(base, "failover")
		fs := NewFilesystem(log, exec, metrics.Metrics{}, primary, failover, true)
		router := NewRouter(log, files.BackendFilesystem, fs, nil)

		f, err := router.Save(t.Context(), 1, "token-1", "hello.txt", 5, strings.NewReader("hello"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f == nil {
			t.Fatal("expected a file record")
		}
		ref := f.Ref.(files.FilesystemRef)
		if !strings.HasPrefix(ref.Path, failover) {
			t.Errorf("expected the stored path to be under the failover root %q, got %q", failover, ref.Path)
		}
		content, err := os.ReadFile(ref.Path)
		if err != nil {
			t.Fatalf("failed to read stored content: %v", err)
		}
		if string(content) != "hello" {
			t.Errorf("expected %q, got %q", "hello", string(content))
		}
	})
	t.Run("amazon saves store nothing and return no file", func(t *testing.T) {
		router, _ := newTestRouter(t, files.BackendAmazon)
		content := strings.NewReader("discarded")
		f, err := router.Save(t.Context(), 1, "token-1", "hello.txt", 9, content)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if f != nil {
			t.Errorf("expected no file for the amazon placeholder, got %+v", f)
		}
		if content.Len() != 0 {
			t.Error("expected the content to be drained")
		}
	})
	t.Run("an unknown backend is an error", func(t *testing.T) {
		router, _ := newTestRouter(t, files.Backend("ftp"))
		_, err := router.Save(t.Context(), 1, "token-1", "hello.txt", 0, strings.NewReader(""))
		if err == nil {
			t.Error("expected an error for an unknown backend")
		}
	})
}

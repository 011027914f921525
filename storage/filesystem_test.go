package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filedepot/fsio"
	"filedepot/metrics"
)

func newTestFilesystem(t *testing.T, primaryRoot, failoverRoot string, failoverWritable bool) *Filesystem {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	exec := fsio.New(log, 4, time.Second)
	t.Cleanup(exec.Close)
	return NewFilesystem(log, exec, metrics.Metrics{}, primaryRoot, failoverRoot, failoverWritable)
}

func TestFailoverPath(t *testing.T) {
	fs := newTestFilesystem(t, "/data/primary", "/data/failover", false)

	tests := []struct {
		name     string
		primary  string
		expected string
	}{
		{
			name:     "the primary root is replaced with the failover root",
			primary:  "/data/primary/1-abc-report.pdf",
			expected: "/data/failover/1-abc-report.pdf",
		},
		{
			name:     "nested paths keep their suffix",
			primary:  "/data/primary/sub/dir/file.txt",
			expected: "/data/failover/sub/dir/file.txt",
		},
		{
			name:     "only the first occurrence is replaced",
			primary:  "/data/primary/data/primary/file.txt",
			expected: "/data/failover/data/primary/file.txt",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual := fs.FailoverPath(test.primary)
			if actual != test.expected {
				t.Errorf("expected %q, got %q", test.expected, actual)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	t.Run("content is written to the primary path when it is healthy", func(t *testing.T) {
		primary := t.TempDir()
		failover := t.TempDir()
		fs := newTestFilesystem(t, primary, failover, true)

		path := fs.PrimaryPath("1-abc-hello.txt")
		finalPath, ok, err := fs.Write(t.Context(), path, []byte("hello"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected the write to succeed")
		}
		if finalPath != path {
			t.Errorf("expected content at the primary path %q, got %q", path, finalPath)
		}
		content, err := os.ReadFile(finalPath)
		if err != nil {
			t.Fatalf("failed to read written file: %v", err)
		}
		if string(content) != "hello" {
			t.Errorf("expected %q, got %q", "hello", string(content))
		}
	})
	t.Run("a failed primary write lands on the failover path when failover is writable", func(t *testing.T) {
		// A regular file in place of the primary root makes every write
		// under it fail.
		base := t.TempDir()
		primary := filepath.Join(base, "primary")
		if err := os.WriteFile(primary, []byte("not a directory"), 0644); err != nil {
			t.Fatalf("failed to block primary root: %v", err)
		}
		failover := filepath.Join(base, "failover")
		fs := newTestFilesystem(t, primary, failover, true)

		path := fs.PrimaryPath("1-abc-hello.txt")
		finalPath, ok, err := fs.Write(t.Context(), path, []byte("hello"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected the failover write to succeed")
		}
		expected := fs.FailoverPath(path)
		if finalPath != expected {
			t.Errorf("expected content at the failover path %q, got %q", expected, finalPath)
		}
		content, err := os.ReadFile(finalPath)
		if err != nil {
			t.Fatalf("failed to read failover file: %v", err)
		}
		if string(content) != "hello" {
			t.Errorf("expected %q, got %q", "hello", string(content))
		}
	})
	t.Run("a failed primary write is not retried when failover is not writable", func(t *testing.T) {
		base := t.TempDir()
		primary := filepath.Join(base, "primary")
		if err := os.WriteFile(primary, []byte("not a directory"), 0644); err != nil {
			t.Fatalf("failed to block primary root: %v", err)
		}
		failover := filepath.Join(base, "failover")
		fs := newTestFilesystem(t, primary, failover, false)

		path := fs.PrimaryPath("1-abc-hello.txt")
		finalPath, ok, err := fs.Write(t.Context(), path, []byte("hello"))
		if err != nil {
			t.Errorf("expected a soft failure, got error: %v", err)
		}
		if ok {
			t.Error("expected the write to fail")
		}
		if finalPath != "" {
			t.Errorf("expected no final path, got %q", finalPath)
		}
		if _, err := os.Stat(fs.FailoverPath(path)); !os.IsNotExist(err) {
			t.Error("expected nothing to be written to the failover path")
		}
	})
}

func TestRead(t *testing.T) {
	t.Run("content is read from the primary path", func(t *testing.T) {
		primary := t.TempDir()
		failover := t.TempDir()
		fs := newTestFilesystem(t, primary, failover, false)

		path := fs.PrimaryPath("1-abc-hello.txt")
		if err := os.WriteFile(path, []byte("primary content"), 0644); err != nil {
			t.Fatalf("failed to seed primary file: %v", err)
		}
		content, ok, err := fs.Read(t.Context(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected the read to succeed")
		}
		if string(content) != "primary content" {
			t.Errorf("expected %q, got %q", "primary content", string(content))
		}
	})
	t.Run("a missing primary file falls over to the failover path", func(t *testing.T) {
		primary := t.TempDir()
		failover := t.TempDir()
		fs := newTestFilesystem(t, primary, failover, false)

		path := fs.PrimaryPath("1-abc-hello.txt")
		if err := os.WriteFile(fs.FailoverPath(path), []byte("failover content"), 0644); err != nil {
			t.Fatalf("failed to seed failover file: %v", err)
		}
		content, ok, err := fs.Read(t.Context(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected the failover read to succeed")
		}
		if string(content) != "failover content" {
			t.Errorf("expected %q, got %q", "failover content", string(content))
		}
	})
	t.Run("read failover happens even when failover is not writable", func(t *testing.T) {
		primary := t.TempDir()
		failover := t.TempDir()
		fs := newTestFilesystem(t, primary, failover, false)

		path := fs.PrimaryPath("readonly.txt")
		if err := os.WriteFile(fs.FailoverPath(path), []byte("still readable"), 0644); err != nil {
			t.Fatalf("failed to seed failover file: %v", err)
		}
		_, ok, err := fs.Read(t.Context(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected the read to succeed from the failover path")
		}
	})
	t.Run("a file missing from both locations is a soft failure", func(t *testing.T) {
		fs := newTestFilesystem(t, t.TempDir(), t.TempDir(), false)
		_, ok, err := fs.Read(t.Context(), fs.PrimaryPath("missing.txt"))
		if err != nil {
			t.Errorf("expected a soft failure, got error: %v", err)
		}
		if ok {
			t.Error("expected ok=false")
		}
	})
}

func TestRemove(t *testing.T) {
	t.Run("content is removed from the primary path", func(t *testing.T) {
		fs := newTestFilesystem(t, t.TempDir(), t.TempDir(), false)
		path := fs.PrimaryPath("gone.txt")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}
		ok, err := fs.Remove(t.Context(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected the remove to succeed")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected the file to be gone")
		}
	})
	t.Run("removing a missing file is a success", func(t *testing.T) {
		fs := newTestFilesystem(t, t.TempDir(), t.TempDir(), false)
		ok, err := fs.Remove(t.Context(), fs.PrimaryPath("never-existed.txt"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected ok=true for a missing file")
		}
	})
}

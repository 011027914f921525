package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"filedepot/fsio"
	"filedepot/metrics"
)

// Filesystem stores file content under a primary root directory, with a
// failover root substituted when the primary is unreachable. Every
// filesystem operation runs through the bounded executor, so an unresponsive
// disk surfaces as a failed operation instead of a hung request thread.
//
// Read failover is unconditional: any primary read failure retries the
// failover path once. Write failover only happens when the failover root is
// configured as writable.
type Filesystem struct {
	log              *slog.Logger
	exec             *fsio.Executor
	metrics          metrics.Metrics
	primaryRoot      string
	failoverRoot     string
	failoverWritable bool
}

func NewFilesystem(log *slog.Logger, exec *fsio.Executor, m metrics.Metrics, primaryRoot, failoverRoot string, failoverWritable bool) *Filesystem {
	return &Filesystem{
		log:              log,
		exec:             exec,
		metrics:          m,
		primaryRoot:      primaryRoot,
		failoverRoot:     failoverRoot,
		failoverWritable: failoverWritable,
	}
}

// PrimaryPath returns the full primary location for a stored name.
func (f *Filesystem) PrimaryPath(storedName string) string {
	return filepath.Join(f.primaryRoot, storedName)
}

// FailoverPath derives the failover location for a primary path by replacing
// the first occurrence of the primary root with the failover root. Pure
// string substitution, no I/O.
func (f *Filesystem) FailoverPath(primaryPath string) string {
	return strings.Replace(primaryPath, f.primaryRoot, f.failoverRoot, 1)
}

// Write copies content to path, retrying once on the failover path when the
// primary write fails and failover writes are enabled. finalPath is the
// location that accepted the content. ok=false with a nil error means both
// attempts failed softly and nothing usable was written.
func (f *Filesystem) Write(ctx context.Context, path string, content []byte) (finalPath string, ok bool, err error) {
	ok, err = f.exec.Do(ctx, writeOp(path, content))
	if err != nil {
		return "", false, err
	}
	if ok {
		return path, true, nil
	}
	if !f.failoverWritable {
		f.log.Warn("primary write failed and failover writes are disabled", slog.String("path", path))
		return "", false, nil
	}
	failoverPath := f.FailoverPath(path)
	f.log.Warn("primary write failed, retrying on failover path", slog.String("path", path), slog.String("failoverPath", failoverPath))
	f.metrics.IncrementFailovers(ctx, "write")
	ok, err = f.exec.Do(ctx, writeOp(failoverPath, content))
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return failoverPath, true, nil
}

func writeOp(path string, content []byte) func() error {
	return func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		defer file.Close()
		if _, err := file.Write(content); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		return nil
	}
}

// Read returns the content at path, retrying once on the failover path when
// the primary read fails. ok=false with a nil error means both locations
// failed softly.
func (f *Filesystem) Read(ctx context.Context, path string) (content []byte, ok bool, err error) {
	content, ok, err = fsio.Value(f.exec, ctx, func() ([]byte, error) {
		return os.ReadFile(path)
	})
	if err != nil || ok {
		return content, ok, err
	}
	failoverPath := f.FailoverPath(path)
	f.log.Warn("primary read failed, retrying on failover path", slog.String("path", path), slog.String("failoverPath", failoverPath))
	f.metrics.IncrementFailovers(ctx, "read")
	return fsio.Value(f.exec, ctx, func() ([]byte, error) {
		return os.ReadFile(failoverPath)
	})
}

// Remove deletes the content at path, falling back to the failover path.
// A missing file counts as success on either location.
func (f *Filesystem) Remove(ctx context.Context, path string) (ok bool, err error) {
	ok, err = f.exec.Do(ctx, removeOp(path))
	if err != nil || ok {
		return ok, err
	}
	return f.exec.Do(ctx, removeOp(f.FailoverPath(path)))
}

func removeOp(path string) func() error {
	return func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
}

// discard drains and closes a reader, used when a backend cannot accept the
// content but the request body must still be consumed.
func discard(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}

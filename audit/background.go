package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"filedepot/metrics"
)

type operation string

const (
	operationRead   operation = "read"
	operationWrite  operation = "write"
	operationDelete operation = "delete"
)

type event struct {
	TenantID int64
	FileID   string
	Op       operation
}

// Recorder buffers audit events and writes them to the log from a background
// goroutine, keeping the kv write off the request path. Delivery is fire and
// forget: failures are logged and counted, never surfaced to the caller.
type Recorder struct {
	c chan event
}

func NewRecorder(ctx context.Context, log *slog.Logger, auditLog *Log, m metrics.Metrics, bufferSize int) (r *Recorder, shutdown func(timeout time.Duration) error) {
	r = &Recorder{
		c: make(chan event, bufferSize),
	}
	shutdownComplete := make(chan struct{}, 1)

	go func() {
		defer func() {
			shutdownComplete <- struct{}{}
		}()
		for e := range r.c {
			log.Debug("recording audit event", slog.Int64("tenant", e.TenantID), slog.String("file", e.FileID), slog.String("op", string(e.Op)))
			var err error
			switch e.Op {
			case operationRead:
				err = auditLog.Read(ctx, e.TenantID, e.FileID)
			case operationWrite:
				err = auditLog.Write(ctx, e.TenantID, e.FileID)
			case operationDelete:
				err = auditLog.Delete(ctx, e.TenantID, e.FileID)
			default:
				err = fmt.Errorf("unknown audit operation: %v", e.Op)
			}
			if err != nil {
				log.Error("failed to record audit event", slog.Int64("tenant", e.TenantID), slog.String("file", e.FileID), slog.Any("error", err))
				m.IncrementAuditErrors(ctx)
			}
		}
	}()

	shutdown = func(timeout time.Duration) error {
		close(r.c)
		select {
		case <-time.After(timeout):
			return fmt.Errorf("timed out waiting for audit events to complete")
		case <-shutdownComplete:
			return nil
		}
	}

	return r, shutdown
}

func (r *Recorder) Read(tenantID int64, fileID string) {
	r.c <- event{TenantID: tenantID, FileID: fileID, Op: operationRead}
}

func (r *Recorder) Write(tenantID int64, fileID string) {
	r.c <- event{TenantID: tenantID, FileID: fileID, Op: operationWrite}
}

func (r *Recorder) Delete(tenantID int64, fileID string) {
	r.c <- event{TenantID: tenantID, FileID: fileID, Op: operationDelete}
}

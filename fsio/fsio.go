package fsio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrTimeout is returned when an operation does not complete within the
// executor's ceiling. The caller cannot tell a slow operation from a hung
// one, so the operation is abandoned rather than retried.
var ErrTimeout = errors.New("filesystem operation exceeded time ceiling")

// ErrRejected is returned when the worker pool could not accept the
// operation before the ceiling expired.
var ErrRejected = errors.New("filesystem executor at capacity")

const (
	DefaultWorkers = 32
	DefaultTimeout = 10 * time.Second
)

// Executor runs blocking filesystem operations on a fixed-size worker pool
// with a single hard wall-clock ceiling per operation. An error returned by
// the operation itself is a soft failure (ok=false, nil error), which is
// what triggers failover retries; exceeding the ceiling, pool saturation and
// panics are fatal and surface as errors.
type Executor struct {
	log     *slog.Logger
	tasks   chan task
	timeout time.Duration
	wg      sync.WaitGroup
}

type task struct {
	op     func() error
	result chan outcome
}

type outcome struct {
	err      error
	panicked any
}

func New(log *slog.Logger, workers int, timeout time.Duration) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Executor{
		log:     log,
		tasks:   make(chan task, workers),
		timeout: timeout,
	}
	for range workers {
		e.wg.Go(e.work)
	}
	return e
}

func (e *Executor) work() {
	for t := range e.tasks {
		// The result channel is buffered, so an abandoned waiter never
		// blocks the worker: the slot frees as soon as the op returns.
		t.result <- run(t.op)
	}
}

func run(op func() error) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out.panicked = r
		}
	}()
	out.err = op()
	return out
}

// Close stops accepting work and waits for in-flight operations.
func (e *Executor) Close() {
	close(e.tasks)
	e.wg.Wait()
}

// Do runs op under the ceiling. ok reports whether op completed without
// error; a non-nil error means the operation failed fatally and must not be
// retried on a failover path.
func (e *Executor) Do(ctx context.Context, op func() error) (ok bool, err error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	t := task{op: op, result: make(chan outcome, 1)}
	select {
	case e.tasks <- t:
	case <-timer.C:
		return false, ErrRejected
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case out := <-t.result:
		if out.panicked != nil {
			return false, fmt.Errorf("filesystem operation panicked: %v", out.panicked)
		}
		if out.err != nil {
			e.log.Debug("filesystem operation failed", slog.Any("error", out.err))
			return false, nil
		}
		return true, nil
	case <-timer.C:
		return false, ErrTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Value runs op under the ceiling and returns its result. A timed-out read
// returns ErrTimeout, never a partial value, so it is distinguishable from
// a successful empty read (ok=true).
func Value[T any](e *Executor, ctx context.Context, op func() (T, error)) (v T, ok bool, err error) {
	// res is only read after a successful result is received, so an
	// abandoned op writing to it later cannot race with the caller.
	res := new(T)
	ok, err = e.Do(ctx, func() error {
		val, opErr := op()
		if opErr != nil {
			return opErr
		}
		*res = val
		return nil
	})
	if err != nil || !ok {
		return v, ok, err
	}
	return *res, true, nil
}

package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads and writes file content as Postgres large objects. Large
// objects are only addressable inside a transaction, so every operation
// opens one, and streaming reads hold theirs until Close.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect creates a Store from a Postgres connection URL.
func Connect(ctx context.Context, url string) (store *Store, closer func() error, err error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to blob database: %w", err)
	}
	closer = func() error {
		pool.Close()
		return nil
	}
	return New(pool), closer, nil
}

// Create writes the contents of r to a new large object and returns its oid.
func (s *Store) Create(ctx context.Context, r io.Reader) (oid uint32, written int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	los := tx.LargeObjects()
	oid, err = los.Create(ctx, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create large object: %w", err)
	}
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeWrite)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open large object %d: %w", oid, err)
	}
	written, err = io.Copy(obj, r)
	if err != nil {
		obj.Close()
		return 0, 0, fmt.Errorf("failed to write large object %d: %w", oid, err)
	}
	if err := obj.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close large object %d: %w", oid, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit large object %d: %w", oid, err)
	}
	return oid, written, nil
}

// Open returns a reader over the large object's content and its size. The
// returned reader keeps a transaction open until Close is called.
func (s *Store) Open(ctx context.Context, oid uint32) (r io.ReadCloser, size int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	los := tx.LargeObjects()
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeRead)
	if err != nil {
		tx.Rollback(ctx)
		return nil, 0, fmt.Errorf("failed to open large object %d: %w", oid, err)
	}
	size, err = obj.Seek(0, io.SeekEnd)
	if err != nil {
		obj.Close()
		tx.Rollback(ctx)
		return nil, 0, fmt.Errorf("failed to size large object %d: %w", oid, err)
	}
	if _, err = obj.Seek(0, io.SeekStart); err != nil {
		obj.Close()
		tx.Rollback(ctx)
		return nil, 0, fmt.Errorf("failed to rewind large object %d: %w", oid, err)
	}
	return &object{ctx: ctx, obj: obj, tx: tx}, size, nil
}

// Remove unlinks the large object.
func (s *Store) Remove(ctx context.Context, oid uint32) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	los := tx.LargeObjects()
	if err := los.Unlink(ctx, oid); err != nil {
		return fmt.Errorf("failed to unlink large object %d: %w", oid, err)
	}
	return tx.Commit(ctx)
}

type object struct {
	ctx context.Context
	obj *pgx.LargeObject
	tx  pgx.Tx
}

func (o *object) Read(p []byte) (int, error) {
	return o.obj.Read(p)
}

func (o *object) Close() error {
	err := o.obj.Close()
	// The transaction is read-only, so rollback releases it cleanly.
	if rbErr := o.tx.Rollback(o.ctx); rbErr != nil && err == nil {
		err = rbErr
	}
	return err
}

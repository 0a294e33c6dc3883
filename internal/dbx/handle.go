package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrHandleClosed is returned by Handle.DB after Close has been called.
var ErrHandleClosed = errors.New("db handle closed")

// openTimeout bounds the first ping of the pool.
const openTimeout = 5 * time.Second

// PoolOptions bounds the shared connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Handle is the process-wide database pool.
//
// Lifecycle: the pool is opened on the first call to DB (init on first use),
// shared by every request and background job, and released once by Close at
// shutdown. The handle is created by the application root and passed to its
// users explicitly; there is no package-level instance.
type Handle struct {
	driver string
	dsn    string
	opts   PoolOptions

	opening singleflight.Group

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewHandle prepares a handle; no connection is made until DB is called.
func NewHandle(driver, dsn string, opts PoolOptions) *Handle {
	return &Handle{driver: driver, dsn: dsn, opts: opts}
}

// DB returns the shared pool, opening and pinging it on first use. A failed
// open is not cached, so a later call retries.
//
// Concurrent first callers share one open attempt. No lock is held while the
// pool is dialled, and every caller stops waiting when its own ctx is done.
func (h *Handle) DB(ctx context.Context) (*sql.DB, error) {
	if db, err := h.current(); db != nil || err != nil {
		return db, err
	}

	ch := h.opening.DoChan("open", func() (any, error) {
		return h.open(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("db open error: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sql.DB), nil
	}
}

func (h *Handle) current() (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHandleClosed
	}
	return h.db, nil
}

// open dials the pool. The ping outlives the caller that started it, since
// other callers may be waiting on the same attempt, but not openTimeout.
func (h *Handle) open(ctx context.Context) (*sql.DB, error) {
	if db, err := h.current(); db != nil || err != nil {
		return db, err
	}

	db, err := sql.Open(h.driver, h.dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if h.opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(h.opts.MaxOpenConns)
	}
	if h.opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(h.opts.MaxIdleConns)
	}
	if h.opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(h.opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		_ = db.Close()
		return nil, ErrHandleClosed
	}
	h.db = db
	return db, nil
}

// Close releases the pool. It is safe to call more than once and on a handle
// that was never opened.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

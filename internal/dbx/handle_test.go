package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestHandle_OpensOnFirstUseAndReuses(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "handle.db")
	h := NewHandle("sqlite", dsn, PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
	t.Cleanup(func() { _ = h.Close() })

	assert.Nil(t, h.db, "no pool before first use")

	db1, err := h.DB(context.Background())
	require.NoError(t, err)
	db2, err := h.DB(context.Background())
	require.NoError(t, err)

	assert.Same(t, db1, db2)
	assert.Equal(t, 2, db1.Stats().MaxOpenConnections)
}

func TestHandle_CloseIsIdempotent(t *testing.T) {
	h := NewHandle("sqlite", "file:"+filepath.Join(t.TempDir(), "c.db"), PoolOptions{})

	require.NoError(t, h.Close(), "closing an unopened handle is fine")
	require.NoError(t, h.Close())

	_, err := h.DB(context.Background())
	require.ErrorIs(t, err, ErrHandleClosed)
}

func TestHandle_UnknownDriver(t *testing.T) {
	h := NewHandle("no-such-driver", "x", PoolOptions{})

	_, err := h.DB(context.Background())
	require.Error(t, err)
	assert.Nil(t, h.db, "failed open is not cached")
}

// gateDriver blocks every connection attempt until release is closed.
type gateDriver struct {
	release chan struct{}
	opens   atomic.Int32
}

func (d *gateDriver) Open(string) (driver.Conn, error) {
	d.opens.Add(1)
	<-d.release
	return gateConn{}, nil
}

type gateConn struct{}

func (gateConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (gateConn) Close() error                        { return nil }
func (gateConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

var (
	gateOnce sync.Once
	gate     = &gateDriver{release: make(chan struct{})}
)

func TestHandle_WaitersHonourContextWhileOpening(t *testing.T) {
	gateOnce.Do(func() { sql.Register("dbx-gate", gate) })

	h := NewHandle("dbx-gate", "", PoolOptions{})
	t.Cleanup(func() { _ = h.Close() })

	first := make(chan error, 1)
	go func() {
		_, err := h.DB(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return gate.opens.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := h.DB(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "waiter must not queue behind the dial")

	close(gate.release)
	require.NoError(t, <-first)

	db, err := h.DB(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.EqualValues(t, 1, gate.opens.Load(), "callers share one open attempt")
}

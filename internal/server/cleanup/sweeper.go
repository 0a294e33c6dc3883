// Package cleanup purges refresh token rows that can no longer be used.
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// DBProvider yields the shared pool. *dbx.Handle implements it.
type DBProvider interface {
	DB(ctx context.Context) (*sql.DB, error)
}

type Config struct {
	// Interval between sweeps in Run.
	Interval time.Duration
	// Grace keeps expired and revoked rows for a while after the fact, so
	// reuse of a just-rotated token is still recognised.
	Grace time.Duration
	// BatchSize bounds the rows deleted per transaction.
	BatchSize int
	// RunOnStart makes Run sweep once before the first tick.
	RunOnStart bool
}

type Sweeper struct {
	db          DBProvider
	repomanager repomanager.RepositoryManager
	cfg         Config

	now     func() time.Time
	logger  logging.Logger
	metrics *metrics.Metrics
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(db DBProvider, rm repomanager.RepositoryManager, cfg Config, opts ...Option) *Sweeper {
	s := &Sweeper{db: db, repomanager: rm, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 500
	}
	return s
}

// Sweep deletes rows that expired, or were revoked, before now minus the
// grace period. Each batch is committed on its own; the loop stops at the
// first short batch. It returns the number of rows deleted, including
// batches committed before a failure.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.Grace)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := dbx.InTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
			return s.repomanager.RefreshTokens(tx).DeleteExpiredBefore(ctx, cutoff, s.cfg.BatchSize)
		})
		if err != nil {
			return total, fmt.Errorf("cleanup: %w", err)
		}

		total += n
		s.metrics.CleanupDeleted.Add(float64(n))

		if n < int64(s.cfg.BatchSize) {
			return total, nil
		}
	}
}

// Run sweeps every Interval until ctx is cancelled. A failed sweep is
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}

	if s.cfg.RunOnStart {
		s.sweepOnce(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.CleanupRuns.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error(ctx, "refresh token cleanup failed", "deleted", n, "error", err)
		return
	}
	s.metrics.CleanupRuns.WithLabelValues(metrics.ResultOK).Inc()
	s.logger.Info(ctx, "refresh token cleanup done", "deleted", n)
}

// Package scheduler runs probe cycles on a fixed cadence.
//
// One cycle at a time, persist before sleeping, and nothing a single
// cycle does (empty fleet, rejected request, failed commit) stops the
// loop. Shutdown is observed only between iterations: an in-flight cycle
// runs to completion or stream failure first, bounded by its own
// deadline rather than the run context.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fleetwatch/canary/internal/correlate"
	"github.com/fleetwatch/canary/internal/fleet"
	"github.com/fleetwatch/canary/internal/infrastructure/logging"
	"github.com/fleetwatch/canary/internal/infrastructure/monitoring"
	"github.com/fleetwatch/canary/internal/probe"
)

// SnapshotSource fetches a fresh fleet snapshot for each cycle.
type SnapshotSource interface {
	Fetch(ctx context.Context) (fleet.Snapshot, error)
}

// CycleRunner executes one probe cycle against a snapshot.
type CycleRunner interface {
	RunCycle(ctx context.Context, snap fleet.Snapshot) probe.Result
}

// Sink commits a batch of correlation records all-or-nothing.
type Sink interface {
	SaveBatch(ctx context.Context, records []correlate.Record) error
}

// Loop drives the probe on a fixed interval until the context is done.
type Loop struct {
	source       SnapshotSource
	runner       CycleRunner
	sink         Sink
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *logging.Logger
	metrics      *monitoring.Metrics
}

// NewLoop creates a scheduler loop.
func NewLoop(
	source SnapshotSource,
	runner CycleRunner,
	sink Sink,
	interval time.Duration,
	cycleTimeout time.Duration,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
) *Loop {
	return &Loop{
		source:       source,
		runner:       runner,
		sink:         sink,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run executes cycles until ctx is done. Exactly one cycle runs at a
// time; the stop signal is checked between iterations, never mid-cycle.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Scheduler stopping")
			return
		default:
		}

		l.runOnce()

		select {
		case <-ctx.Done():
			l.logger.Info("Scheduler stopping")
			return
		case <-time.After(l.interval):
		}
	}
}

// runOnce fetches a snapshot, runs one cycle, and persists its records.
// The cycle context derives from Background so shutdown never cancels
// an in-flight cycle; the timeout bounds runaway streams instead.
func (l *Loop) runOnce() {
	cycleCtx, cancel := context.WithTimeout(context.Background(), l.cycleTimeout)
	defer cancel()

	snap, err := l.source.Fetch(cycleCtx)
	if err != nil {
		l.logger.Warn("Fleet snapshot fetch failed", zap.Error(err))
		return
	}

	result := l.runner.RunCycle(cycleCtx, snap)

	// An empty batch never reaches the sink: committing nothing is a no-op.
	if len(result.Records) == 0 {
		return
	}

	if err := l.sink.SaveBatch(cycleCtx, result.Records); err != nil {
		// The batch is dropped; the next cycle proceeds on schedule.
		l.metrics.PersistFailures.Inc()
		l.logger.Error("Failed to persist record batch",
			zap.String("parent_invocation_id", result.ParentID),
			zap.Int("records", len(result.Records)),
			zap.Error(err),
		)
		return
	}

	l.metrics.PersistBatches.Inc()
	l.logger.Info("Tracked new synthetic records",
		zap.String("parent_invocation_id", result.ParentID),
		zap.String("outcome", result.Outcome.String()),
		zap.Int("records", len(result.Records)),
	)
}

// Package worker runs the retention purge sweep on a timer and on demand.
package worker

import (
	"context"
	"time"

	"github.com/docledger/docledger/internal/clock"
	"github.com/docledger/docledger/internal/document/service"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/docledger/docledger/pkg/metrics"
)

// Purger is the slice of the lifecycle engine the sweeper drives.
type Purger interface {
	PurgeDue(ctx context.Context, now time.Time) (*service.PurgeReport, error)
}

// Sweeper calls PurgeDue once at start, then every interval and whenever
// Trigger is called. Concurrent triggers coalesce into one sweep.
type Sweeper struct {
	svc      Purger
	clock    clock.Clock
	interval time.Duration
	trigger  chan struct{}
}

func NewSweeper(svc Purger, clk clock.Clock, interval time.Duration) *Sweeper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sweeper{svc: svc, clock: clk, interval: interval, trigger: make(chan struct{}, 1)}
}

// Trigger requests a sweep without blocking.
func (s *Sweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SweepOnce runs one sweep and logs its outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) (*service.PurgeReport, error) {
	start := time.Now()
	report, err := s.svc.PurgeDue(ctx, s.clock.Now())
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		logger.Errorf("purge sweep failed: %v", err)
		return nil, err
	}
	metrics.SweepRuns.WithLabelValues("ok").Inc()
	for id, reason := range report.Failed {
		logger.Warnw("purge failed, left for next sweep", "doc", id, "err", reason)
	}
	logger.Debugw("purge sweep done", "purged", len(report.Purged), "failed", len(report.Failed), "took", time.Since(start))
	return report, nil
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		_, _ = s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
	}
}

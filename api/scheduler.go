/*
scheduler.go - Periodic recalculation sweep

PURPOSE:
  Periodically recalculates every deal so commission sets pick up
  organisational and pay-plan changes made since they were last built.
  Snapshots already taken for a (person, date) are reused, so a sweep only
  changes a deal's set when a plan, rule or new snapshot says it should.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each pass lists all deals and hands them to the BatchRecalculator
  - Per-deal failures are logged and counted, never fatal to the sweep
  - The most recent pass is kept for the admin API

CONFIGURATION:
  - Interval: how often to sweep (engine.sweep_interval; 0 disables)

USAGE:
  sweeper := NewSweepScheduler(store, batch, interval, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: RecalculateBatch endpoint (manual sweep with "all": true)
  - commission/batch.go: BatchRecalculator
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/commission-engine/commission"
)

// SweepRun summarises one sweep pass.
type SweepRun struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Deals       int       `json:"deals"`
	Commissions int       `json:"commissions"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
}

// SweepScheduler recalculates all deals on a fixed interval.
type SweepScheduler struct {
	Deals    commission.DealStore
	Batch    *commission.BatchRecalculator
	Interval time.Duration
	Logger   *slog.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun *SweepRun
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(deals commission.DealStore, batch *commission.BatchRecalculator, interval time.Duration, logger *slog.Logger) *SweepScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepScheduler{
		Deals:    deals,
		Batch:    batch,
		Interval: interval,
		Logger:   logger.With(slog.String("component", "sweep")),
	}
}

// Start begins the scheduler. A non-positive interval leaves it disabled.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Logger.Info("sweep disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker.C, s.stop)

	s.Logger.Info("sweep started", slog.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("sweep stopped")
}

func (s *SweepScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		select {
		case <-tick:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep pass synchronously and records it.
func (s *SweepScheduler) RunNow(ctx context.Context) SweepRun {
	run := SweepRun{StartedAt: time.Now().UTC()}

	ids, err := s.Deals.ListDealIDs(ctx)
	if err != nil {
		run.Error = err.Error()
		s.Logger.Error("sweep failed to list deals", slog.String("error", err.Error()))
		return s.record(run)
	}
	run.Deals = len(ids)

	results, err := s.Batch.RecalculateMany(ctx, ids)
	if err != nil {
		run.Error = err.Error()
	}
	for _, r := range results {
		run.Commissions += r.Count
	}
	run.Failed = commission.Failed(results)

	s.Logger.Info("sweep completed",
		slog.Int("deals", run.Deals),
		slog.Int("commissions", run.Commissions),
		slog.Int("failed", run.Failed),
	)
	return s.record(run)
}

// LastRun returns the most recent pass, if any.
func (s *SweepScheduler) LastRun() *SweepRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	run := *s.lastRun
	return &run
}

func (s *SweepScheduler) record(run SweepRun) SweepRun {
	run.CompletedAt = time.Now().UTC()
	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()
	return run
}

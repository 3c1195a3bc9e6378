/*
scheduler.go - Periodic balance recompute

PURPOSE:
  Account balances are caches of a full replay over each account's
  transactions. A multi-step operation that failed half-way can leave a
  cached balance behind the documents that were actually written. The
  scheduler periodically rebuilds the in-process caches and recomputes
  every customer and supplier balance so such drift heals on its own.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Takes the handler write lock, so it never interleaves with a request
  - Continues past accounts that fail and logs the first error

CONFIGURATION:
  - Interval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewBalanceScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RecomputeAll endpoint (manual recompute)
  - ledger/balance.go: RecomputeAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BalanceScheduler recomputes every account balance on an interval.
type BalanceScheduler struct {
	Handler  *Handler
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// statMu guards lastRun. Separate from mu, which Stop holds while
	// waiting for an in-flight run.
	statMu  sync.Mutex
	lastRun RecomputeReport
}

// NewBalanceScheduler creates a new scheduler.
func NewBalanceScheduler(handler *Handler, logger *zap.Logger) *BalanceScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceScheduler{
		Handler:  handler,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger.Named("scheduler"),
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *BalanceScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.logger.Info("started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *BalanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *BalanceScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stop:
			return
		}
	}
}

// RunNow recomputes every balance immediately.
func (s *BalanceScheduler) RunNow() RecomputeReport {
	start := time.Now()
	rep, err := s.Handler.RecomputeBalances(context.Background())
	if err != nil {
		s.logger.Error("balance recompute finished with errors",
			zap.Int("customers", rep.Customers),
			zap.Int("suppliers", rep.Suppliers),
			zap.Error(err),
		)
	} else {
		s.logger.Info("balances recomputed",
			zap.Int("customers", rep.Customers),
			zap.Int("suppliers", rep.Suppliers),
			zap.Duration("took", time.Since(start)),
		)
	}
	s.setLastRun(rep)
	return rep
}

func (s *BalanceScheduler) setLastRun(rep RecomputeReport) {
	s.statMu.Lock()
	s.lastRun = rep
	s.statMu.Unlock()
}

// LastRun returns the report of the most recent run.
func (s *BalanceScheduler) LastRun() RecomputeReport {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return s.lastRun
}

// NextRunTime returns when the next scheduled run will occur.
func (s *BalanceScheduler) NextRunTime() time.Time {
	return s.LastRun().At.Add(s.Interval)
}

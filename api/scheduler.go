/*
scheduler.go - Background job scheduler

PURPOSE:
  Drives the engine's time-based work without external cron:
  - Escalation sweep: reassigns approval steps whose timeout elapsed
  - Annual allocation: grants entitlements once the new year starts
  - Carry-forward: transfers unused balance after the year boundary

DESIGN:
  - One background goroutine, two tickers: a frequent one for escalations
    and an infrequent one for the year-boundary jobs
  - All jobs are idempotent, so overlapping or repeated runs are safe
    (escalation is latched per step, allocation per balance key)
  - Year-boundary jobs run on every slow tick; the idempotence check
    makes January 1st the only tick that actually does work

CONFIGURATION:
  - EscalationInterval: escalation sweep cadence (default: 15 minutes)
  - AnnualInterval: year-boundary check cadence (default: 12 hours)

USAGE:
  scheduler := NewScheduler(machine, engine, logger)
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - approval/machine.go: CheckEscalations
  - accrual/engine.go: AllocateBatch, ApplyCarryForward
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
)

// Scheduler runs the engine's periodic jobs.
type Scheduler struct {
	Machine *approval.StateMachine
	Accrual *accrual.Engine
	Logger  *zap.Logger

	EscalationInterval time.Duration
	AnnualInterval     time.Duration

	escalationTicker *time.Ticker
	annualTicker     *time.Ticker
	stop             chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

// NewScheduler creates a scheduler with default intervals.
func NewScheduler(machine *approval.StateMachine, engine *accrual.Engine, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Machine:            machine,
		Accrual:            engine,
		Logger:             logger,
		EscalationInterval: 15 * time.Minute,
		AnnualInterval:     12 * time.Hour,
	}
}

// Start begins the background loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.escalationTicker = time.NewTicker(s.EscalationInterval)
	s.annualTicker = time.NewTicker(s.AnnualInterval)
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("scheduler started",
		zap.Duration("escalation_interval", s.EscalationInterval),
		zap.Duration("annual_interval", s.AnnualInterval))
}

// Stop halts the loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.escalationTicker.Stop()
	s.annualTicker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Sweep once on startup to catch anything that timed out while down.
	s.sweepEscalations()

	for {
		select {
		case <-s.escalationTicker.C:
			s.sweepEscalations()
		case <-s.annualTicker.C:
			s.runYearBoundary()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) sweepEscalations() {
	ctx := context.Background()
	result := s.Machine.CheckEscalations(ctx, time.Now())

	if result.Escalated > 0 || len(result.Errors) > 0 {
		s.Logger.Info("escalation sweep",
			zap.Int("checked", result.Checked),
			zap.Int("escalated", result.Escalated),
			zap.Int("errors", len(result.Errors)))
	}
	for _, err := range result.Errors {
		s.Logger.Warn("escalation failed", zap.Error(err))
	}
}

// runYearBoundary allocates the current year and carries forward the
// previous one. Both are idempotent, so running on every slow tick only
// does real work right after the year turns.
func (s *Scheduler) runYearBoundary() {
	ctx := context.Background()
	year := leave.Today().Year()

	results, err := s.Accrual.AllocateBatch(ctx, year)
	if err != nil {
		s.Logger.Error("annual allocation failed", zap.Int("year", year), zap.Error(err))
		return
	}
	allocated := 0
	for _, res := range results {
		if res.Outcome == accrual.Allocated {
			allocated++
		}
	}
	if allocated > 0 {
		s.Logger.Info("annual allocation",
			zap.Int("year", year),
			zap.Int("allocated", allocated),
			zap.Int("total", len(results)))
	}

	carried, err := s.Accrual.ApplyCarryForward(ctx, year-1)
	if err != nil {
		s.Logger.Error("carry-forward failed", zap.Int("from_year", year-1), zap.Error(err))
		return
	}
	transferred := 0
	for _, res := range carried {
		if res.Transferred.IsPositive() {
			transferred++
		}
	}
	if transferred > 0 {
		s.Logger.Info("carry-forward",
			zap.Int("from_year", year-1),
			zap.Int("transferred", transferred),
			zap.Int("balances", len(carried)))
	}
}

// Package scheduler triggers collection cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/secnews/internal/collect"
	"github.com/TobiSchelling/secnews/internal/logging"
	"github.com/TobiSchelling/secnews/internal/news"
)

// Runner runs one collection cycle.
type Runner interface {
	Run(ctx context.Context, trigger string) (*news.CycleReport, error)
}

// Scheduler fires collection cycles on a cron schedule. Overlapping ticks
// are skipped while a cycle is still running, and Stop cancels the cycle in
// flight before returning.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *log.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler running runner on spec (standard cron syntax or
// descriptors such as "@every 30m").
func New(spec string, runner Runner, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	cl := logging.CronLogger{L: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{
		cron:   c,
		runner: runner,
		logger: logger,
		ctx:    context.Background(),
	}

	if _, err := c.AddFunc(spec, func() { s.run(collect.TriggerSchedule) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling. Cycles run under ctx; cancelling it abandons an
// in-flight cycle. With runNow set a first cycle starts immediately.
func (s *Scheduler) Start(ctx context.Context, runNow bool) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	if runNow {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(collect.TriggerStartup)
		}()
	}
}

// Stop halts scheduling, cancels any running cycle and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func (s *Scheduler) run(trigger string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	_, err := s.runner.Run(ctx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, collect.ErrCycleInProgress):
		s.logger.Info("Skipping scheduled collection, a cycle is already running", "trigger", trigger)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("Collection cancelled", "trigger", trigger)
	default:
		s.logger.Error("Collection failed", "trigger", trigger, "err", err)
	}
}

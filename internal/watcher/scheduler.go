package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cycler runs one poll cycle.
type Cycler interface {
	RunCycle(ctx context.Context) CycleReport
}

// Scheduler fires a cycle every interval with robfig/cron. A tick that lands
// while the previous cycle is still running is skipped.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	cron     *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	runMu   sync.Mutex // serialises cycles between the timer and RunNow
}

// NewScheduler creates a Scheduler. interval must already be floored by the
// caller's configuration.
func NewScheduler(c Cycler, interval time.Duration) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cycler:   c,
		interval: interval,
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
	}
}

// Start registers the recurring cycle and starts the timer. When immediate is
// set a first cycle runs right away in the background.
func (s *Scheduler) Start(ctx context.Context, immediate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		s.cancel()
		s.cancel = nil
		return fmt.Errorf("registering poll cycle %q: %w", spec, err)
	}
	s.cron.Start()
	slog.Info("poll scheduler started", "interval", s.interval)

	if immediate {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			s.RunNow()
		}()
	}
	return nil
}

func (s *Scheduler) tick() {
	s.running.Add(1)
	defer s.running.Done()
	s.RunNow()
}

// RunNow runs one cycle synchronously, waiting for any cycle in flight.
func (s *Scheduler) RunNow() CycleReport {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.cycler.RunCycle(ctx)
}

// Stop clears the timer and waits for the in-flight cycle to finish. When ctx
// expires first the cycle's context is cancelled and Stop returns ctx.Err().
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		slog.Info("poll scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// cronLogger routes robfig/cron's logger into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	slog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	slog.Error("cron: "+msg, append(kv, "error", err)...)
}

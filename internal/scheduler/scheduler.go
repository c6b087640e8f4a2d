package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs tickFn every interval on its own goroutine until stopped.
// A tick that outlives the interval delays the next one; ticks never overlap.
type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   func(context.Context)

	running atomic.Bool
	ticks   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	switch {
	case name == "":
		return nil, errors.New("name must not be empty")
	case interval <= 0:
		return nil, errors.New("interval must be > 0")
	case tickFn == nil:
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{name: name, interval: interval, tickFn: tickFn}, nil
}

func (s *Scheduler) Name() string            { return s.name }
func (s *Scheduler) Interval() time.Duration { return s.interval }
func (s *Scheduler) IsRunning() bool         { return s.running.Load() }

// Ticks counts completed ticks, including ones that panicked.
func (s *Scheduler) Ticks() int64 { return s.ticks.Load() }

// Start launches the loop with an immediate first tick. It reports false when
// the loop is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.loop(ctx, s.done)
	return true
}

// Stop cancels the loop and waits for an in-flight tick to return. It
// reports false when the loop is not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "loop", s.name, "ticks", s.ticks.Load())
	return true
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "loop", s.name, "interval", s.interval.String())

	s.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		s.ticks.Add(1)
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "loop", s.name, "panic", r)
			return
		}
		slog.Debug("scheduler tick completed", "loop", s.name, "duration_ms", time.Since(start).Milliseconds())
	}()

	s.tickFn(ctx)
}

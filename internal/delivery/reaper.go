package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeventeLantos/callme-reminders/internal/repo"
)

const reapReason = "processing timed out; attempt presumed lost"

// Reaper returns reminders abandoned in processing to pending_retry. The
// timeout must be longer than the call timeout, otherwise a live delivery
// could be swept from under its executor.
type Reaper struct {
	repo       repo.ReminderRepository
	timeout    time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

func NewReaper(r repo.ReminderRepository, timeout, retryDelay time.Duration) *Reaper {
	return &Reaper{
		repo:       r,
		timeout:    timeout,
		retryDelay: retryDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reaper) WithClock(now func() time.Time) *Reaper {
	r.now = now
	return r
}

func (r *Reaper) Reap(ctx context.Context) (int64, error) {
	now := r.now()
	n, err := r.repo.ReapStuck(ctx, now.Add(-r.timeout), now.Add(r.retryDelay), reapReason, now)
	if err != nil {
		return 0, fmt.Errorf("reap stuck reminders: %w", err)
	}
	return n, nil
}

func (r *Reaper) Tick(ctx context.Context) {
	n, err := r.Reap(ctx)
	if err != nil {
		slog.Error("reaper sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Warn("reclaimed stuck reminders", "count", n, "timeout", r.timeout.String())
	}
}

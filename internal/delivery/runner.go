package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/callme-reminders/internal/repo"
)

var ErrStoreUnavailable = errors.New("store unavailable")

type RunnerConfig struct {
	Window    time.Duration
	BatchSize int
	Workers   int
}

type CycleStats struct {
	Selected  int `json:"selected"`
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Runner performs one poll cycle: select due ids, claim each one, and hand
// claimed reminders to the executor on a bounded pool of workers.
type Runner struct {
	repo repo.ReminderRepository
	exec *Executor
	cfg  RunnerConfig
	now  func() time.Time
}

func NewRunner(r repo.ReminderRepository, exec *Executor, cfg RunnerConfig) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		repo: r,
		exec: exec,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// RunOnce returns an error wrapping ErrStoreUnavailable only when the
// selection itself fails. Failures of single records are reflected in the
// stats and never abort the rest of the batch.
func (r *Runner) RunOnce(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	ids, err := r.repo.SelectDue(ctx, r.now(), r.cfg.Window, r.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("%w: select due reminders: %v", ErrStoreUnavailable, err)
	}
	stats.Selected = len(ids)
	if len(ids) == 0 {
		return stats, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.Workers)

	for _, id := range ids {
		id := id
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, claimed := r.claimAndExecute(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if claimed {
				stats.Claimed++
			}
			switch res {
			case Completed:
				stats.Completed++
			case Retrying:
				stats.Retrying++
			case Failed:
				stats.Failed++
			default:
				stats.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	return stats, nil
}

func (r *Runner) claimAndExecute(ctx context.Context, id int64) (Result, bool) {
	rec, err := r.repo.TryClaim(ctx, id, r.now())
	if err != nil {
		if errors.Is(err, repo.ErrClaimLost) {
			slog.Debug("reminder claimed elsewhere", "reminder_id", id)
		} else {
			slog.Warn("claim failed", "reminder_id", id, "error", err)
		}
		return Skipped, false
	}
	return r.exec.Execute(ctx, rec), true
}

// Tick adapts RunOnce to the scheduler loop.
func (r *Runner) Tick(ctx context.Context) {
	stats, err := r.RunOnce(ctx)
	if err != nil {
		slog.Error("poll cycle aborted", "error", err)
		return
	}
	if stats.Selected == 0 {
		return
	}
	slog.Info("poll cycle finished",
		"selected", stats.Selected,
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"retrying", stats.Retrying,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
}

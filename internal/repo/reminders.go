package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

var (
	ErrNotFound = errors.New("reminder not found")

	// ErrClaimLost means a conditional write matched no row: the record is no
	// longer in the status the caller expected, usually because another
	// instance (or the reaper) got to it first.
	ErrClaimLost = errors.New("reminder claim lost")
)

type ReminderRepository interface {
	Create(ctx context.Context, r *model.Reminder) error
	Get(ctx context.Context, id int64) (*model.Reminder, error)
	ListByStatus(ctx context.Context, status model.Status, limit, offset int) ([]model.Reminder, error)

	// SelectDue returns ids of scheduled reminders due by now+window and
	// pending retries due by now, earliest first. The result is a hint only.
	SelectDue(ctx context.Context, now time.Time, window time.Duration, limit int) ([]int64, error)

	// TryClaim moves a claimable reminder to processing in one conditional
	// statement and returns the updated row, or ErrClaimLost.
	TryClaim(ctx context.Context, id int64, now time.Time) (*model.Reminder, error)

	// BeginAttempt records a new attempt on a processing reminder: stores the
	// idempotency key and increments attempt_count.
	BeginAttempt(ctx context.Context, id int64, idempotencyKey string, now time.Time) (*model.Reminder, error)

	MarkCompleted(ctx context.Context, id int64, callID string, now time.Time) error
	MarkPendingRetry(ctx context.Context, id int64, nextRetryAt time.Time, reason string, now time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, now time.Time) error

	// ReapStuck moves processing reminders last updated before staleBefore to
	// pending_retry without touching attempt_count.
	ReapStuck(ctx context.Context, staleBefore, nextRetryAt time.Time, reason string, now time.Time) (int64, error)

	Ping(ctx context.Context) error
}

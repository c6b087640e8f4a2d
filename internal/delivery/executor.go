package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/callme-reminders/internal/model"
	"github.com/LeventeLantos/callme-reminders/internal/repo"
)

const (
	persistTimeout  = 10 * time.Second
	keySuffixLength = 16
)

type CallRequest struct {
	ReminderID     int64
	PhoneNumber    string
	Title          string
	Message        string
	IdempotencyKey string
}

type CallClient interface {
	InitiateCall(ctx context.Context, req CallRequest) (callID string, err error)
}

type Result int

const (
	// Skipped means the executor gave up on the record without changing its
	// state; another instance or the reaper owns it now.
	Skipped Result = iota
	Completed
	Retrying
	Failed
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case Retrying:
		return "retrying"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

type Hook func(ctx context.Context, r model.Reminder) error

type Executor struct {
	repo        repo.ReminderRepository
	client      CallClient
	policy      BackoffPolicy
	callTimeout time.Duration

	now    func() time.Time
	newKey func(id int64, attempt int) string

	onCompleted Hook
	onFailure   Hook
}

func NewExecutor(r repo.ReminderRepository, client CallClient, policy BackoffPolicy, callTimeout time.Duration) *Executor {
	return &Executor{
		repo:        r,
		client:      client,
		policy:      policy,
		callTimeout: callTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newKey:      NewIdempotencyKey,
	}
}

// WithHooks registers callbacks run after the final state is persisted.
// onFailure fires for both retry and permanent failure. Hook errors are logged
// only.
func (e *Executor) WithHooks(onCompleted, onFailure Hook) *Executor {
	e.onCompleted = onCompleted
	e.onFailure = onFailure
	return e
}

func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// NewIdempotencyKey returns "{id}-{attempt}-{random}".
func NewIdempotencyKey(id int64, attempt int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%d-%s", id, attempt, suffix[:keySuffixLength])
}

// Execute drives one claimed reminder through a delivery attempt. It never
// panics and never returns an error: every failure ends up as a state
// transition on the record, or as Skipped when the record is no longer ours.
func (e *Executor) Execute(ctx context.Context, r *model.Reminder) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("delivery panic recovered", "reminder_id", r.ID, "panic", p)
			res = e.recoverFailure(ctx, r.ID, fmt.Sprintf("internal error: %v", p))
		}
	}()

	if !r.AttemptsLeft() {
		return e.exhausted(ctx, r)
	}

	key := e.newKey(r.ID, r.AttemptCount)
	bctx, bcancel := persistContext(ctx)
	started, err := e.repo.BeginAttempt(bctx, r.ID, key, e.now())
	bcancel()
	if err != nil {
		if errors.Is(err, repo.ErrClaimLost) {
			slog.Debug("reminder no longer processing, skipping", "reminder_id", r.ID)
		} else {
			slog.Error("failed to record attempt", "reminder_id", r.ID, "error", err)
		}
		return Skipped
	}

	// A started call runs to completion or timeout even when the poll cycle is
	// cancelled, so shutdown never burns an attempt.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	callID, callErr := e.client.InitiateCall(callCtx, CallRequest{
		ReminderID:     started.ID,
		PhoneNumber:    started.PhoneNumber,
		Title:          started.Title,
		Message:        started.Message,
		IdempotencyKey: key,
	})

	if callErr == nil && callID == "" {
		callErr = errors.New("call service returned empty call id")
	}
	if callErr != nil {
		if errors.Is(callErr, context.DeadlineExceeded) {
			callErr = fmt.Errorf("call timed out after %s: %w", e.callTimeout, callErr)
		}
		return e.fail(ctx, started, callErr.Error())
	}

	return e.complete(ctx, started, callID)
}

func (e *Executor) complete(ctx context.Context, r *model.Reminder, callID string) Result {
	pctx, cancel := persistContext(ctx)
	defer cancel()

	now := e.now()
	if err := e.repo.MarkCompleted(pctx, r.ID, callID, now); err != nil {
		slog.Error("failed to persist completion", "reminder_id", r.ID, "call_id", callID, "error", err)
		return Skipped
	}

	final := *r
	final.Status = model.Completed
	final.VapiCallID = &callID
	final.LastError = nil
	final.NextRetryAt = nil
	final.UpdatedAt = now

	slog.Info("reminder call initiated", "reminder_id", r.ID, "attempt", r.AttemptCount, "call_id", callID)
	e.runHook(pctx, e.onCompleted, final)
	return Completed
}

func (e *Executor) fail(ctx context.Context, r *model.Reminder, reason string) Result {
	pctx, cancel := persistContext(ctx)
	defer cancel()

	now := e.now()
	d := e.policy.OnFailure(r, reason, now)

	var err error
	switch d.Status {
	case model.PendingRetry:
		err = e.repo.MarkPendingRetry(pctx, r.ID, *d.NextRetryAt, d.LastError, now)
	default:
		err = e.repo.MarkFailed(pctx, r.ID, d.LastError, now)
	}
	if err != nil {
		slog.Error("failed to persist delivery failure", "reminder_id", r.ID, "status", d.Status, "error", err)
		return Skipped
	}

	final := *r
	final.Status = d.Status
	final.NextRetryAt = d.NextRetryAt
	final.LastError = &d.LastError
	final.UpdatedAt = now

	res := Retrying
	if d.Status == model.Failed {
		res = Failed
		slog.Error("reminder delivery failed permanently",
			"reminder_id", r.ID, "attempt", r.AttemptCount, "max_attempts", r.MaxAttempts, "error", reason)
	} else {
		slog.Warn("reminder delivery failed, retry scheduled",
			"reminder_id", r.ID, "attempt", r.AttemptCount, "next_retry_at", d.NextRetryAt.Format(time.RFC3339), "error", reason)
	}

	e.runHook(pctx, e.onFailure, final)
	return res
}

func (e *Executor) exhausted(ctx context.Context, r *model.Reminder) Result {
	reason := "attempt budget exhausted"
	if r.LastError != nil && *r.LastError != "" {
		reason += ": " + *r.LastError
	}
	return e.fail(ctx, r, reason)
}

// recoverFailure re-reads the record and applies failure handling to whatever
// state was persisted. The attempt increment, if it happened, is already in
// the store and is not applied again.
func (e *Executor) recoverFailure(ctx context.Context, id int64, reason string) Result {
	pctx, cancel := persistContext(ctx)
	defer cancel()

	current, err := e.repo.Get(pctx, id)
	if err != nil {
		slog.Error("failed to reload reminder after panic", "reminder_id", id, "error", err)
		return Skipped
	}
	if current.Status != model.Processing {
		return Skipped
	}
	return e.fail(ctx, current, reason)
}

func (e *Executor) runHook(ctx context.Context, h Hook, r model.Reminder) {
	if h == nil {
		return
	}
	if err := h(ctx, r); err != nil {
		slog.Warn("delivery hook failed", "reminder_id", r.ID, "status", r.Status, "error", err)
	}
}

// persistContext detaches store writes from the poll cycle's cancellation so
// that a shutdown between claim and outcome still leaves a consistent record.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

package delivery

import (
	"time"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

// maxShift keeps BaseDelay << n from overflowing time.Duration.
const maxShift = 30

// BackoffPolicy decides between retry and permanent failure. Delays are
// deterministic: BaseDelay * 2^attempt_count, no jitter.
type BackoffPolicy struct {
	BaseDelay time.Duration
}

type Decision struct {
	Status      model.Status
	NextRetryAt *time.Time
	LastError   string
}

func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxShift {
		attempts = maxShift
	}
	return p.BaseDelay << attempts
}

// OnFailure runs after the failed attempt was recorded, so the exponent is the
// number of attempts made before it: the first retry waits BaseDelay.
func (p BackoffPolicy) OnFailure(r *model.Reminder, reason string, now time.Time) Decision {
	if r.AttemptsLeft() {
		next := now.Add(p.Delay(r.AttemptCount - 1)).UTC()
		return Decision{Status: model.PendingRetry, NextRetryAt: &next, LastError: reason}
	}
	return Decision{Status: model.Failed, LastError: reason}
}

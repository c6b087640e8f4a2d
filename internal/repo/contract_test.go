package repo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

var baseNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, r ReminderRepository, dueAt time.Time) *model.Reminder {
	t.Helper()

	due := dueAt.UTC()
	m := &model.Reminder{
		UserID:      1,
		Title:       "Standup",
		Message:     "Daily standup in five minutes",
		PhoneNumber: "+14155550123",
		DateTime:    due,
		Timezone:    "UTC",
		DateTimeUTC: &due,
		MaxAttempts: 3,
	}
	require.NoError(t, r.Create(context.Background(), m))
	require.NotZero(t, m.ID)
	return m
}

// runContract exercises the behaviour both repository implementations share.
func runContract(t *testing.T, newRepo func(t *testing.T) ReminderRepository) {
	ctx := context.Background()

	t.Run("selector window and retry eligibility", func(t *testing.T) {
		r := newRepo(t)
		inWindow := seed(t, r, baseNow.Add(30*time.Second))
		outOfWindow := seed(t, r, baseNow.Add(90*time.Second))
		retry := seed(t, r, baseNow.Add(-time.Hour))

		_, err := r.TryClaim(ctx, retry.ID, baseNow.Add(-time.Hour))
		require.NoError(t, err)
		_, err = r.BeginAttempt(ctx, retry.ID, "retry-key", baseNow.Add(-time.Hour))
		require.NoError(t, err)
		require.NoError(t, r.MarkPendingRetry(ctx, retry.ID, baseNow.Add(-time.Second), "busy", baseNow.Add(-time.Hour)))

		ids, err := r.SelectDue(ctx, baseNow, time.Minute, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{retry.ID, inWindow.ID}, ids)
		assert.NotContains(t, ids, outOfWindow.ID)
	})

	t.Run("pending retry in the future is not selected", func(t *testing.T) {
		r := newRepo(t)
		m := seed(t, r, baseNow.Add(-time.Hour))

		_, err := r.TryClaim(ctx, m.ID, baseNow)
		require.NoError(t, err)
		_, err = r.BeginAttempt(ctx, m.ID, "future-key", baseNow)
		require.NoError(t, err)
		require.NoError(t, r.MarkPendingRetry(ctx, m.ID, baseNow.Add(time.Second), "busy", baseNow))

		ids, err := r.SelectDue(ctx, baseNow, time.Hour, 10)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("selector respects batch size and order", func(t *testing.T) {
		r := newRepo(t)
		late := seed(t, r, baseNow.Add(-time.Minute))
		early := seed(t, r, baseNow.Add(-time.Hour))
		seed(t, r, baseNow)

		ids, err := r.SelectDue(ctx, baseNow, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{early.ID, late.ID}, ids)

		_, err = r.SelectDue(ctx, baseNow, 0, 0)
		assert.Error(t, err)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		r := newRepo(t)
		m := seed(t, r, baseNow)

		const n = 16
		var wins atomic.Int64
		var lost atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				got, err := r.TryClaim(ctx, m.ID, baseNow)
				switch {
				case err == nil:
					wins.Add(1)
					assert.Equal(t, model.Processing, got.Status)
				case errors.Is(err, ErrClaimLost):
					lost.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.EqualValues(t, 1, wins.Load())
		assert.EqualValues(t, n-1, lost.Load())
	})

	t.Run("claim returns full record", func(t *testing.T) {
		r := newRepo(t)
		m := seed(t, r, baseNow)

		got, err := r.TryClaim(ctx, m.ID, baseNow.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, m.Title, got.Title)
		assert.Equal(t, m.PhoneNumber, got.PhoneNumber)
		assert.Equal(t, model.Processing, got.Status)
		assert.True(t, got.UpdatedAt.Equal(baseNow.Add(time.Second)))

		_, err = r.TryClaim(ctx, m.ID, baseNow)
		assert.ErrorIs(t, err, ErrClaimLost)
	})

	t.Run("begin attempt increments and stores key", func(t *testing.T) {
		r := newRepo(t)
		m := seed(t, r, baseNow)

		_, err := r.BeginAttempt(ctx, m.ID, "too-early", baseNow)
		assert.ErrorIs(t, err, ErrClaimLost, "attempt requires processing status")

		_, err = r.TryClaim(ctx, m.ID, baseNow)
		require.NoError(t, err)
		got, err := r.BeginAttempt(ctx, m.ID, "key-1", baseNow)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AttemptCount)
		require.NotNil(t, got.IdempotencyKey)
		assert.Equal(t, "key-1", *got.IdempotencyKey)
	})

	t.Run("completion clears error", func(t *testing.T) {
		r := newRepo(t)
		m := seed(t, r, baseNow)

		_, err := r.TryClaim(ctx, m.ID, baseNow)
		require.NoError(t, err)
		_, err = r.BeginAttempt(ctx, m.ID, "c-1", baseNow)
		require.NoError(t, err)
		require.NoError(t, r.MarkPendingRetry(ctx, m.ID, baseNow.Add(time.Minute), "no answer", baseNow))

		_, err = r.TryClaim(ctx, m.ID, baseNow.Add(time.Minute))
		require.NoError(t, err)
		_, err = r.BeginAttempt(ctx, m.ID, "c-2", baseNow.Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, r.MarkCompleted(ctx, m.ID, "call-123", baseNow.Add(time.Minute)))

		got, err := r.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Completed, got.Status)
		assert.Nil(t, got.LastError)
		assert.Nil(t, got.NextRetryAt)
		require.NotNil(t, got.VapiCallID)
		assert.Equal(t, "call-123", *got.VapiCallID)
		assert.Equal(t, 2, got.AttemptCount)

		assert.ErrorIs(t, r.MarkFailed(ctx, m.ID, "late", baseNow), ErrClaimLost)
	})

	t.Run("reaper sweeps only stale processing rows", func(t *testing.T) {
		r := newRepo(t)
		stale := seed(t, r, baseNow)
		fresh := seed(t, r, baseNow)
		idle := seed(t, r, baseNow)

		_, err := r.TryClaim(ctx, stale.ID, baseNow.Add(-20*time.Minute))
		require.NoError(t, err)
		_, err = r.BeginAttempt(ctx, stale.ID, "stale-1", baseNow.Add(-20*time.Minute))
		require.NoError(t, err)
		_, err = r.TryClaim(ctx, fresh.ID, baseNow.Add(-time.Minute))
		require.NoError(t, err)

		n, err := r.ReapStuck(ctx, baseNow.Add(-10*time.Minute), baseNow.Add(time.Minute), "stuck", baseNow)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := r.Get(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PendingRetry, got.Status)
		assert.Equal(t, 1, got.AttemptCount)
		require.NotNil(t, got.NextRetryAt)

		got, err = r.Get(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Processing, got.Status)

		got, err = r.Get(ctx, idle.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Scheduled, got.Status)
	})

	t.Run("get and list", func(t *testing.T) {
		r := newRepo(t)
		a := seed(t, r, baseNow)
		seed(t, r, baseNow)

		_, err := r.Get(ctx, 987654)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = r.TryClaim(ctx, a.ID, baseNow)
		require.NoError(t, err)

		scheduled, err := r.ListByStatus(ctx, model.Scheduled, 10, 0)
		require.NoError(t, err)
		assert.Len(t, scheduled, 1)

		processing, err := r.ListByStatus(ctx, model.Processing, 10, 0)
		require.NoError(t, err)
		require.Len(t, processing, 1)
		assert.Equal(t, a.ID, processing[0].ID)

		none, err := r.ListByStatus(ctx, model.Scheduled, 10, 5)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

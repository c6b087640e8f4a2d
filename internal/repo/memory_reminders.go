package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

// MemoryReminderRepo keeps reminders in process. Every method runs under one
// lock, which gives the same single-statement atomicity the Postgres
// repository relies on.
type MemoryReminderRepo struct {
	mu          sync.Mutex
	nextID      int64
	rows        map[int64]*model.Reminder
	maxAttempts int
}

var _ ReminderRepository = (*MemoryReminderRepo)(nil)

func NewMemoryReminderRepo() *MemoryReminderRepo {
	return &MemoryReminderRepo{
		rows:        make(map[int64]*model.Reminder),
		maxAttempts: model.DefaultMaxAttempts,
	}
}

// WithDefaultMaxAttempts sets the budget given to reminders created without one.
func (r *MemoryReminderRepo) WithDefaultMaxAttempts(n int) *MemoryReminderRepo {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *MemoryReminderRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryReminderRepo) Create(ctx context.Context, m *model.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m.Status == "" {
		m.Status = model.Scheduled
	}
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = r.maxAttempts
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.IdempotencyKey != nil {
		if err := r.checkUniqueKeyLocked(0, *m.IdempotencyKey); err != nil {
			return err
		}
	}

	r.nextID++
	m.ID = r.nextID
	r.rows[m.ID] = clone(m)
	return nil
}

func (r *MemoryReminderRepo) Get(ctx context.Context, id int64) (*model.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m), nil
}

func (r *MemoryReminderRepo) ListByStatus(ctx context.Context, status model.Status, limit, offset int) ([]model.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []model.Reminder
	for _, m := range r.rows {
		if m.Status == status {
			matched = append(matched, *clone(m))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryReminderRepo) SelectDue(ctx context.Context, now time.Time, window time.Duration, limit int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	horizon := now.Add(window)
	var due []*model.Reminder
	for _, m := range r.rows {
		switch {
		case m.Status == model.Scheduled && m.DateTimeUTC != nil && !m.DateTimeUTC.After(horizon):
			due = append(due, m)
		case m.Status == model.PendingRetry && m.NextRetryAt != nil && !m.NextRetryAt.After(now):
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].DueAt(), due[j].DueAt()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return due[i].ID < due[j].ID
	})

	if len(due) > limit {
		due = due[:limit]
	}
	ids := make([]int64, 0, len(due))
	for _, m := range due {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *MemoryReminderRepo) TryClaim(ctx context.Context, id int64, now time.Time) (*model.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok || !m.Status.Claimable() {
		return nil, ErrClaimLost
	}
	if err := r.transitionLocked(m, model.Processing, now); err != nil {
		return nil, err
	}
	return clone(m), nil
}

func (r *MemoryReminderRepo) BeginAttempt(ctx context.Context, id int64, idempotencyKey string, now time.Time) (*model.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok || m.Status != model.Processing || !m.AttemptsLeft() {
		return nil, ErrClaimLost
	}
	if err := r.checkUniqueKeyLocked(id, idempotencyKey); err != nil {
		return nil, err
	}

	key := idempotencyKey
	m.IdempotencyKey = &key
	m.AttemptCount++
	m.UpdatedAt = now.UTC()
	return clone(m), nil
}

func (r *MemoryReminderRepo) MarkCompleted(ctx context.Context, id int64, callID string, now time.Time) error {
	return r.finish(ctx, id, model.Completed, now, func(m *model.Reminder) {
		m.VapiCallID = &callID
		m.LastError = nil
		m.NextRetryAt = nil
	})
}

func (r *MemoryReminderRepo) MarkPendingRetry(ctx context.Context, id int64, nextRetryAt time.Time, reason string, now time.Time) error {
	return r.finish(ctx, id, model.PendingRetry, now, func(m *model.Reminder) {
		at := nextRetryAt.UTC()
		m.NextRetryAt = &at
		m.LastError = &reason
	})
}

func (r *MemoryReminderRepo) MarkFailed(ctx context.Context, id int64, reason string, now time.Time) error {
	return r.finish(ctx, id, model.Failed, now, func(m *model.Reminder) {
		m.NextRetryAt = nil
		m.LastError = &reason
	})
}

func (r *MemoryReminderRepo) ReapStuck(ctx context.Context, staleBefore, nextRetryAt time.Time, reason string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.rows {
		if m.Status != model.Processing || !m.UpdatedAt.Before(staleBefore) {
			continue
		}
		if err := r.transitionLocked(m, model.PendingRetry, now); err != nil {
			return n, err
		}
		at := nextRetryAt.UTC()
		msg := reason
		m.NextRetryAt = &at
		m.LastError = &msg
		n++
	}
	return n, nil
}

func (r *MemoryReminderRepo) finish(ctx context.Context, id int64, to model.Status, now time.Time, apply func(*model.Reminder)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok || m.Status != model.Processing {
		return ErrClaimLost
	}
	if err := r.transitionLocked(m, to, now); err != nil {
		return err
	}
	apply(m)
	return nil
}

func (r *MemoryReminderRepo) transitionLocked(m *model.Reminder, to model.Status, now time.Time) error {
	if err := model.CheckTransition(m.Status, to); err != nil {
		return err
	}
	m.Status = to
	m.UpdatedAt = now.UTC()
	return nil
}

func (r *MemoryReminderRepo) checkUniqueKeyLocked(ownerID int64, key string) error {
	for id, other := range r.rows {
		if id != ownerID && other.IdempotencyKey != nil && *other.IdempotencyKey == key {
			return fmt.Errorf("idempotency key %q already used by reminder %d", key, id)
		}
	}
	return nil
}

func clone(m *model.Reminder) *model.Reminder {
	c := *m
	c.DateTimeUTC = clonePtr(m.DateTimeUTC)
	c.NextRetryAt = clonePtr(m.NextRetryAt)
	c.LastError = clonePtr(m.LastError)
	c.IdempotencyKey = clonePtr(m.IdempotencyKey)
	c.VapiCallID = clonePtr(m.VapiCallID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const reminderColumns = `
	id, user_id, title, message, phone_number, date_time, timezone, date_time_utc,
	status, attempt_count, max_attempts, next_retry_at, last_error,
	idempotency_key, vapi_call_id, created_at, updated_at`

type PostgresReminderRepo struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewPostgresReminderRepo(pool *pgxpool.Pool) *PostgresReminderRepo {
	return &PostgresReminderRepo{pool: pool, maxAttempts: model.DefaultMaxAttempts}
}

// WithDefaultMaxAttempts sets the budget given to reminders created without one.
func (r *PostgresReminderRepo) WithDefaultMaxAttempts(n int) *PostgresReminderRepo {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// NewPool opens a pgx pool sized for the scheduler's worker count.
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute
	cfg.HealthCheckPeriod = 2 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (r *PostgresReminderRepo) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *PostgresReminderRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresReminderRepo) Create(ctx context.Context, m *model.Reminder) error {
	if m.Status == "" {
		m.Status = model.Scheduled
	}
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = r.maxAttempts
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO reminders (
			user_id, title, message, phone_number, date_time, timezone,
			date_time_utc, status, max_attempts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		m.UserID,
		m.Title,
		m.Message,
		m.PhoneNumber,
		m.DateTime,
		m.Timezone,
		m.DateTimeUTC,
		string(m.Status),
		m.MaxAttempts,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (r *PostgresReminderRepo) Get(ctx context.Context, id int64) (*model.Reminder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	m, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *PostgresReminderRepo) ListByStatus(ctx context.Context, status model.Status, limit, offset int) ([]model.Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE status = $1
		ORDER BY updated_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reminder
	for rows.Next() {
		m, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *PostgresReminderRepo) SelectDue(ctx context.Context, now time.Time, window time.Duration, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM reminders
		WHERE (status = 'scheduled' AND date_time_utc <= $1)
		   OR (status = 'pending_retry' AND next_retry_at <= $2)
		ORDER BY CASE WHEN status = 'pending_retry' THEN next_retry_at ELSE date_time_utc END ASC, id ASC
		LIMIT $3
	`, now.Add(window).UTC(), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresReminderRepo) TryClaim(ctx context.Context, id int64, now time.Time) (*model.Reminder, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE reminders
		SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status IN ('scheduled', 'pending_retry')
		RETURNING `+reminderColumns, id, now.UTC())

	m, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClaimLost
	}
	return m, err
}

func (r *PostgresReminderRepo) BeginAttempt(ctx context.Context, id int64, idempotencyKey string, now time.Time) (*model.Reminder, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE reminders
		SET attempt_count = attempt_count + 1,
		    idempotency_key = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing' AND attempt_count < max_attempts
		RETURNING `+reminderColumns, id, idempotencyKey, now.UTC())

	m, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClaimLost
	}
	return m, err
}

func (r *PostgresReminderRepo) MarkCompleted(ctx context.Context, id int64, callID string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET status = 'completed',
		    vapi_call_id = $2,
		    last_error = NULL,
		    next_retry_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, callID, now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *PostgresReminderRepo) MarkPendingRetry(ctx context.Context, id int64, nextRetryAt time.Time, reason string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET status = 'pending_retry',
		    next_retry_at = $2,
		    last_error = $3,
		    updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`, id, nextRetryAt.UTC(), reason, now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *PostgresReminderRepo) MarkFailed(ctx context.Context, id int64, reason string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET status = 'failed',
		    next_retry_at = NULL,
		    last_error = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, reason, now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *PostgresReminderRepo) ReapStuck(ctx context.Context, staleBefore, nextRetryAt time.Time, reason string, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET status = 'pending_retry',
		    next_retry_at = $2,
		    last_error = $3,
		    updated_at = $4
		WHERE status = 'processing' AND updated_at < $1
	`, staleBefore.UTC(), nextRetryAt.UTC(), reason, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanReminder(row pgx.Row) (*model.Reminder, error) {
	var m model.Reminder
	var status string
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Title,
		&m.Message,
		&m.PhoneNumber,
		&m.DateTime,
		&m.Timezone,
		&m.DateTimeUTC,
		&status,
		&m.AttemptCount,
		&m.MaxAttempts,
		&m.NextRetryAt,
		&m.LastError,
		&m.IdempotencyKey,
		&m.VapiCallID,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Status = model.Status(status)
	return &m, nil
}

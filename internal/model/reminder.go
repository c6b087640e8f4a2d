package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/callme-reminders/internal/tz"
)

const (
	DefaultMaxAttempts = 3
	titleMax           = 200
)

var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

type Reminder struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"userId"`

	Title       string     `json:"title"`
	Message     string     `json:"message"`
	PhoneNumber string     `json:"phoneNumber"`
	DateTime    time.Time  `json:"dateTime"`
	Timezone    string     `json:"timezone"`
	DateTimeUTC *time.Time `json:"dateTimeUtc,omitempty"`

	Status Status `json:"status"`

	AttemptCount int        `json:"attemptCount"`
	MaxAttempts  int        `json:"maxAttempts"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
	LastError    *string    `json:"lastError,omitempty"`

	IdempotencyKey *string `json:"idempotencyKey,omitempty"`
	VapiCallID     *string `json:"vapiCallId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AttemptsLeft reports whether another delivery attempt fits in the budget.
func (r *Reminder) AttemptsLeft() bool {
	return r.AttemptCount < r.MaxAttempts
}

// DueAt is the instant the selector orders by.
func (r *Reminder) DueAt() time.Time {
	if r.Status == PendingRetry && r.NextRetryAt != nil {
		return *r.NextRetryAt
	}
	if r.DateTimeUTC != nil {
		return *r.DateTimeUTC
	}
	return time.Time{}
}

type NewReminderInput struct {
	UserID      int64
	Title       string
	Message     string
	PhoneNumber string
	DateTime    time.Time
	Timezone    string
	MaxAttempts int
}

// NewReminder validates the input and returns a scheduled reminder with its
// UTC due instant computed. Errors from the timezone conversion wrap
// tz.ErrInvalidTimezone.
func NewReminder(in NewReminderInput, defaultMaxAttempts int) (*Reminder, error) {
	var errs []error

	title := strings.TrimSpace(in.Title)
	if title == "" || utf8.RuneCountInString(title) > titleMax {
		errs = append(errs, fmt.Errorf("title must be 1..%d characters", titleMax))
	}
	if strings.TrimSpace(in.Message) == "" {
		errs = append(errs, errors.New("message must not be empty"))
	}
	if !phonePattern.MatchString(in.PhoneNumber) {
		errs = append(errs, fmt.Errorf("phone number %q is not E.164", in.PhoneNumber))
	}

	utc, err := tz.ToUTC(in.DateTime, in.Timezone)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Reminder{
		UserID:      in.UserID,
		Title:       title,
		Message:     in.Message,
		PhoneNumber: in.PhoneNumber,
		DateTime:    in.DateTime,
		Timezone:    in.Timezone,
		DateTimeUTC: &utc,
		Status:      Scheduled,
		MaxAttempts: maxAttempts,
	}, nil
}

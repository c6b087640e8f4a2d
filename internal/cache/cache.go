package cache

import (
	"context"
	"errors"
	"time"
)

var ErrReceiptNotFound = errors.New("receipt not found")

// Receipt records the call that completed a reminder.
type Receipt struct {
	ReminderID     int64     `json:"-"`
	CallID         string    `json:"callId"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Attempt        int       `json:"attempt"`
	CalledAt       time.Time `json:"calledAt"`
}

type ReceiptCache interface {
	StoreReceipt(ctx context.Context, r Receipt) error
	LookupReceipt(ctx context.Context, reminderID int64) (Receipt, error)
}

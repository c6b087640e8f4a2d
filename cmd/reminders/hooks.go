package main

import (
	"context"
	"errors"

	"github.com/LeventeLantos/callme-reminders/internal/cache"
	"github.com/LeventeLantos/callme-reminders/internal/events"
	"github.com/LeventeLantos/callme-reminders/internal/model"
)

// outcomeHooks fan a persisted delivery outcome out to the receipt cache and
// the event stream. receipts may be nil.
type outcomeHooks struct {
	receipts  cache.ReceiptCache
	publisher events.Publisher
}

func (h outcomeHooks) onCompleted(ctx context.Context, r model.Reminder) error {
	var errs []error
	if h.receipts != nil && r.VapiCallID != nil {
		rc := cache.Receipt{
			ReminderID: r.ID,
			CallID:     *r.VapiCallID,
			Attempt:    r.AttemptCount,
			CalledAt:   r.UpdatedAt,
		}
		if r.IdempotencyKey != nil {
			rc.IdempotencyKey = *r.IdempotencyKey
		}
		errs = append(errs, h.receipts.StoreReceipt(ctx, rc))
	}
	errs = append(errs, h.publisher.Publish(ctx, events.FromReminder(r)))
	return errors.Join(errs...)
}

func (h outcomeHooks) onFailure(ctx context.Context, r model.Reminder) error {
	return h.publisher.Publish(ctx, events.FromReminder(r))
}

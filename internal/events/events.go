// Package events publishes reminder delivery outcomes to a message broker.
package events

import (
	"context"
	"time"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

type Event struct {
	ReminderID     int64        `json:"reminderId"`
	Status         model.Status `json:"status"`
	Attempt        int          `json:"attempt"`
	CallID         string       `json:"callId,omitempty"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	Error          string       `json:"error,omitempty"`
	At             time.Time    `json:"at"`
}

func (e Event) RoutingKey() string {
	return "reminder." + string(e.Status)
}

// FromReminder builds the event for a reminder's persisted outcome.
func FromReminder(r model.Reminder) Event {
	e := Event{
		ReminderID: r.ID,
		Status:     r.Status,
		Attempt:    r.AttemptCount,
		At:         r.UpdatedAt.UTC(),
	}
	if r.VapiCallID != nil {
		e.CallID = *r.VapiCallID
	}
	if r.IdempotencyKey != nil {
		e.IdempotencyKey = *r.IdempotencyKey
	}
	if r.LastError != nil {
		e.Error = *r.LastError
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/callme-reminders/internal/model"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func strPtr(s string) *string { return &s }

func TestFromReminder(t *testing.T) {
	at := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

	e := FromReminder(model.Reminder{
		ID:             3,
		Status:         model.Completed,
		AttemptCount:   2,
		IdempotencyKey: strPtr("3-1-abcdef0123456789"),
		VapiCallID:     strPtr("call-9"),
		UpdatedAt:      at,
	})

	assert.Equal(t, Event{
		ReminderID:     3,
		Status:         model.Completed,
		Attempt:        2,
		CallID:         "call-9",
		IdempotencyKey: "3-1-abcdef0123456789",
		At:             at,
	}, e)
	assert.Equal(t, "reminder.completed", e.RoutingKey())

	failed := FromReminder(model.Reminder{ID: 4, Status: model.PendingRetry, LastError: strPtr("busy")})
	assert.Equal(t, "busy", failed.Error)
	assert.Equal(t, "reminder.pending_retry", failed.RoutingKey())
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(DefaultExchange, ch)

	e := Event{ReminderID: 1, Status: model.Failed, Attempt: 3, Error: "no answer", IdempotencyKey: "1-2-k", At: time.Now().UTC()}
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "reminder.failed", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "1-2-k", got.msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "failed", decoded["status"])
	assert.Equal(t, "no answer", decoded["error"])
	assert.NotContains(t, decoded, "callId")
}

func TestAMQPPublisher_Errors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed by broker")}
	p := newPublisher(DefaultExchange, ch)

	err := p.Publish(context.Background(), Event{Status: model.Completed})
	assert.EqualError(t, err, "channel closed by broker")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Event{Status: model.Completed}), context.Canceled)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	assert.Error(t, p.Publish(context.Background(), Event{Status: model.Completed}))
	assert.NoError(t, p.Close())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}

package model

import (
	"errors"
	"fmt"
)

type Status string

const (
	Scheduled    Status = "scheduled"
	Processing   Status = "processing"
	PendingRetry Status = "pending_retry"
	Completed    Status = "completed"
	Failed       Status = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists every status change the scheduler is allowed to make.
var transitions = map[Status][]Status{
	Scheduled:    {Processing},
	PendingRetry: {Processing},
	Processing:   {Completed, PendingRetry, Failed},
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case Scheduled, Processing, PendingRetry, Completed, Failed:
		return true
	}
	return false
}

// Claimable reports whether a record in this status may be taken for delivery.
func (s Status) Claimable() bool {
	return s == Scheduled || s == PendingRetry
}

func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition wrapped with both ends when the
// change is not in the transition table.
func CheckTransition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

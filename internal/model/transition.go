package model

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	Draft:           {PendingApproval, Approved, Rejected, Scheduled},
	PendingApproval: {Approved, Rejected},
	Approved:        {Sent, Failed},
	Scheduled:       {Scheduled, Cancelled, Sent, Failed},
	Sent:            {Delivered, Read, Replied},
	Delivered:       {Read, Replied},
	Read:            {Replied},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves m to the target status or reports ErrInvalidTransition.
func (m *Message) Transition(to Status) error {
	if !CanTransition(m.Status, to) {
		return &TransitionError{From: m.Status, To: to}
	}
	m.Status = to
	return nil
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

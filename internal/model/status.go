package model

import "fmt"

// Status is the lifecycle status persisted on listings and bundles.
type Status string

// Item statuses. Only StatusReady and StatusProcessing populate the queue.
const (
	StatusDraft       Status = "draft"
	StatusReady       Status = "ready"
	StatusProcessing  Status = "processing"
	StatusVintedDraft Status = "vinted_draft"
	StatusPublished   Status = "published"
	StatusError       Status = "error"
	StatusSold        Status = "sold"
)

// QueueStatuses are the statuses the queue is built from.
var QueueStatuses = []Status{StatusReady, StatusProcessing}

// transitions is the allowed-transition table for this subsystem. Anything not
// listed here is written by other collaborators, never by the claim or
// finalize logic.
var transitions = map[Status][]Status{
	StatusReady:       {StatusProcessing, StatusError},
	StatusProcessing:  {StatusVintedDraft, StatusPublished, StatusError},
	StatusVintedDraft: {StatusPublished, StatusError},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReady, StatusProcessing, StatusVintedDraft,
		StatusPublished, StatusError, StatusSold:
		return true
	}
	return false
}

// Queued reports whether items in this status belong in the work queue.
func (s Status) Queued() bool {
	return s == StatusReady || s == StatusProcessing
}

// Terminal reports whether the status ends active management by the workflow.
func (s Status) Terminal() bool {
	return s == StatusVintedDraft || s == StatusPublished || s == StatusError
}

// CanTransition reports whether the workflow may move an item from one status
// to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrWrongState when the transition is not allowed.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongState, from, to)
	}
	return nil
}

// ParseStatus parses a persisted status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

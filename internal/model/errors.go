package model

import "errors"

// Errors shared by the queue, claim and workflow packages.
var (
	// ErrWrongState means the locally known status does not satisfy the
	// precondition of the requested transition. The caller should refresh.
	ErrWrongState = errors.New("item is not in the expected state")

	// ErrClaimLost means a conditional write affected zero rows: another
	// session got there first or the row changed underneath us.
	ErrClaimLost = errors.New("item was claimed by another session")

	// ErrStoreUnavailable wraps any failure to reach the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidReference means the destination reference is not an
	// http(s) URL.
	ErrInvalidReference = errors.New("destination reference must start with http:// or https://")

	// ErrStepLocked means a workflow step was requested before the steps
	// preceding it were performed.
	ErrStepLocked = errors.New("workflow step is not available yet")

	// ErrNotFound means the record does not exist.
	ErrNotFound = errors.New("item not found")
)

// Stale reports whether err only signals that the local queue view is out of
// date, so the caller should rebuild the queue rather than report a failure.
func Stale(err error) bool {
	return errors.Is(err, ErrWrongState) || errors.Is(err, ErrClaimLost)
}

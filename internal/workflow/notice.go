package workflow

import (
	"errors"

	"github.com/erazemk/oddaja/internal/model"
)

// Level is the severity of a notice.
type Level string

// Notice levels.
const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is the transient message shown after an action.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	// Copied holds the text a copy step produced.
	Copied string `json:"copied,omitempty"`
	// Refresh is set when the action found the queue stale and rebuilt it.
	Refresh bool `json:"refresh,omitempty"`
	// Retry is set when the store could not be reached.
	Retry bool  `json:"retry,omitempty"`
	Err   error `json:"-"`
}

// OK reports whether the action succeeded.
func (n Notice) OK() bool { return n.Err == nil }

func success(msg string) Notice {
	return Notice{Level: LevelSuccess, Message: msg}
}

// failure converts err into a notice.
func failure(action Action, err error) Notice {
	n := Notice{Err: err}
	switch {
	case model.Stale(err):
		n.Level = LevelWarning
		n.Message = "Item changed in another session, queue refreshed"
		n.Refresh = true
	case errors.Is(err, model.ErrStoreUnavailable):
		n.Level = LevelError
		n.Message = "Could not reach the item store, try again"
		n.Retry = true
	case errors.Is(err, model.ErrInvalidReference):
		n.Level = LevelWarning
		n.Message = "Enter the listing URL (http:// or https://) first"
	case errors.Is(err, model.ErrStepLocked):
		n.Level = LevelWarning
		n.Message = "Finish the previous steps first"
	case errors.Is(err, ErrNoSelection):
		n.Level = LevelInfo
		n.Message = "Select an item first"
	case errors.Is(err, model.ErrNotFound):
		n.Level = LevelWarning
		n.Message = "Item no longer exists, queue refreshed"
		n.Refresh = true
	default:
		n.Level = LevelError
		n.Message = string(action) + " failed: " + err.Error()
	}
	return n
}

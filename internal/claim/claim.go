// Package claim gives one session exclusive working rights over a queued
// item with a single conditional write against the shared item store.
package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/oddaja/internal/audit"
	"github.com/erazemk/oddaja/internal/model"
)

// Store is the conditional-write primitive the claim relies on.
type Store interface {
	ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error)
}

// Claimer claims items on behalf of one session.
type Claimer struct {
	Store     Store
	SessionID string
	Now       func() time.Time
}

// New returns a claimer for sessionID.
func New(store Store, sessionID string) *Claimer {
	return &Claimer{Store: store, SessionID: sessionID, Now: time.Now}
}

func (c *Claimer) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Claim moves item from ready to processing and appends a lock tag to its
// notes in the same write. The returned item reflects the persisted state.
//
// ErrWrongState is returned without touching the store when the item's known
// status is not ready. ErrClaimLost means the write matched no record: another
// session committed first or the status changed underneath us. Both mean the
// caller's queue is stale.
func (c *Claimer) Claim(ctx context.Context, item model.WorkItem) (model.WorkItem, error) {
	if item.Status != model.StatusReady {
		return item, fmt.Errorf("claiming %s %s: %w: status is %s", item.Kind, item.ID, model.ErrWrongState, item.Status)
	}
	if err := model.CheckTransition(item.Status, model.StatusProcessing); err != nil {
		return item, err
	}

	notes := audit.AppendTag(item.AuditNotes, audit.KindLock, c.SessionID, c.now())
	n, err := c.Store.ConditionalUpdate(ctx, item.Kind, item.ID, model.StatusReady, model.Patch{
		Status: model.Ptr(model.StatusProcessing),
		Notes:  &notes,
	})
	if err != nil {
		return item, fmt.Errorf("claiming %s %s: %w", item.Kind, item.ID, err)
	}
	if n == 0 {
		return item, fmt.Errorf("claiming %s %s: %w", item.Kind, item.ID, model.ErrClaimLost)
	}

	item.Status = model.StatusProcessing
	item.AuditNotes = notes
	return item, nil
}

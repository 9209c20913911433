package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/oddaja/internal/model"
)

// ItemStore is the backing store shared by every session working the queue.
// ConditionalUpdate is the only coordination primitive: it must apply the
// patch atomically and only when the row's status equals expected.
type ItemStore interface {
	// FetchQueueCandidates returns records of one kind whose status is in
	// statuses, oldest first.
	FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error)

	// ConditionalUpdate applies patch where id matches and status equals
	// expected, returning the number of records affected (0 or 1).
	ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error)

	// Update applies patch unconditionally. Returns model.ErrNotFound when
	// the record does not exist.
	Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error

	// Get returns one record, or model.ErrNotFound.
	Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error)

	// Insert stores a new record, assigning an id and creation time when
	// they are empty.
	Insert(ctx context.Context, rec model.Record) (model.Record, error)

	Close() error
}

// Store types accepted by Open.
const (
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeRedis     = "redis"
	TypeMongo     = "mongo"
	TypeFirestore = "firestore"
)

// unavailable marks err as a backing-store failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}

// collection maps a kind onto its table or collection name.
func collection(kind model.Kind) (string, error) {
	switch kind {
	case model.KindSingle:
		return "listings", nil
	case model.KindBundle:
		return "bundles", nil
	}
	return "", fmt.Errorf("unknown item kind %q", kind)
}

// prepareInsert validates rec and fills in defaults.
func prepareInsert(rec model.Record) (model.Record, error) {
	if _, err := collection(rec.Kind); err != nil {
		return rec, err
	}
	if rec.Kind == model.KindSingle && rec.Listing == nil {
		return rec, errors.New("listing record without listing fields")
	}
	if rec.Kind == model.KindBundle && rec.Bundle == nil {
		return rec, errors.New("bundle record without bundle fields")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = model.StatusDraft
	}
	if !rec.Status.Valid() {
		return rec, fmt.Errorf("invalid status %q", rec.Status)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// column is one assignment of a patch.
type column struct {
	name  string
	value any
}

// patchColumns flattens a patch into column assignments in a fixed order.
func patchColumns(p model.Patch) ([]column, error) {
	if p.Empty() {
		return nil, errors.New("empty patch")
	}
	var cols []column
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, fmt.Errorf("invalid status %q", *p.Status)
		}
		cols = append(cols, column{"status", string(*p.Status)})
	}
	if p.Notes != nil {
		cols = append(cols, column{"notes", *p.Notes})
	}
	if p.DestinationReference != nil {
		cols = append(cols, column{"destination_reference", *p.DestinationReference})
	}
	if p.PublishedAt != nil {
		cols = append(cols, column{"published_at", p.PublishedAt.UTC()})
	}
	return cols, nil
}

// setClause renders "a = ?, b = ?" with placeholders from ph.
func setClause(cols []column, ph func(i int) string) (string, []any) {
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = c.name + " = " + ph(i+1)
		args[i] = c.value
	}
	return strings.Join(parts, ", "), args
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

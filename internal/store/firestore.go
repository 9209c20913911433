package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/erazemk/oddaja/internal/model"
)

// Firestore keeps listings and bundles in two top-level collections.
// Conditional updates run inside a transaction so the status read and the
// write commit together.
type Firestore struct {
	client *firestore.Client
}

// OpenFirestore creates a client for projectID using ambient credentials.
func OpenFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, unavailable("firestore client", err)
	}
	return &Firestore{client: client}, nil
}

func (s *Firestore) coll(kind model.Kind) (*firestore.CollectionRef, error) {
	name, err := collection(kind)
	if err != nil {
		return nil, err
	}
	return s.client.Collection(name), nil
}

func firestoreUpdates(p model.Patch) ([]firestore.Update, error) {
	cols, err := patchColumns(p)
	if err != nil {
		return nil, err
	}
	updates := make([]firestore.Update, len(cols))
	for i, c := range cols {
		updates[i] = firestore.Update{Path: c.name, Value: c.value}
	}
	return updates, nil
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func decodeSnapshot(kind model.Kind, doc *firestore.DocumentSnapshot) (model.Record, error) {
	var d document
	if err := doc.DataTo(&d); err != nil {
		return model.Record{}, fmt.Errorf("decoding %s %s: %w", kind, doc.Ref.ID, err)
	}
	d.ID = doc.Ref.ID
	return d.record(kind), nil
}

// FetchQueueCandidates returns records with a status in statuses, oldest first.
func (s *Firestore) FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error) {
	c, err := s.coll(kind)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}

	iter := c.Where("status", "in", statusStrings(statuses)).
		OrderBy("created_at", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []model.Record
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, unavailable("listing "+c.ID, err)
		}
		rec, err := decodeSnapshot(kind, doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ConditionalUpdate applies patch only while the document still has the expected status.
func (s *Firestore) ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error) {
	c, err := s.coll(kind)
	if err != nil {
		return 0, err
	}
	updates, err := firestoreUpdates(patch)
	if err != nil {
		return 0, err
	}

	ref := c.Doc(id)
	var applied int64
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = 0
		doc, err := tx.Get(ref)
		if notFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := doc.DataAt("status")
		if err != nil || current != string(expected) {
			return nil
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		applied = 1
		return nil
	})
	if err != nil {
		return 0, unavailable("updating "+c.ID, err)
	}
	return applied, nil
}

// Update applies patch regardless of the document's status.
func (s *Firestore) Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error {
	c, err := s.coll(kind)
	if err != nil {
		return err
	}
	updates, err := firestoreUpdates(patch)
	if err != nil {
		return err
	}

	_, err = c.Doc(id).Update(ctx, updates)
	if notFound(err) {
		return model.ErrNotFound
	}
	if err != nil {
		return unavailable("updating "+c.ID, err)
	}
	return nil
}

// Get returns a record by kind and id.
func (s *Firestore) Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error) {
	c, err := s.coll(kind)
	if err != nil {
		return nil, err
	}
	doc, err := c.Doc(id).Get(ctx)
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("getting "+c.ID, err)
	}
	rec, err := decodeSnapshot(kind, doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert stores a new listing or bundle. It fails if the id is taken.
func (s *Firestore) Insert(ctx context.Context, rec model.Record) (model.Record, error) {
	rec, err := prepareInsert(rec)
	if err != nil {
		return rec, err
	}
	c, _ := s.coll(rec.Kind)
	if _, err := c.Doc(rec.ID).Create(ctx, toDocument(rec)); err != nil {
		return rec, unavailable("inserting "+c.ID, err)
	}
	return rec, nil
}

// Close closes the client.
func (s *Firestore) Close() error {
	return s.client.Close()
}

// Package queue builds the ordered work queue from listings and bundles.
package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/normalize"
)

// Source is the part of the item store the builder reads from.
type Source interface {
	FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error)
}

// Builder fetches both kinds and merges them oldest first.
type Builder struct {
	Source Source
	Logger *slog.Logger
}

// NewBuilder returns a builder reading from src.
func NewBuilder(src Source, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{Source: src, Logger: logger}
}

type fetchResult struct {
	kind    model.Kind
	records []model.Record
	err     error
}

// Build returns a fresh snapshot. It never fails: a kind whose fetch fails is
// logged and left out, and when every fetch fails the snapshot is empty and
// Retry reports true.
func (b *Builder) Build(ctx context.Context) Snapshot {
	results := make([]fetchResult, len(model.Kinds))

	var wg sync.WaitGroup
	for i, kind := range model.Kinds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := b.Source.FetchQueueCandidates(ctx, kind, model.QueueStatuses)
			results[i] = fetchResult{kind: kind, records: records, err: err}
		}()
	}
	wg.Wait()

	snap := Snapshot{builtAt: time.Now()}
	for _, r := range results {
		if r.err != nil {
			b.Logger.Error("fetching queue candidates", "kind", r.kind, "error", r.err)
			snap.failed = append(snap.failed, r.kind)
			continue
		}
		for _, rec := range r.records {
			item, err := normalize.Item(rec)
			if err != nil {
				b.Logger.Warn("skipping malformed record", "kind", r.kind, "item", rec.ID, "error", err)
				continue
			}
			if !item.Status.Queued() {
				continue
			}
			snap.items = append(snap.items, item)
		}
	}

	sort.SliceStable(snap.items, func(i, j int) bool {
		return snap.items[i].CreatedAt.Before(snap.items[j].CreatedAt)
	})
	return snap
}

// Snapshot is an immutable view of the queue as of one build.
type Snapshot struct {
	items   []model.WorkItem
	failed  []model.Kind
	builtAt time.Time
}

// NewSnapshot builds a snapshot from already normalized items, sorted oldest
// first.
func NewSnapshot(items []model.WorkItem) Snapshot {
	s := Snapshot{items: append([]model.WorkItem(nil), items...), builtAt: time.Now()}
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].CreatedAt.Before(s.items[j].CreatedAt)
	})
	return s
}

// Len returns the number of queued items.
func (s Snapshot) Len() int { return len(s.items) }

// Items returns a copy of the queued items.
func (s Snapshot) Items() []model.WorkItem {
	return append([]model.WorkItem{}, s.items...)
}

// At returns the i-th item.
func (s Snapshot) At(i int) (model.WorkItem, bool) {
	if i < 0 || i >= len(s.items) {
		return model.WorkItem{}, false
	}
	return s.items[i], true
}

// Index returns the position of the item with the given kind and id.
func (s Snapshot) Index(kind model.Kind, id string) (int, bool) {
	for i, it := range s.items {
		if it.Kind == kind && it.ID == id {
			return i, true
		}
	}
	return -1, false
}

// NextReady returns the oldest item still in ready status.
func (s Snapshot) NextReady() (model.WorkItem, bool) {
	for _, it := range s.items {
		if it.Status == model.StatusReady {
			return it, true
		}
	}
	return model.WorkItem{}, false
}

// Failed lists the kinds whose fetch failed.
func (s Snapshot) Failed() []model.Kind {
	return append([]model.Kind(nil), s.failed...)
}

// Partial reports whether at least one kind is missing from the snapshot.
func (s Snapshot) Partial() bool { return len(s.failed) > 0 }

// Retry reports whether every fetch failed, so the empty snapshot says
// nothing about the real queue.
func (s Snapshot) Retry() bool { return len(s.failed) == len(model.Kinds) }

// BuiltAt returns when the snapshot was built.
func (s Snapshot) BuiltAt() time.Time { return s.builtAt }

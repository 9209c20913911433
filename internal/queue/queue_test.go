package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/oddaja/internal/model"
)

type fakeSource struct {
	records map[model.Kind][]model.Record
	errs    map[model.Kind]error
}

func (f *fakeSource) FetchQueueCandidates(_ context.Context, kind model.Kind, _ []model.Status) ([]model.Record, error) {
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return f.records[kind], nil
}

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func single(id string, status model.Status, offset time.Duration) model.Record {
	return model.Record{
		Kind:      model.KindSingle,
		ID:        id,
		Listing:   &model.ListingFields{Title: id, Price: decimal.NewFromInt(10)},
		Status:    status,
		CreatedAt: t0.Add(offset),
	}
}

func bundle(id string, status model.Status, offset time.Duration) model.Record {
	return model.Record{
		Kind:      model.KindBundle,
		ID:        id,
		Bundle:    &model.BundleFields{Name: id, TotalPrice: decimal.NewFromInt(30)},
		Status:    status,
		CreatedAt: t0.Add(offset),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(s Snapshot) []string {
	var out []string
	for _, it := range s.Items() {
		out = append(out, it.ID)
	}
	return out
}

func TestBuildInterleavesKindsByCreation(t *testing.T) {
	src := &fakeSource{records: map[model.Kind][]model.Record{
		model.KindSingle: {
			single("s1", model.StatusReady, 0),
			single("s2", model.StatusProcessing, 3*time.Minute),
		},
		model.KindBundle: {
			bundle("b1", model.StatusReady, time.Minute),
			bundle("b2", model.StatusReady, 5*time.Minute),
		},
	}}

	snap := NewBuilder(src, quietLogger()).Build(context.Background())

	want := []string{"s1", "b1", "s2", "b2"}
	got := ids(snap)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if snap.Partial() || snap.Retry() {
		t.Error("expected a complete snapshot")
	}
}

func TestBuildIsStableForEqualTimestamps(t *testing.T) {
	src := &fakeSource{records: map[model.Kind][]model.Record{
		model.KindSingle: {single("s1", model.StatusReady, 0)},
		model.KindBundle: {bundle("b1", model.StatusReady, 0)},
	}}

	got := ids(NewBuilder(src, quietLogger()).Build(context.Background()))
	if len(got) != 2 || got[0] != "s1" || got[1] != "b1" {
		t.Errorf("expected singles before bundles on ties, got %v", got)
	}
}

func TestBuildDropsNonQueuedStatuses(t *testing.T) {
	src := &fakeSource{records: map[model.Kind][]model.Record{
		model.KindSingle: {
			single("s1", model.StatusReady, 0),
			single("sold", model.StatusSold, time.Second),
		},
	}}

	got := ids(NewBuilder(src, quietLogger()).Build(context.Background()))
	if len(got) != 1 || got[0] != "s1" {
		t.Errorf("expected [s1], got %v", got)
	}
}

func TestBuildPartialFailureKeepsOtherKind(t *testing.T) {
	src := &fakeSource{
		records: map[model.Kind][]model.Record{
			model.KindSingle: {single("s1", model.StatusReady, 0)},
		},
		errs: map[model.Kind]error{model.KindBundle: errors.New("connection refused")},
	}

	snap := NewBuilder(src, quietLogger()).Build(context.Background())
	if snap.Len() != 1 {
		t.Fatalf("expected the listing to survive, got %v", ids(snap))
	}
	if !snap.Partial() || snap.Retry() {
		t.Errorf("expected partial, not retry: partial=%v retry=%v", snap.Partial(), snap.Retry())
	}
	if f := snap.Failed(); len(f) != 1 || f[0] != model.KindBundle {
		t.Errorf("expected bundle to be reported failed, got %v", f)
	}
}

func TestBuildTotalFailureAsksForRetry(t *testing.T) {
	src := &fakeSource{errs: map[model.Kind]error{
		model.KindSingle: errors.New("down"),
		model.KindBundle: errors.New("down"),
	}}

	snap := NewBuilder(src, quietLogger()).Build(context.Background())
	if snap.Len() != 0 || !snap.Retry() {
		t.Errorf("expected empty snapshot with retry, got len=%d retry=%v", snap.Len(), snap.Retry())
	}
}

func TestSnapshotItemsIsACopy(t *testing.T) {
	snap := NewSnapshot([]model.WorkItem{{ID: "a", CreatedAt: t0}})
	items := snap.Items()
	items[0].ID = "changed"

	if it, _ := snap.At(0); it.ID != "a" {
		t.Errorf("snapshot was mutated through Items: %q", it.ID)
	}
}

func TestNextReadySkipsProcessing(t *testing.T) {
	snap := NewSnapshot([]model.WorkItem{
		{ID: "p", Status: model.StatusProcessing, CreatedAt: t0},
		{ID: "r", Status: model.StatusReady, CreatedAt: t0.Add(time.Second)},
	})
	it, ok := snap.NextReady()
	if !ok || it.ID != "r" {
		t.Errorf("expected r, got %+v ok=%v", it, ok)
	}
}

func TestSelectionClamp(t *testing.T) {
	tests := []struct {
		index, n, want int
	}{
		{0, 0, -1},
		{3, 0, -1},
		{-1, 2, 0},
		{1, 2, 1},
		{5, 2, 1},
	}
	for _, tt := range tests {
		if got := (Selection{Index: tt.index}).Clamp(tt.n); got.Index != tt.want {
			t.Errorf("Clamp(%d, n=%d) = %d, want %d", tt.index, tt.n, got.Index, tt.want)
		}
	}
}

func TestSelectionRefreshFollowsItem(t *testing.T) {
	prev := NewSnapshot([]model.WorkItem{
		{ID: "a", Kind: model.KindSingle, CreatedAt: t0},
		{ID: "b", Kind: model.KindSingle, CreatedAt: t0.Add(time.Second)},
		{ID: "c", Kind: model.KindSingle, CreatedAt: t0.Add(2 * time.Second)},
	})
	// "a" left the queue; "c" moves to index 1.
	next := NewSnapshot([]model.WorkItem{
		{ID: "b", Kind: model.KindSingle, CreatedAt: t0.Add(time.Second)},
		{ID: "c", Kind: model.KindSingle, CreatedAt: t0.Add(2 * time.Second)},
	})

	sel := Selection{Index: 2}.Refresh(prev, next)
	if it, _ := sel.Item(next); it.ID != "c" {
		t.Errorf("expected selection to follow c, got index %d", sel.Index)
	}

	gone := NewSnapshot([]model.WorkItem{{ID: "b", Kind: model.KindSingle, CreatedAt: t0}})
	sel = Selection{Index: 2}.Refresh(prev, gone)
	if sel.Index != 0 {
		t.Errorf("expected clamped index 0, got %d", sel.Index)
	}
}

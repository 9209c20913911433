package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/oddaja/internal/audit"
	"github.com/erazemk/oddaja/internal/db"
	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/store"
	"github.com/erazemk/oddaja/internal/workflow"
)

func seed(t *testing.T, s store.ItemStore, title string, created time.Time) model.Record {
	t.Helper()
	rec, err := s.Insert(context.Background(), model.Record{
		Kind: model.KindSingle,
		Listing: &model.ListingFields{
			Title:       title,
			Description: "Wool, size M",
			Price:       decimal.RequireFromString("19.9"),
			Photos:      []byte(`["https://cdn.example/1.jpg"]`),
		},
		Status:    model.StatusReady,
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func runTerminal(t *testing.T, s store.ItemStore, input string) string {
	t.Helper()
	var out bytes.Buffer
	ctrl := workflow.NewController(workflow.Config{
		Store:     s,
		SessionID: "agent-test",
		Output:    textOutput{w: &out},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	term, err := newTerminal(ctrl, strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("newTerminal: %v", err)
	}
	if err := term.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func status(t *testing.T, s store.ItemStore, rec model.Record) model.Status {
	t.Helper()
	got, err := s.Get(context.Background(), rec.Kind, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return got.Status
}

func TestTerminalPublishesAndClaimsNext(t *testing.T) {
	s := store.NewSQLite(db.NewTestDB(t))
	t0 := time.Now().Add(-time.Hour)
	first := seed(t, s, "Wool sweater", t0)
	second := seed(t, s, "Scarf", t0.Add(time.Minute))

	out := runTerminal(t, s, "t\nd\np\nm\nr\nhttps://marketplace.example/1\nu\nq\n")

	if got := status(t, s, first); got != model.StatusPublished {
		t.Errorf("first item: expected published, got %s", got)
	}
	if got := status(t, s, second); got != model.StatusProcessing {
		t.Errorf("second item: expected to be claimed, got %s", got)
	}
	if !strings.Contains(out, "--- copy-title ---\nWool sweater\n") {
		t.Errorf("title not printed:\n%s", out)
	}
	if !strings.Contains(out, "--- copy-price ---\n19.90\n") {
		t.Errorf("price not printed:\n%s", out)
	}
}

func TestTerminalPromptSwallowsKeys(t *testing.T) {
	s := store.NewSQLite(db.NewTestDB(t))
	seed(t, s, "Boots", time.Now().Add(-time.Hour))

	// "q" answers the reference prompt and must not quit.
	out := runTerminal(t, s, "r\nq\nt\n")

	if !strings.Contains(out, "--- copy-title ---\nBoots\n") {
		t.Errorf("agent quit while the prompt was active:\n%s", out)
	}
	if !strings.Contains(out, "Finish the previous steps first") {
		t.Errorf("expected the early reference to be rejected:\n%s", out)
	}
}

func TestTerminalEmptyQueue(t *testing.T) {
	s := store.NewSQLite(db.NewTestDB(t))
	out := runTerminal(t, s, "c\nz\nq\n")

	if !strings.Contains(out, "Nothing ready to claim") {
		t.Errorf("expected empty-queue notice:\n%s", out)
	}
	if !strings.Contains(out, `unknown key 'z'`) {
		t.Errorf("expected unknown key message:\n%s", out)
	}
}

// rivalStore lets another session claim an item right before the agent's
// first claim lands.
type rivalStore struct {
	store.ItemStore
	raced bool
}

func (s *rivalStore) ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, p model.Patch) (int64, error) {
	if !s.raced {
		s.raced = true
		notes := audit.AppendTag("", audit.KindLock, "rival", time.Now())
		if _, err := s.ItemStore.ConditionalUpdate(ctx, kind, id, model.StatusReady, model.Patch{
			Status: model.Ptr(model.StatusProcessing),
			Notes:  &notes,
		}); err != nil {
			return 0, err
		}
	}
	return s.ItemStore.ConditionalUpdate(ctx, kind, id, expected, p)
}

func TestTerminalLostClaimMovesOn(t *testing.T) {
	s := store.NewSQLite(db.NewTestDB(t))
	t0 := time.Now().Add(-time.Hour)
	first := seed(t, s, "Wool sweater", t0)
	second := seed(t, s, "Scarf", t0.Add(time.Minute))

	out := runTerminal(t, &rivalStore{ItemStore: s}, "t
q
")

	got, err := s.Get(context.Background(), first.Kind, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if owner, _ := audit.LastClaim(got.Notes); owner != "rival" {
		t.Errorf("first item: expected rival's claim, got %q", owner)
	}
	if strings.Contains(out, "--- copy-title ---\nWool sweater\n") {
		t.Errorf("agent copied the item it lost:\n%s", out)
	}
	if got := status(t, s, second); got != model.StatusProcessing {
		t.Errorf("second item: expected to be claimed, got %s", got)
	}
	if !strings.Contains(out, "--- copy-title ---\nScarf\n") {
		t.Errorf("second item title not printed:\n%s", out)
	}
}

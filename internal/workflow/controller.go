package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/oddaja/internal/audit"
	"github.com/erazemk/oddaja/internal/claim"
	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/normalize"
	"github.com/erazemk/oddaja/internal/queue"
)

// ErrNoSelection means an item action was triggered with nothing selected.
var ErrNoSelection = errors.New("no item selected")

// Store is the item store as used by the controller.
type Store interface {
	queue.Source
	claim.Store
	Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error)
	Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error
}

// Output receives what the copy steps produce.
type Output interface {
	// CopyText hands one text field to the operator.
	CopyText(ctx context.Context, step model.Step, text string) error
	// CopyMedia makes the item's photos available and returns a summary.
	CopyMedia(ctx context.Context, item model.WorkItem) (string, error)
}

// Controller is the action boundary for one session: it owns the queue
// snapshot, the selection and the workflow of the selected item, performs
// the store writes and turns every outcome into a Notice.
type Controller struct {
	mu sync.Mutex

	store   Store
	builder *queue.Builder
	claimer *claim.Claimer
	output  Output
	logger  *slog.Logger
	session string
	now     func() time.Time

	snap    queue.Snapshot
	sel     queue.Selection
	machine *Machine
	keys    *Keymap
}

// Config wires a controller.
type Config struct {
	Store     Store
	SessionID string
	Output    Output
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewController returns a controller with an empty queue. Call Refresh to
// load it.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cl := claim.New(cfg.Store, cfg.SessionID)
	cl.Now = now
	out := cfg.Output
	if out == nil {
		out = Discard{}
	}

	return &Controller{
		store:   cfg.Store,
		builder: queue.NewBuilder(cfg.Store, logger),
		claimer: cl,
		output:  out,
		logger:  logger.With("session", cfg.SessionID),
		session: cfg.SessionID,
		now:     now,
		sel:     queue.Selection{Index: -1},
	}
}

// SessionID returns the session the controller acts for.
func (c *Controller) SessionID() string { return c.session }

// State is a read-only view of the controller.
type State struct {
	Queue     queue.Snapshot
	Selected  int
	Item      *model.WorkItem
	Step      model.Step
	Reference string
	Enabled   []Action
	// ClaimedBy is the session of the item's latest lock tag.
	ClaimedBy string
}

// State returns the current queue, selection and workflow position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Queue: c.snap, Selected: c.sel.Index}
	if c.machine != nil {
		it := c.machine.Item()
		st.Item = &it
		st.Step = c.machine.Step()
		st.Reference = c.machine.Reference()
		st.Enabled = c.machine.Enabled()
		st.ClaimedBy, _ = audit.LastClaim(it.AuditNotes)
	}
	return st
}

// Refresh rebuilds the queue and revalidates the selection against it.
func (c *Controller) Refresh(ctx context.Context) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) Notice {
	next := c.builder.Build(ctx)
	if next.Retry() {
		// Keep the stale queue so the operator can retry in place.
		return Notice{Level: LevelError, Message: "Could not load the queue, try again", Retry: true,
			Err: fmt.Errorf("building queue: %w", model.ErrStoreUnavailable)}
	}

	prev := c.snap
	c.snap = next
	c.sel = c.sel.Refresh(prev, next)
	c.reopen()

	n := Notice{Level: LevelInfo, Message: fmt.Sprintf("%d items in queue", next.Len())}
	if next.Partial() {
		n.Level = LevelWarning
		n.Message += fmt.Sprintf(" (failed to load %v)", next.Failed())
	}
	return n
}

// reopen points the machine at the selected item, keeping the current
// machine when the same item is still selected so its cursor survives.
func (c *Controller) reopen() {
	it, ok := c.sel.Item(c.snap)
	if !ok {
		c.machine = nil
		return
	}
	if c.machine != nil {
		cur := c.machine.Item()
		// The machine has seen every write this session made, so it is only
		// behind the snapshot when another session claimed the item.
		lost := cur.Status == model.StatusReady && it.Status != model.StatusReady
		if cur.Kind == it.Kind && cur.ID == it.ID && !lost {
			return
		}
	}
	m, err := NewMachine(it, c.session)
	if err != nil {
		c.logger.Warn("opening workflow", "kind", it.Kind, "item", it.ID, "error", err)
		c.machine = nil
		return
	}
	c.machine = m
}

// Select moves the selection to index i of the current snapshot.
func (c *Controller) Select(i int) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sel = queue.Selection{Index: i}.Clamp(c.snap.Len())
	c.reopen()
	if c.machine == nil {
		return Notice{Level: LevelInfo, Message: "Queue is empty"}
	}
	it := c.machine.Item()
	return Notice{Level: LevelInfo, Message: "Selected " + it.Title}
}

// Open selects the item with the given kind and id, refreshing first when it
// is not in the current snapshot. A draft this session saved has left the
// queue and is read from the store instead.
func (c *Controller) Open(ctx context.Context, kind model.Kind, id string) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m := c.machine; m != nil && !m.Done() {
		if it := m.Item(); it.Kind == kind && it.ID == id {
			return Notice{Level: LevelInfo, Message: "Opened " + it.Title}
		}
	}

	i, ok := c.snap.Index(kind, id)
	if !ok {
		if n := c.refresh(ctx); n.Retry {
			return n
		}
		i, ok = c.snap.Index(kind, id)
	}
	if !ok {
		m, err := c.openDraft(ctx, kind, id)
		if err != nil {
			return failure(ActionRefresh, fmt.Errorf("opening %s %s: %w", kind, id, err))
		}
		c.machine = m
		return Notice{Level: LevelInfo, Message: "Opened " + m.Item().Title}
	}
	c.sel = queue.Selection{Index: i}
	c.reopen()
	return Notice{Level: LevelInfo, Message: "Opened " + c.snap.Items()[i].Title}
}

func (c *Controller) openDraft(ctx context.Context, kind model.Kind, id string) (*Machine, error) {
	rec, err := c.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	it, err := normalize.Item(*rec)
	if err != nil {
		return nil, err
	}
	if it.Status != model.StatusVintedDraft {
		return nil, fmt.Errorf("%w: status is %s", model.ErrNotFound, it.Status)
	}
	m, err := NewMachine(it, c.session)
	if err != nil {
		return nil, err
	}
	if m.ReadOnly() {
		return nil, fmt.Errorf("%w: draft belongs to another session", model.ErrNotFound)
	}
	return m, nil
}

// Next selects the item after the current one, wrapping around.
func (c *Controller) Next() Notice {
	c.mu.Lock()
	n := c.snap.Len()
	i := c.sel.Index + 1
	c.mu.Unlock()
	if n > 0 {
		i %= n
	}
	return c.Select(i)
}

// fail logs err, rebuilds the queue when err says it is stale and returns
// the notice for it.
func (c *Controller) fail(ctx context.Context, action Action, err error) Notice {
	n := failure(action, err)
	attrs := []any{"action", action, "error", err}
	if c.machine != nil {
		it := c.machine.Item()
		attrs = append(attrs, "kind", it.Kind, "item", it.ID)
	}
	if n.Level == LevelError {
		c.logger.Error("workflow action failed", attrs...)
	} else {
		c.logger.Info("workflow action rejected", attrs...)
	}
	if n.Refresh {
		c.refresh(ctx)
	}
	return n
}

func (c *Controller) current(ctx context.Context, action Action) (*Machine, *Notice) {
	if c.machine == nil {
		n := c.fail(ctx, action, ErrNoSelection)
		return nil, &n
	}
	return c.machine, nil
}

// Claim takes the selected item for this session.
func (c *Controller) Claim(ctx context.Context) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, n := c.current(ctx, ActionClaim)
	if n != nil {
		return *n
	}
	claimed, err := c.claimer.Claim(ctx, m.Item())
	if err != nil {
		return c.fail(ctx, ActionClaim, err)
	}
	m.Claimed(claimed)
	c.logger.Info("claimed item", "kind", claimed.Kind, "item", claimed.ID)
	return success("Claimed " + claimed.Title)
}

// Copy performs one of the copy steps.
func (c *Controller) Copy(ctx context.Context, action Action) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	step, ok := CopyStep(action)
	if !ok {
		return c.fail(ctx, action, fmt.Errorf("%s is not a copy action", action))
	}
	m, n := c.current(ctx, action)
	if n != nil {
		return *n
	}
	if err := m.CanPerform(step); err != nil {
		return c.fail(ctx, action, err)
	}

	it := m.Item()
	var text string
	switch step {
	case model.StepCopyTitle:
		text = it.Title
	case model.StepCopyDescription:
		text = it.Description
	case model.StepCopyPrice:
		text = it.Price.StringFixed(2)
	}

	if step == model.StepCopyMedia {
		summary, err := c.output.CopyMedia(ctx, it)
		if err != nil {
			return c.fail(ctx, action, err)
		}
		text = summary
	} else if err := c.output.CopyText(ctx, step, text); err != nil {
		return c.fail(ctx, action, err)
	}

	if err := m.Perform(step); err != nil {
		return c.fail(ctx, action, err)
	}
	n2 := success(fmt.Sprintf("Copied %s", step))
	n2.Copied = text
	return n2
}

// SetReference saves the destination reference with an unconditional write.
func (c *Controller) SetReference(ctx context.Context, ref string) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, n := c.current(ctx, ActionReference)
	if n != nil {
		return *n
	}
	if err := m.CanSetReference(); err != nil {
		return c.fail(ctx, ActionReference, err)
	}
	it := m.Item()
	if err := c.store.Update(ctx, it.Kind, it.ID, model.Patch{DestinationReference: &ref}); err != nil {
		return c.fail(ctx, ActionReference, err)
	}
	if err := m.SetReference(ref); err != nil {
		return c.fail(ctx, ActionReference, err)
	}
	if !model.ValidReference(ref) {
		return Notice{Level: LevelWarning, Message: "Reference saved, but it is not an http(s) URL"}
	}
	return success("Reference saved")
}

// MarkDraft records that the listing was saved as a draft on the
// marketplace. The cursor stays where it is so the operator can still
// publish.
func (c *Controller) MarkDraft(ctx context.Context) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, n := c.current(ctx, ActionDraft)
	if n != nil {
		return *n
	}
	if err := m.CanDraft(); err != nil {
		return c.fail(ctx, ActionDraft, err)
	}

	it := m.Item()
	ref := m.Reference()
	affected, err := c.store.ConditionalUpdate(ctx, it.Kind, it.ID, it.Status, model.Patch{
		Status:               model.Ptr(model.StatusVintedDraft),
		DestinationReference: &ref,
	})
	if err != nil {
		return c.fail(ctx, ActionDraft, err)
	}
	if affected == 0 {
		return c.fail(ctx, ActionDraft, fmt.Errorf("saving draft of %s %s: %w", it.Kind, it.ID, model.ErrClaimLost))
	}

	it.Status = model.StatusVintedDraft
	it.DestinationReference = &ref
	m.Apply(it)
	c.logger.Info("saved as marketplace draft", "kind", it.Kind, "item", it.ID)
	return success("Saved as draft")
}

// MarkPublished finalizes the item, appends the done tag and moves on to
// the next queued item.
func (c *Controller) MarkPublished(ctx context.Context) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, n := c.current(ctx, ActionPublish)
	if n != nil {
		return *n
	}
	if err := m.CanPublish(); err != nil {
		return c.fail(ctx, ActionPublish, err)
	}

	it := m.Item()
	ref := m.Reference()
	now := c.now().UTC()
	notes := audit.AppendTag(it.AuditNotes, audit.KindDone, c.session, now)
	affected, err := c.store.ConditionalUpdate(ctx, it.Kind, it.ID, it.Status, model.Patch{
		Status:               model.Ptr(model.StatusPublished),
		Notes:                &notes,
		DestinationReference: &ref,
		PublishedAt:          &now,
	})
	if err != nil {
		return c.fail(ctx, ActionPublish, err)
	}
	if affected == 0 {
		return c.fail(ctx, ActionPublish, fmt.Errorf("publishing %s %s: %w", it.Kind, it.ID, model.ErrClaimLost))
	}

	it.Status = model.StatusPublished
	it.AuditNotes = notes
	it.DestinationReference = &ref
	it.PublishedAt = &now
	m.Apply(it)
	c.logger.Info("published item", "kind", it.Kind, "item", it.ID, "reference", ref)

	c.refresh(ctx)
	return success("Published " + it.Title)
}

// MarkError takes the item out of the workflow with status error. The notes
// are left as they are. The write only applies while the item still has the
// status this session last saw.
func (c *Controller) MarkError(ctx context.Context) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, n := c.current(ctx, ActionError)
	if n != nil {
		return *n
	}
	if err := m.CanMarkError(); err != nil {
		return c.fail(ctx, ActionError, err)
	}

	it := m.Item()
	affected, err := c.store.ConditionalUpdate(ctx, it.Kind, it.ID, it.Status, model.Patch{Status: model.Ptr(model.StatusError)})
	if err != nil {
		return c.fail(ctx, ActionError, err)
	}
	if affected == 0 {
		return c.fail(ctx, ActionError, fmt.Errorf("marking %s %s as error: %w", it.Kind, it.ID, model.ErrClaimLost))
	}
	it.Status = model.StatusError
	m.Apply(it)
	c.logger.Warn("marked item as error", "kind", it.Kind, "item", it.ID)

	c.refresh(ctx)
	return Notice{Level: LevelInfo, Message: "Marked " + it.Title + " as error"}
}

// Do runs an action by name. arg is the reference for ActionReference.
func (c *Controller) Do(ctx context.Context, action Action, arg string) Notice {
	switch action {
	case ActionClaim:
		return c.Claim(ctx)
	case ActionCopyTitle, ActionCopyDescription, ActionCopyPrice, ActionCopyMedia:
		return c.Copy(ctx, action)
	case ActionReference:
		return c.SetReference(ctx, arg)
	case ActionDraft:
		return c.MarkDraft(ctx)
	case ActionPublish:
		return c.MarkPublished(ctx)
	case ActionError:
		return c.MarkError(ctx)
	case ActionNext:
		return c.Next()
	case ActionRefresh:
		return c.Refresh(ctx)
	}
	return Notice{Level: LevelError, Message: "Unknown action " + string(action),
		Err: fmt.Errorf("unknown action %q", action)}
}

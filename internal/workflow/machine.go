// Package workflow walks an operator through the seven-step hand-off of one
// claimed item and gates the finishing writes on a valid destination
// reference.
package workflow

import (
	"fmt"

	"github.com/erazemk/oddaja/internal/audit"
	"github.com/erazemk/oddaja/internal/model"
)

// Action is something the operator can trigger on the current item.
type Action string

// Actions.
const (
	ActionClaim           Action = "claim"
	ActionCopyTitle       Action = "copy-title"
	ActionCopyDescription Action = "copy-description"
	ActionCopyPrice       Action = "copy-price"
	ActionCopyMedia       Action = "copy-media"
	ActionReference       Action = "reference"
	ActionDraft           Action = "draft"
	ActionPublish         Action = "publish"
	ActionError           Action = "error"
	ActionNext            Action = "next"
	ActionRefresh         Action = "refresh"
)

var copySteps = map[Action]model.Step{
	ActionCopyTitle:       model.StepCopyTitle,
	ActionCopyDescription: model.StepCopyDescription,
	ActionCopyPrice:       model.StepCopyPrice,
	ActionCopyMedia:       model.StepCopyMedia,
}

// CopyStep returns the soft step a copy action performs.
func CopyStep(a Action) (model.Step, bool) {
	s, ok := copySteps[a]
	return s, ok
}

// Machine is the step cursor for one item. It does no I/O; the controller
// persists the writes and reports them back through Apply.
type Machine struct {
	item      model.WorkItem
	cursor    model.Step
	reference string

	// owner is set when another session holds the claim. Such a machine
	// only shows the item.
	owner    string
	readOnly bool
}

// NewMachine opens the workflow of item for session. A ready item starts at
// the claim step. A processing item claimed by session resumes at the first
// copy step and a drafted one at finalize. An item whose latest lock tag
// names another session opens read-only.
func NewMachine(item model.WorkItem, session string) (*Machine, error) {
	m := &Machine{item: item, reference: item.Reference()}
	switch item.Status {
	case model.StatusReady:
		m.cursor = model.StepStartRun
		return m, nil
	case model.StatusProcessing:
		m.cursor = model.StepCopyTitle
	case model.StatusVintedDraft:
		m.cursor = model.StepFinalize
	default:
		return nil, fmt.Errorf("opening workflow for %s %s: %w: status is %s", item.Kind, item.ID, model.ErrWrongState, item.Status)
	}
	if owner, ok := audit.LastClaim(item.AuditNotes); !ok || owner != session {
		m.owner = owner
		m.readOnly = true
	}
	return m, nil
}

// Item returns the item as last known to the machine.
func (m *Machine) Item() model.WorkItem { return m.item }

// Step returns the cursor, 1 through 7.
func (m *Machine) Step() model.Step { return m.cursor }

// Reference returns the destination reference as typed.
func (m *Machine) Reference() string { return m.reference }

// Done reports whether the item has left the workflow.
func (m *Machine) Done() bool {
	return m.item.Status == model.StatusPublished || m.item.Status == model.StatusError
}

// ReadOnly reports whether the item is claimed by another session.
func (m *Machine) ReadOnly() bool { return m.readOnly }

func (m *Machine) active() error {
	if m.Done() {
		return fmt.Errorf("%w: item is %s", model.ErrWrongState, m.item.Status)
	}
	if m.readOnly {
		owner := m.owner
		if owner == "" {
			owner = "unknown"
		}
		return fmt.Errorf("%w: %s %s is claimed by session %s", model.ErrWrongState, m.item.Kind, m.item.ID, owner)
	}
	return nil
}

// Claimed records a successful claim and moves to the first copy step.
func (m *Machine) Claimed(item model.WorkItem) {
	m.item = item
	if m.cursor < model.StepCopyTitle {
		m.cursor = model.StepCopyTitle
	}
}

// CanPerform reports whether a soft step is reachable now.
func (m *Machine) CanPerform(step model.Step) error {
	if !step.Soft() {
		return fmt.Errorf("step %s is not a copy step", step)
	}
	if err := m.active(); err != nil {
		return err
	}
	if m.cursor == model.StepStartRun || step > m.cursor {
		return fmt.Errorf("%w: %s before %s", model.ErrStepLocked, step, m.cursor)
	}
	return nil
}

// Perform marks a soft step as done. Performing the step under the cursor
// advances it; repeating an earlier step leaves it where it is.
func (m *Machine) Perform(step model.Step) error {
	if err := m.CanPerform(step); err != nil {
		return err
	}
	if step == m.cursor {
		m.cursor++
	}
	return nil
}

// CanSetReference reports whether the reference field is reachable.
func (m *Machine) CanSetReference() error {
	if err := m.active(); err != nil {
		return err
	}
	if m.cursor < model.StepRecordReference {
		return fmt.Errorf("%w: reference before %s", model.ErrStepLocked, m.cursor)
	}
	return nil
}

// SetReference stores the typed reference. A valid reference on step 6 moves
// the cursor to finalize; an invalid one keeps finalize disabled without
// moving the cursor back.
func (m *Machine) SetReference(ref string) error {
	if err := m.CanSetReference(); err != nil {
		return err
	}
	m.reference = ref
	m.item.DestinationReference = &ref
	if m.cursor == model.StepRecordReference && model.ValidReference(ref) {
		m.cursor = model.StepFinalize
	}
	return nil
}

// CanDraft reports whether the item may be saved as a marketplace draft.
func (m *Machine) CanDraft() error {
	if err := m.active(); err != nil {
		return err
	}
	if err := model.CheckTransition(m.item.Status, model.StatusVintedDraft); err != nil {
		return err
	}
	if !model.ValidReference(m.reference) {
		return model.ErrInvalidReference
	}
	if m.cursor < model.StepFinalize {
		return fmt.Errorf("%w: draft before %s", model.ErrStepLocked, m.cursor)
	}
	return nil
}

// CanPublish reports whether the item may be finalized as published.
func (m *Machine) CanPublish() error {
	if err := m.active(); err != nil {
		return err
	}
	if err := model.CheckTransition(m.item.Status, model.StatusPublished); err != nil {
		return err
	}
	if !model.ValidReference(m.reference) {
		return model.ErrInvalidReference
	}
	if m.cursor < model.StepFinalize {
		return fmt.Errorf("%w: publish before %s", model.ErrStepLocked, m.cursor)
	}
	return nil
}

// CanMarkError reports whether the error escape hatch applies.
func (m *Machine) CanMarkError() error {
	if err := m.active(); err != nil {
		return err
	}
	return model.CheckTransition(m.item.Status, model.StatusError)
}

// Apply records a persisted status write.
func (m *Machine) Apply(item model.WorkItem) {
	m.item = item
}

// Enabled lists the actions available at the current position.
func (m *Machine) Enabled() []Action {
	var out []Action
	if m.item.Status == model.StatusReady && m.cursor == model.StepStartRun {
		out = append(out, ActionClaim)
	}
	for _, a := range []Action{ActionCopyTitle, ActionCopyDescription, ActionCopyPrice, ActionCopyMedia} {
		if m.CanPerform(copySteps[a]) == nil {
			out = append(out, a)
		}
	}
	if m.CanSetReference() == nil {
		out = append(out, ActionReference)
	}
	if m.CanDraft() == nil {
		out = append(out, ActionDraft)
	}
	if m.CanPublish() == nil {
		out = append(out, ActionPublish)
	}
	if m.CanMarkError() == nil {
		out = append(out, ActionError)
	}
	return out
}

package model

// Step is a position in the seven-step hand-off procedure.
type Step int

// Workflow steps, strictly ordered.
const (
	StepStartRun Step = iota + 1
	StepCopyTitle
	StepCopyDescription
	StepCopyPrice
	StepCopyMedia
	StepRecordReference
	StepFinalize
)

var stepNames = map[Step]string{
	StepStartRun:        "start-run",
	StepCopyTitle:       "copy-title",
	StepCopyDescription: "copy-description",
	StepCopyPrice:       "copy-price",
	StepCopyMedia:       "copy-media",
	StepRecordReference: "record-reference",
	StepFinalize:        "finalize",
}

// String returns the step's action name.
func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether s is one of the seven steps.
func (s Step) Valid() bool {
	return s >= StepStartRun && s <= StepFinalize
}

// Soft reports whether the step is a repeatable copy step (2 through 5).
func (s Step) Soft() bool {
	return s >= StepCopyTitle && s <= StepCopyMedia
}

// ParseStep resolves an action name to its step.
func ParseStep(name string) (Step, bool) {
	for s, n := range stepNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

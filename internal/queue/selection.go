package queue

import "github.com/erazemk/oddaja/internal/model"

// Selection is the operator's position in a snapshot. Index is -1 when the
// snapshot is empty.
type Selection struct {
	Index int
}

// Clamp revalidates the index against a snapshot of length n.
func (s Selection) Clamp(n int) Selection {
	switch {
	case n == 0:
		return Selection{Index: -1}
	case s.Index < 0:
		return Selection{Index: 0}
	case s.Index >= n:
		return Selection{Index: n - 1}
	}
	return s
}

// Refresh moves the selection from prev onto next. The selected item stays
// selected while it is still queued; otherwise the old index is clamped.
func (s Selection) Refresh(prev, next Snapshot) Selection {
	if it, ok := prev.At(s.Index); ok {
		if i, ok := next.Index(it.Kind, it.ID); ok {
			return Selection{Index: i}
		}
	}
	return s.Clamp(next.Len())
}

// Item returns the selected item of snap.
func (s Selection) Item(snap Snapshot) (model.WorkItem, bool) {
	return snap.At(s.Index)
}

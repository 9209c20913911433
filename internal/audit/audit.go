// Package audit writes and reads the session-attributed tags appended to an
// item's notes field.
//
// A tag is a single line of the form [kind:session:timestamp]. Notes are only
// ever appended to, so the tags form an ordered log of who claimed and who
// finished an item.
package audit

import (
	"regexp"
	"strings"
	"time"
)

// Kind is the event a tag records.
type Kind string

// Tag kinds.
const (
	KindLock Kind = "lock" // written with the claim
	KindDone Kind = "done" // written with the publish
)

// TimeFormat is the ISO-8601 layout used in tags (UTC, millisecond precision).
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Tag is one parsed audit line.
type Tag struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// Line formats the tag as it is stored.
func (t Tag) Line() string {
	return "[" + string(t.Kind) + ":" + t.SessionID + ":" + t.At.UTC().Format(TimeFormat) + "]"
}

// AppendTag returns notes with a new tag line appended. It does no I/O; the
// caller persists the result in the same write as the status change it
// belongs to.
func AppendTag(notes string, kind Kind, sessionID string, now time.Time) string {
	line := Tag{Kind: kind, SessionID: sessionID, At: now}.Line()
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

var tagLine = regexp.MustCompile(`^\[([a-z]+):([^:\]\s]+):([^\]]+)\]$`)

// ParseTags extracts every well-formed tag from notes in order. Free text and
// malformed lines are skipped.
func ParseTags(notes string) []Tag {
	var tags []Tag
	for _, line := range strings.Split(notes, "\n") {
		m := tagLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		at, err := time.Parse(TimeFormat, m[3])
		if err != nil {
			at, err = time.Parse(time.RFC3339Nano, m[3])
			if err != nil {
				continue
			}
		}
		tags = append(tags, Tag{Kind: Kind(m[1]), SessionID: m[2], At: at})
	}
	return tags
}

// Last returns the most recent tag of the given kind.
func Last(notes string, kind Kind) (Tag, bool) {
	tags := ParseTags(notes)
	for i := len(tags) - 1; i >= 0; i-- {
		if tags[i].Kind == kind {
			return tags[i], true
		}
	}
	return Tag{}, false
}

// LastClaim returns the session that most recently claimed the item.
func LastClaim(notes string) (string, bool) {
	t, ok := Last(notes, KindLock)
	return t.SessionID, ok
}

// LastDone returns the session that finished the item.
func LastDone(notes string) (string, bool) {
	t, ok := Last(notes, KindDone)
	return t.SessionID, ok
}

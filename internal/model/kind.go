package model

import "fmt"

// Kind tags which source collection a work item came from.
type Kind string

// Source kinds.
const (
	KindSingle Kind = "single"
	KindBundle Kind = "bundle"
)

// Kinds lists every source kind in fetch order.
var Kinds = []Kind{KindSingle, KindBundle}

// ParseKind parses a kind from a URL segment or config value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSingle, KindBundle:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

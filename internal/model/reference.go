package model

import (
	"net/url"
	"strings"
)

// ValidReference reports whether ref is a usable destination reference: an
// http:// or https:// URL with a host.
func ValidReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Host != ""
}

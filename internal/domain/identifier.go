package domain

import (
	"net/url"
	"strings"
)

// NormalizeIdentifier lowercases and trims an identifier. Website identifiers
// also lose their scheme, a leading "www." and trailing slashes.
func NormalizeIdentifier(id string, kind ItemKind) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if kind != KindWebsite {
		return id
	}
	if i := strings.Index(id, "://"); i >= 0 {
		id = id[i+3:]
	}
	id = strings.TrimPrefix(id, "www.")
	return strings.TrimRight(id, "/")
}

// HostFromURL extracts the normalized host of a browser URL, falling back to
// NormalizeIdentifier when the URL does not parse.
func HostFromURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return NormalizeIdentifier(raw, KindWebsite)
	}
	return NormalizeIdentifier(u.Hostname(), KindWebsite)
}

// IdentifiersOverlap implements the substring fallback: either contains the other.
func IdentifiersOverlap(observed, stored string) bool {
	if observed == "" || stored == "" {
		return false
	}
	return strings.Contains(observed, stored) || strings.Contains(stored, observed)
}

// Package keys builds sanitized, namespaced store keys. Every key that
// reaches the shared store goes through this package so that raw request
// input can never carry control characters into the store protocol or
// collide across namespaces.
package keys

import (
	"strings"

	"request-governor/internal/common/errors"
)

// Separator joins the namespace and raw key segments
const Separator = ":"

func isAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ':', '/', '_', '?', '&', '=', '.', '-':
		return true
	}
	return false
}

// Sanitize strips disallowed characters from a key segment. Runs of the
// separator characters ':' and '/' collapse to a single character and
// leading/trailing separators are trimmed. Pure and total: any input maps
// to a deterministic (possibly empty) output.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSep := false
	for _, r := range s {
		if r == ':' || r == '/' {
			if lastSep {
				continue
			}
			b.WriteRune(r)
			lastSep = true
			continue
		}
		if !isAllowed(r) {
			// whitespace and control characters are dropped
			continue
		}
		b.WriteRune(r)
		lastSep = false
	}

	return strings.Trim(b.String(), ":/")
}

// Build returns the store key for a raw key under a namespace:
// sanitize(namespace) + ":" + sanitize(raw). An empty namespace or raw key,
// before or after sanitizing, is a programmer error.
func Build(namespace, raw string) (string, error) {
	if namespace == "" || raw == "" {
		return "", errors.InvalidKey("namespace and key are required")
	}

	ns := Sanitize(namespace)
	k := Sanitize(raw)
	if ns == "" || k == "" {
		return "", errors.InvalidKey("namespace and key must contain at least one allowed character")
	}

	return ns + Separator + k, nil
}

// NormalizeRoute canonicalizes a request path for use in rate-limit keys.
// Case and slash variants of the same path ("/Foo", "//foo/") must bill the
// same window, so the path is lower-cased, repeated slashes collapse,
// leading/trailing slashes are trimmed and anything outside [a-z0-9/_-]
// becomes '_'.
func NormalizeRoute(path string) string {
	p := strings.ToLower(path)

	var b strings.Builder
	b.Grow(len(p))

	lastSlash := false
	for _, r := range p {
		if r == '/' {
			if lastSlash {
				continue
			}
			b.WriteRune('/')
			lastSlash = true
			continue
		}
		lastSlash = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	return strings.Trim(b.String(), "/")
}

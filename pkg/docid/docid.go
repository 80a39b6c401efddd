// Package docid derives and manipulates stable document identifiers.
//
// A document ID is the sanitized filename stem of the intake object, or a
// random UUID when the stem sanitizes to nothing. The ID becomes a path
// segment in every downstream object key (pdf-pages/{id}/..., text-docs/
// {id}.json), so sanitization keeps it to a single safe segment.
package docid

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// New returns a freshly assigned random document ID.
func New() string {
	return uuid.NewString()
}

// FromKey derives the document ID from an intake object key: the basename
// without extension, sanitized. Keys whose stem sanitizes to nothing get a
// generated UUID instead.
func FromKey(key string) string {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if id := sanitize(stem); id != "" {
		return id
	}
	return New()
}

// Ext returns the lowercased extension of a key without the leading dot.
func Ext(key string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
}

// sanitize maps runes outside [A-Za-z0-9._-] to '-', collapses runs, and
// trims separators from both ends.
func sanitize(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-._")
}

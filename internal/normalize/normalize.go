// Package normalize folds user-entered identifiers to the form they are stored and compared in.
package normalize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// markup strips every HTML element from free-text profile fields.
var markup = bluemonday.StrictPolicy()

// Username returns the stored form of a username: NFKC-folded, trimmed,
// lowercase, with a single leading "@" dropped. Lookups and uniqueness
// checks both go through this.
func Username(raw string) string {
	s := norm.NFKC.String(sanitizeString(raw))
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	return strings.ToLower(s)
}

// InviteCode trims surrounding whitespace and uppercases the code.
// Codes are always stored and compared uppercase.
func InviteCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// DisplayName strips markup, collapses internal whitespace runs and trims the result.
func DisplayName(raw string) string {
	s := html.UnescapeString(markup.Sanitize(raw))
	s = norm.NFC.String(sanitizeString(s))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// sanitizeString drops NUL and other control characters.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

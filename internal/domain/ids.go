package domain

import "regexp"

// idPattern restricts opaque ids to characters that can never collide with the
// "_" separator of composite edge keys or the ":" separator of index keys.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)

// ValidID reports whether s can be used as a user or post id.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// compositeKey joins two ids the way edge documents are keyed.
func compositeKey(a, b string) string {
	return a + "_" + b
}

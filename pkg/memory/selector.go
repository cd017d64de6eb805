package memory

import "strings"

// maxSelectorLength bounds stored selectors; anything longer is almost
// certainly a serialized DOM fragment, not a selector.
const maxSelectorLength = 500

// selectorSafe is the conservative character class allowed in stored
// selectors. Learned values come from noisy runtime data, so anything outside
// plain CSS selector syntax is rejected rather than persisted.
const selectorSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 #.[]=:'\"()>,_~^$*+|-"

// ValidSelector reports whether s is safe to store as a learned selector.
// Empty strings, oversized strings, and strings containing braces or
// characters outside the CSS-safe class are rejected.
func ValidSelector(s string) bool {
	if s == "" || len(s) > maxSelectorLength {
		return false
	}
	if strings.ContainsAny(s, "{}") {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(selectorSafe, r) {
			return false
		}
	}
	return true
}

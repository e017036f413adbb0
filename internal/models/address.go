package models

import (
	"regexp"
	"strings"
)

// addressRegex matches a 0x-prefixed, 40-hex-character wallet address.
// Validation is case-insensitive; display casing is preserved by callers.
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a well-formed wallet address
func IsValidAddress(s string) bool {
	return addressRegex.MatchString(s)
}

// NormalizeAddress lowercases and trims an address for use in RPC calls.
// The original casing is kept for display.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without
// panicking. Used when logging token or code values, where only a short
// prefix may appear in logs.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeSlashes converts backslashes to forward slashes and collapses
// repeated separators. Path jail input normalization runs through this
// before any joining happens.
func NormalizeSlashes(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

package util

import "strings"

// SanitizePostgresText drops invalid UTF-8 and NUL bytes, which text
// columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizeProductName makes a generated name safe to store and compare:
// Postgres safe, trimmed, with runs of whitespace collapsed.
func SanitizeProductName(value string) string {
	return strings.Join(strings.Fields(SanitizePostgresText(value)), " ")
}

// ABOUTME: SQL helper functions for query construction.
// ABOUTME: Escapes LIKE patterns built from caller-supplied filters.

package store

import "strings"

// escapeSQLLike escapes %, _ and \ so a caller-supplied prefix matches
// literally in a `LIKE ? ESCAPE '\'` clause. Backslash goes first to avoid
// double-escaping.
func escapeSQLLike(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "\\\\")
	pattern = strings.ReplaceAll(pattern, "%", "\\%")
	pattern = strings.ReplaceAll(pattern, "_", "\\_")
	return pattern
}

package utils

// Truncate shortens s to maxLen bytes followed by "...". Values such as
// encoded transactions and node-supplied reasons can be arbitrarily long.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

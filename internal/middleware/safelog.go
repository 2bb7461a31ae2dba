package middleware

import "strings"

// MaskSessionID hides most of a session token in log output.
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}

// Package text provides small string helpers shared by the output and
// logging layers.
package text

import "strings"

// Truncate shortens a string to n runes with ellipsis. Newlines are
// flattened first so truncated previews stay on one line.
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if n < 4 {
		n = 4
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// Redact hides the middle of a secret, keeping enough of the ends to
// tell two keys apart.
func Redact(v string) string {
	if len(v) <= 6 {
		return "******"
	}
	return v[:3] + "..." + v[len(v)-3:]
}

// IsSecretKey reports whether a settings key holds a credential.
func IsSecretKey(key string) bool {
	return strings.Contains(key, "api_key") || strings.Contains(key, "token")
}

package utils

import (
	"strings"
)

// Slugify lowercases s and replaces every run of non-alphanumeric characters
// with a single hyphen, trimming leading/trailing hyphens. Used for
// human-browsable object keys; an empty result falls back to "unnamed".
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}

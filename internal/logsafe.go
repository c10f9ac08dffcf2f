package internal

import (
	"strings"
	"unicode"
)

// MaxLogValueLength caps user-supplied values written to logs.
const MaxLogValueLength = 100

// SanitizeForLog strips control characters (including CR and LF) from
// user-supplied input and truncates it to MaxLogValueLength runes,
// appending "..." when it was cut.
func SanitizeForLog(v string) string {
	var b strings.Builder
	b.Grow(min(len(v), MaxLogValueLength+3))

	n := 0
	for _, r := range v {
		if unicode.IsControl(r) {
			continue
		}
		if n == MaxLogValueLength {
			b.WriteString("...")
			return b.String()
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, folds whitespace runs into one space, drops
// control characters and caps the result at maxLen runes. Customer names are
// often non-ASCII so the cap never splits a rune.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	count := 0
	pendingSpace := false
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSpace {
			if maxLen > 0 && count+1 >= maxLen {
				break
			}
			b.WriteRune(' ')
			count++
			pendingSpace = false
		}
		if maxLen > 0 && count >= maxLen {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

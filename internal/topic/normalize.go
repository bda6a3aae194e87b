package topic

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize maps a raw topic label to its comparison key: NFC-composed,
// lowercased, with everything but letters, digits and single spaces removed.
// Empty or punctuation-only input yields "".
func Normalize(raw string) string {
	v := strings.ToLower(norm.NFC.String(strings.TrimSpace(raw)))
	if v == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(v))
	pendingSpace := false
	for _, r := range v {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return norm.NFC.String(b.String())
}

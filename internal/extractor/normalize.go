package extractor

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize cleans raw extracted text into ordered, trimmed, non-empty lines.
// Compatibility forms produced by OCR (full-width digits, ligatures,
// non-breaking spaces) are folded with NFKC and control characters are
// dropped. Line order is preserved.
func Normalize(raw string) []string {
	if raw == "" {
		return []string{}
	}

	text := norm.NFKC.String(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	rawLines := strings.Split(text, "\n")
	lines := make([]string, 0, len(rawLines))
	for _, line := range rawLines {
		cleaned := cleanLine(line)
		if cleaned != "" {
			lines = append(lines, cleaned)
		}
	}
	return lines
}

// cleanLine drops control characters and collapses whitespace runs.
func cleanLine(line string) string {
	var b strings.Builder
	b.Grow(len(line))

	space := false
	for _, r := range line {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

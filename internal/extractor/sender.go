package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minSenderLen = 4
	maxSenderLen = 99
)

var (
	senderLabel   = regexp.MustCompile(`(?i)(?:^|\s)(?:from|sender|de la part de|emetteur|émetteur|donneur d'ordre|ordonnateur|nom|name)\s*:\s*(.+)$`)
	currencyWords = regexp.MustCompile(`(?i)\b(?:` + currencySrc + `)\b|€|\$`)
	nonWordRunes  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRuns     = regexp.MustCompile(`\s+`)
)

// findLabelledSender returns the value of a "From: ..." style label.
func findLabelledSender(line string) (string, bool) {
	m := senderLabel.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return cleanSender(m[1])
}

// findSender returns the free text left on a masked line when it is 4 to 99
// characters long and not purely numeric.
func findSender(line string) (string, bool) {
	return cleanSender(line)
}

func cleanSender(text string) (string, bool) {
	text = amountPattern.ReplaceAllString(text, " ")
	text = currencyWords.ReplaceAllString(text, " ")
	text = nonWordRunes.ReplaceAllString(text, " ")
	text = strings.TrimSpace(spaceRuns.ReplaceAllString(text, " "))

	n := utf8.RuneCountInString(text)
	if n < minSenderLen || n > maxSenderLen {
		return "", false
	}
	if strings.IndexFunc(text, unicode.IsLetter) < 0 {
		return "", false
	}
	return text, true
}

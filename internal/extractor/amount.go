package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountNumberSrc matches digits with optional thousands grouping and a one
// or two digit decimal part.
const amountNumberSrc = `\d{1,3}(?:[ \x{00A0}.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

const currencySrc = `MAD|DHS?|EUR|USD|€|\$`

var amountPattern = regexp.MustCompile(`(?i)(` + amountNumberSrc + `)(?:\s*(` + currencySrc + `))?`)

// ParseAmount parses an amount token. When both separators are present the
// last one is the decimal separator. A lone comma followed by one or two
// digits is a decimal comma. A dot followed by exactly three digits is a
// thousands separator.
func ParseAmount(token string) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, strings.TrimSpace(token))

	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		frac := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && frac >= 1 && frac <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		frac := len(s) - lastDot - 1
		if strings.Count(s, ".") > 1 || frac == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", token, err)
	}
	return amount, nil
}

type amountToken struct {
	value      decimal.Decimal
	hasMarker  bool
	hasDecimal bool
}

func (a amountToken) rank() int {
	r := 0
	if a.hasMarker {
		r += 2
	}
	if a.hasDecimal {
		r++
	}
	return r
}

// findAmount returns the best amount on the line that reaches min. Amounts
// carrying a currency marker win over amounts with a decimal part, which win
// over bare integers. Code and date tokens must already be masked.
func findAmount(line string, min decimal.Decimal) (decimal.Decimal, bool) {
	var best *amountToken

	for _, idx := range amountPattern.FindAllStringSubmatchIndex(line, -1) {
		start, end := idx[2], idx[3]
		if !isBoundary(line, start-1) || !isBoundary(line, end) && idx[4] < 0 {
			continue
		}
		number := line[start:end]
		value, err := ParseAmount(number)
		if err != nil || value.LessThan(min) {
			continue
		}
		tok := amountToken{
			value:      value,
			hasMarker:  idx[4] >= 0,
			hasDecimal: hasDecimalPart(number),
		}
		if best == nil || tok.rank() > best.rank() {
			best = &tok
		}
	}

	if best == nil {
		return decimal.Zero, false
	}
	return best.value, true
}

func hasDecimalPart(number string) bool {
	i := strings.LastIndexAny(number, ".,")
	if i < 0 {
		return false
	}
	frac := len(number) - i - 1
	return frac == 1 || frac == 2
}

// isBoundary reports whether position i lies outside a word made of letters
// or digits.
func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}

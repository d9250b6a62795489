package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"bank-transfer-reconciler/internal/models"
)

// A four digit first group is always read as the year.
const datePatternSrc = `\b(?:(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})|(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}))\b`

var datePattern = regexp.MustCompile(datePatternSrc)

// NormalizeDate converts a DD/MM/YYYY, DD-MM-YYYY, DD.MM.YYYY or YYYY-MM-DD
// token to zero-padded YYYY-MM-DD. Ambiguous day/month order is always read
// day first. Impossible calendar dates are rejected.
func NormalizeDate(token string) (string, error) {
	m := datePattern.FindStringSubmatch(token)
	if m == nil {
		return "", fmt.Errorf("unrecognized date %q", token)
	}

	var year, month, day string
	if m[1] != "" {
		year, month, day = m[1], m[2], m[3]
	} else {
		day, month, year = m[4], m[5], m[6]
	}

	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return "", fmt.Errorf("invalid calendar date %q", token)
	}
	return t.Format(models.DateLayout), nil
}

// findDate returns the first valid date on the line.
func findDate(line string) (string, bool) {
	for _, token := range datePattern.FindAllString(line, -1) {
		if date, err := NormalizeDate(token); err == nil {
			return date, true
		}
	}
	return "", false
}

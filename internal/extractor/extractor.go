// Package extractor turns noisy document text into transaction candidates.
//
// Extraction is heuristic and never fails: a field that cannot be found is
// left empty or defaulted. Two strategies run in order and the first one that
// yields candidates wins:
//   - a line-anchored window search around every line carrying a code
//   - a flat table-row scan for "<date> ... <amount> ... <code>" spans
//
// Candidates are deduplicated within one call by their transfer description.
package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/pkg/logger"
)

// maxTableGap bounds the free text allowed between the date, amount and code
// of one table row.
const maxTableGap = 120

// Config holds extractor options
type Config struct {
	Window Window
	Now    func() time.Time
	Logger logger.Logger
}

// DefaultConfig returns the default extractor configuration
func DefaultConfig() *Config {
	return &Config{
		Window: DefaultWindow,
		Now:    time.Now,
	}
}

// Extractor extracts candidates for one code format.
type Extractor struct {
	format CodeFormat
	window Window
	now    func() time.Time
	table  *regexp.Regexp
	logger logger.Logger
}

// New creates an extractor for the given code format
func New(format CodeFormat, config *Config) *Extractor {
	if config == nil {
		config = DefaultConfig()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	gap := fmt.Sprintf(`.{0,%d}?`, maxTableGap)
	table := regexp.MustCompile(`(?i)(?P<date>` + datePatternSrc + `)\s` + gap +
		`(?P<amount>` + amountNumberSrc + `)(?:\s*(?:` + currencySrc + `))?` +
		gap + `(?P<code>` + format.Expr + `)`)

	return &Extractor{
		format: format,
		window: config.Window,
		now:    now,
		table:  table,
		logger: logger.OrGlobal(config.Logger).WithComponent("extractor").WithField("format", format.Name),
	}
}

// Format returns the code format the extractor searches for
func (e *Extractor) Format() CodeFormat {
	return e.format
}

// ExtractText normalizes raw text and extracts candidates from it
func (e *Extractor) ExtractText(raw string) []models.TransactionCandidate {
	return e.Extract(Normalize(raw))
}

// Extract produces candidates from normalized lines. Only candidates carrying
// both a code and an amount at or above the format minimum are returned.
func (e *Extractor) Extract(lines []string) []models.TransactionCandidate {
	candidates := e.windowSearch(lines)
	strategy := "window"
	if len(candidates) == 0 {
		candidates = e.tableSearch(lines)
		strategy = "table"
	}

	result := dedupe(candidates)
	e.logger.WithFields(logger.Fields{
		"lines":      len(lines),
		"strategy":   strategy,
		"candidates": len(result),
		"duplicates": len(candidates) - len(result),
	}).Debug("Extracted candidates")
	return result
}

func (e *Extractor) windowSearch(lines []string) []models.TransactionCandidate {
	var out []models.TransactionCandidate
	for i, line := range lines {
		for _, code := range e.format.Pattern.FindAllString(line, -1) {
			if c, ok := e.candidateAt(lines, i, code); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// candidateAt builds the candidate anchored on lines[anchor]. Other lines
// carrying a code belong to their own anchor and are skipped when looking
// for the amount and sender.
func (e *Extractor) candidateAt(lines []string, anchor int, rawCode string) (models.TransactionCandidate, bool) {
	foreign := func(i int, line string) bool {
		return i != anchor && hasAnyCode(line)
	}

	amount, ok := searchWindow(lines, anchor, e.window.Amount, func(i int, line string) (decimal.Decimal, bool) {
		if foreign(i, line) {
			return decimal.Zero, false
		}
		return findAmount(mask(line), e.format.MinAmount)
	})
	if !ok {
		return models.TransactionCandidate{}, false
	}

	date, found := searchWindow(lines, anchor, e.window.Date, func(_ int, line string) (string, bool) {
		return findDate(line)
	})
	if !found {
		date = e.now().Format(models.DateLayout)
	}

	sender, ok := searchWindow(lines, anchor, e.window.Sender, func(i int, line string) (string, bool) {
		if foreign(i, line) {
			return "", false
		}
		return findLabelledSender(mask(line))
	})
	if !ok {
		sender, ok = searchWindow(lines, anchor, e.window.Sender, func(i int, line string) (string, bool) {
			if foreign(i, line) {
				return "", false
			}
			return findSender(mask(line))
		})
	}
	if !ok {
		sender = models.UnknownSender
	}

	code := models.NormalizeCode(rawCode)
	return models.TransactionCandidate{
		Code:          code,
		Amount:        &amount,
		Date:          date,
		DateDefaulted: !found,
		SenderName:    sender,
		Description:   e.format.Describe(code),
		SourceLine:    lines[anchor],
	}, true
}

// tableSearch scans the text as one flat span for table rows.
func (e *Extractor) tableSearch(lines []string) []models.TransactionCandidate {
	text := strings.Join(lines, " ")
	dateIdx := e.table.SubexpIndex("date")
	amountIdx := e.table.SubexpIndex("amount")
	codeIdx := e.table.SubexpIndex("code")

	var out []models.TransactionCandidate
	for _, m := range e.table.FindAllStringSubmatch(text, -1) {
		amount, err := ParseAmount(m[amountIdx])
		if err != nil || !e.format.accepts(amount) {
			continue
		}
		date, err := NormalizeDate(m[dateIdx])
		defaulted := err != nil
		if defaulted {
			date = e.now().Format(models.DateLayout)
		}
		code := models.NormalizeCode(m[codeIdx])
		out = append(out, models.TransactionCandidate{
			Code:          code,
			Amount:        &amount,
			Date:          date,
			DateDefaulted: defaulted,
			SenderName:    models.UnknownSender,
			Description:   e.format.Describe(code),
			SourceLine:    m[0],
		})
	}
	return out
}

// dedupe keeps the first candidate per description.
func dedupe(candidates []models.TransactionCandidate) []models.TransactionCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]models.TransactionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.Description]; ok {
			continue
		}
		seen[c.Description] = struct{}{}
		out = append(out, c)
	}
	return out
}

// mask blanks code and date tokens so their digits are not read as amounts.
func mask(line string) string {
	for _, f := range Formats {
		line = f.Pattern.ReplaceAllString(line, " ")
	}
	return datePattern.ReplaceAllString(line, " ")
}

func hasAnyCode(line string) bool {
	for _, f := range Formats {
		if f.Pattern.MatchString(line) {
			return true
		}
	}
	return false
}

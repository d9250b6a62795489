package extractor

import (
	"regexp"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
)

// CodeFormat describes how one ingestion path renders transfer codes and
// which minimum amount it accepts.
type CodeFormat struct {
	Name      string
	Source    models.PaymentSource
	Expr      string
	Pattern   *regexp.Regexp
	MinAmount decimal.Decimal
	// Describe builds the synthetic transfer description used as the
	// in-extraction dedup key.
	Describe func(code string) string
}

func newCodeFormat(name string, source models.PaymentSource, expr string, min int64, describe func(string) string) CodeFormat {
	return CodeFormat{
		Name:      name,
		Source:    source,
		Expr:      expr,
		Pattern:   regexp.MustCompile(`(?i)` + expr),
		MinAmount: decimal.NewFromInt(min),
		Describe:  describe,
	}
}

// ReceiptFormat matches codes as printed on user receipts: MOD followed by
// exactly eight alphanumerics.
var ReceiptFormat = newCodeFormat("receipt", models.SourceReceipt,
	`\bMOD[A-Z0-9]{8}\b`, models.ReceiptMinAmount,
	func(code string) string { return code })

// StatementFormat matches codes as rendered in bank statement exports:
// MOD- followed by four digits.
var StatementFormat = newCodeFormat("statement", models.SourceStatement,
	`\bMOD-\d{4}\b`, models.StatementMinAmount,
	func(code string) string { return "Payment " + code })

// Formats lists every known code format, receipt first.
var Formats = []CodeFormat{ReceiptFormat, StatementFormat}

// FormatFor returns the code format used by the given source.
func FormatFor(source models.PaymentSource) CodeFormat {
	if source == models.SourceReceipt {
		return ReceiptFormat
	}
	return StatementFormat
}

// FindCode returns the first code in text matching any of the formats, upper
// cased, or "" when none matches.
func FindCode(text string, formats ...CodeFormat) string {
	if len(formats) == 0 {
		formats = Formats
	}
	for _, f := range formats {
		if code := f.Pattern.FindString(text); code != "" {
			return models.NormalizeCode(code)
		}
	}
	return ""
}

func (f CodeFormat) accepts(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(f.MinAmount)
}

package reconciler

import (
	"strings"

	"bank-transfer-reconciler/internal/extractor"
	"bank-transfer-reconciler/internal/models"
)

// RowCandidate turns a pre-extracted row into a candidate. The description
// is searched for every code format. An unparseable date is left empty so the
// bank reference of the row stays stable across submissions.
func RowCandidate(row models.Row) models.TransactionCandidate {
	description := strings.TrimSpace(row.Description)
	c := models.TransactionCandidate{
		Code:        extractor.FindCode(description),
		Description: description,
		SenderName:  strings.TrimSpace(row.SenderName),
		SourceLine:  description,
	}
	if row.Amount.IsPositive() {
		amount := row.Amount
		c.Amount = &amount
	}
	if date, err := extractor.NormalizeDate(row.Date); err == nil {
		c.Date = date
	}
	if c.SenderName == "" {
		c.SenderName = models.UnknownSender
	}
	return c
}

// RowCandidates converts rows in order
func RowCandidates(rows []models.Row) []models.TransactionCandidate {
	out := make([]models.TransactionCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, RowCandidate(row))
	}
	return out
}

// uniqueCodes returns the distinct codes carried by candidates
func uniqueCodes(candidates []models.TransactionCandidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	var codes []string
	for _, c := range candidates {
		if !c.HasCode() {
			continue
		}
		code := models.NormalizeCode(c.Code)
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

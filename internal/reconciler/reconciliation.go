package reconciler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
)

// DetailStatus is the per-candidate outcome shown to the operator
type DetailStatus string

const (
	StatusNoCode           DetailStatus = "No code found"
	StatusCodeNotFound     DetailStatus = "Code not found"
	StatusAlreadyProcessed DetailStatus = "Already processed"
	StatusSuccess          DetailStatus = "Success"
	StatusError            DetailStatus = "Error"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// MaxConcurrentDocuments bounds parallel document submissions.
	MaxConcurrentDocuments int
	// LanguageHints are passed to OCR.
	LanguageHints []string

	Now func() time.Time
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentDocuments: 4,
		LanguageHints:          []string{"fr", "ar", "en"},
		Now:                    time.Now,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrentDocuments <= 0 {
		return fmt.Errorf("max concurrent documents must be positive, got %d", c.MaxConcurrentDocuments)
	}
	return nil
}

// Detail is the outcome of one candidate or row
type Detail struct {
	Row       *models.Row                 `json:"row,omitempty"`
	Candidate models.TransactionCandidate `json:"candidate"`
	Code      string                      `json:"code,omitempty"`
	Status    DetailStatus                `json:"status"`
	Message   string                      `json:"message,omitempty"`
	RecordID  uint                        `json:"record_id,omitempty"`
	PaymentID uint                        `json:"payment_id,omitempty"`
}

// Report is the operator-facing summary of one batch. Duplicates are neither
// matched nor unmatched.
type Report struct {
	BatchID            string               `json:"batch_id"`
	Source             models.PaymentSource `json:"source"`
	Document           string               `json:"document,omitempty"`
	ArchiveKey         string               `json:"archive_key,omitempty"`
	ProcessedAt        time.Time            `json:"processed_at"`
	Duration           time.Duration        `json:"duration"`
	Matched            int                  `json:"matched"`
	Unmatched          int                  `json:"unmatched"`
	Duplicates         int                  `json:"duplicates"`
	Errors             int                  `json:"errors"`
	TotalAmountMatched decimal.Decimal      `json:"total_amount_matched"`
	Details            []Detail             `json:"details"`
}

// NewReport creates an empty report for a batch
func NewReport(batchID string, source models.PaymentSource, processedAt time.Time) *Report {
	return &Report{
		BatchID:            batchID,
		Source:             source,
		ProcessedAt:        processedAt,
		TotalAmountMatched: decimal.Zero,
		Details:            make([]Detail, 0),
	}
}

// Add records a detail and updates the totals
func (r *Report) Add(d Detail) {
	switch d.Status {
	case StatusSuccess:
		r.Matched++
		if d.Candidate.Amount != nil {
			r.TotalAmountMatched = r.TotalAmountMatched.Add(*d.Candidate.Amount)
		}
	case StatusAlreadyProcessed:
		r.Duplicates++
	case StatusNoCode, StatusCodeNotFound:
		r.Unmatched++
	case StatusError:
		r.Errors++
	}
	r.Details = append(r.Details, d)
}

// Total returns the number of details
func (r *Report) Total() int {
	return len(r.Details)
}

// DocumentRequest is one uploaded document to reconcile
type DocumentRequest struct {
	Name   string
	Data   []byte
	Source models.PaymentSource
}

// DocumentOutcome pairs a document with its report or the error that
// aborted it
type DocumentOutcome struct {
	Name   string
	Report *Report
	Err    error
}

// Package reporter renders reconciliation reports for operators.
//
// Supported output formats:
//   - Console: human-readable summary and per-status listings for the terminal
//   - JSON: the report structure for programmatic consumption
//   - CSV: one line per candidate for spreadsheet review
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatCSV})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// statusOrder is the order detail groups are printed in
var statusOrder = []reconciler.DetailStatus{
	reconciler.StatusError,
	reconciler.StatusCodeNotFound,
	reconciler.StatusNoCode,
	reconciler.StatusAlreadyProcessed,
	reconciler.StatusSuccess,
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options
	IncludeSuccessful bool `json:"include_successful" mapstructure:"include_successful"`
	IncludeUnmatched  bool `json:"include_unmatched" mapstructure:"include_unmatched"`
	IncludeDuplicates bool `json:"include_duplicates" mapstructure:"include_duplicates"`
	IncludeErrors     bool `json:"include_errors" mapstructure:"include_errors"`

	// Console formatting options
	TableMaxWidth int  `json:"table_max_width" mapstructure:"table_max_width"`
	MaxListItems  int  `json:"max_list_items" mapstructure:"max_list_items"`
	SortByAmount  bool `json:"sort_by_amount" mapstructure:"sort_by_amount"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeSuccessful: true,
		IncludeUnmatched:  true,
		IncludeDuplicates: true,
		IncludeErrors:     true,
		TableMaxWidth:     120,
		MaxListItems:      10,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	return nil
}

func (c *ReportConfig) includes(status reconciler.DetailStatus) bool {
	switch status {
	case reconciler.StatusSuccess:
		return c.IncludeSuccessful
	case reconciler.StatusNoCode, reconciler.StatusCodeNotFound:
		return c.IncludeUnmatched
	case reconciler.StatusAlreadyProcessed:
		return c.IncludeDuplicates
	default:
		return c.IncludeErrors
	}
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes one batch report to writer
func (rg *ReportGenerator) GenerateReport(report *reconciler.Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("reconciliation report cannot be nil")
	}
	return rg.GenerateOutcomes([]reconciler.DocumentOutcome{{Name: report.Document, Report: report}}, writer)
}

// GenerateOutcomes writes the reports of several documents. Documents that
// failed before reconciliation are listed with their error.
func (rg *ReportGenerator) GenerateOutcomes(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(outcomes, writer)
	case FormatJSON:
		return rg.generateJSONReport(outcomes, writer)
	case FormatCSV:
		return rg.generateCSVReport(outcomes, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	for i, outcome := range outcomes {
		if i > 0 {
			fmt.Fprintf(writer, "\n")
		}
		if outcome.Report == nil {
			fmt.Fprintf(writer, "DOCUMENT FAILED: %s\n", outcome.Name)
			fmt.Fprintf(writer, "Error: %v\n", outcome.Err)
			continue
		}

		report := outcome.Report
		fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
		if report.Document != "" {
			fmt.Fprintf(writer, "Document: %s\n", report.Document)
		}
		fmt.Fprintf(writer, "Batch: %s (%s)\n", report.BatchID, report.Source)
		fmt.Fprintf(writer, "Generated: %s\n", report.ProcessedAt.Format(time.RFC3339))
		fmt.Fprintf(writer, "Processing Duration: %v\n\n", report.Duration)

		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		rg.printSummary(report, writer)
		fmt.Fprintf(writer, "\n")

		groups := groupByStatus(report.Details)
		for _, status := range statusOrder {
			details := groups[status]
			if len(details) == 0 || !rg.config.includes(status) {
				continue
			}
			fmt.Fprintf(writer, "=== %s (%d) ===\n", strings.ToUpper(string(status)), len(details))
			rg.printDetails(details, writer)
			fmt.Fprintf(writer, "\n")
		}
	}
	return nil
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if len(outcomes) == 1 && outcomes[0].Report != nil {
		return encoder.Encode(rg.filterReportForOutput(outcomes[0].Report))
	}

	output := make([]map[string]interface{}, 0, len(outcomes))
	for _, outcome := range outcomes {
		entry := map[string]interface{}{"document": outcome.Name}
		if outcome.Report != nil {
			entry["report"] = rg.filterReportForOutput(outcome.Report)
		}
		if outcome.Err != nil {
			entry["error"] = outcome.Err.Error()
		}
		output = append(output, entry)
	}
	return encoder.Encode(output)
}

// generateCSVReport generates a CSV report with one line per candidate
func (rg *ReportGenerator) generateCSVReport(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Batch",
			"Document",
			"Status",
			"Code",
			"Amount",
			"Date",
			"Sender",
			"Description",
			"Record_ID",
			"Payment_ID",
			"Message",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, outcome := range outcomes {
		if outcome.Report == nil {
			record := []string{"", outcome.Name, string(reconciler.StatusError), "", "", "", "", "", "", "", errString(outcome.Err)}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write failed document record: %w", err)
			}
			continue
		}
		for _, d := range outcome.Report.Details {
			if !rg.config.includes(d.Status) {
				continue
			}
			record := []string{
				outcome.Report.BatchID,
				outcome.Report.Document,
				string(d.Status),
				d.Code,
				amountString(d),
				d.Candidate.Date,
				d.Candidate.SenderName,
				d.Candidate.Description,
				idString(d.RecordID),
				idString(d.PaymentID),
				d.Message,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write detail record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(report *reconciler.Report, writer io.Writer) {
	total := report.Total()
	fmt.Fprintf(writer, "Candidates:  %d\n", total)
	fmt.Fprintf(writer, "  Matched:    %d (%.1f%%)\n", report.Matched, calculatePercentage(report.Matched, total))
	fmt.Fprintf(writer, "  Unmatched:  %d (%.1f%%)\n", report.Unmatched, calculatePercentage(report.Unmatched, total))
	fmt.Fprintf(writer, "  Duplicates: %d (%.1f%%)\n", report.Duplicates, calculatePercentage(report.Duplicates, total))
	fmt.Fprintf(writer, "  Errors:     %d (%.1f%%)\n", report.Errors, calculatePercentage(report.Errors, total))
	fmt.Fprintf(writer, "Total Amount Matched: %s\n", report.TotalAmountMatched.StringFixed(2))
}

func (rg *ReportGenerator) printDetails(details []reconciler.Detail, writer io.Writer) {
	if rg.config.SortByAmount {
		sort.SliceStable(details, func(i, j int) bool {
			return detailAmount(details[i]).GreaterThan(detailAmount(details[j]))
		})
	}

	for i, d := range details {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(details)-rg.config.MaxListItems)
			break
		}

		line := fmt.Sprintf("  %d. Code: %s, Amount: %s, Date: %s, Sender: %s",
			i+1, orDash(d.Code), orDash(amountString(d)), orDash(d.Candidate.Date), orDash(d.Candidate.SenderName))
		if d.Message != "" {
			line += " (" + d.Message + ")"
		}
		fmt.Fprintf(writer, "%s\n", truncate(line, rg.config.TableMaxWidth))
	}
}

// Helper methods

func (rg *ReportGenerator) filterReportForOutput(report *reconciler.Report) map[string]interface{} {
	details := make([]reconciler.Detail, 0, len(report.Details))
	for _, d := range report.Details {
		if rg.config.includes(d.Status) {
			details = append(details, d)
		}
	}

	output := map[string]interface{}{
		"batch_id":     report.BatchID,
		"source":       report.Source,
		"processed_at": report.ProcessedAt,
		"duration":     report.Duration.String(),
		"summary": map[string]interface{}{
			"total":                report.Total(),
			"matched":              report.Matched,
			"unmatched":            report.Unmatched,
			"duplicates":           report.Duplicates,
			"errors":               report.Errors,
			"total_amount_matched": report.TotalAmountMatched.StringFixed(2),
		},
		"details": details,
	}
	if report.Document != "" {
		output["document"] = report.Document
	}
	if report.ArchiveKey != "" {
		output["archive_key"] = report.ArchiveKey
	}
	return output
}

func groupByStatus(details []reconciler.Detail) map[reconciler.DetailStatus][]reconciler.Detail {
	groups := make(map[reconciler.DetailStatus][]reconciler.Detail)
	for _, d := range details {
		groups[d.Status] = append(groups[d.Status], d)
	}
	return groups
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func detailAmount(d reconciler.Detail) decimal.Decimal {
	if d.Candidate.Amount == nil {
		return decimal.Zero
	}
	return *d.Candidate.Amount
}

func amountString(d reconciler.Detail) string {
	if d.Candidate.Amount == nil {
		return ""
	}
	return d.Candidate.Amount.StringFixed(2)
}

func idString(id uint) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprint(id)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

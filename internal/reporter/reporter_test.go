package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/pkg/logger"
)

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleReport() *reconciler.Report {
	r := reconciler.NewReport("batch-1", models.SourceStatement, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC))
	r.Document = "statement.pdf"
	r.Add(reconciler.Detail{
		Candidate: models.TransactionCandidate{Code: "MOD-1234", Amount: amountPtr("150"), Date: "2024-03-15", SenderName: "ACME", Description: "Payment MOD-1234"},
		Code:      "MOD-1234",
		Status:    reconciler.StatusSuccess,
		RecordID:  7,
		PaymentID: 11,
	})
	r.Add(reconciler.Detail{
		Candidate: models.TransactionCandidate{Code: "MOD-9999", Amount: amountPtr("300"), Date: "2024-03-16"},
		Code:      "MOD-9999",
		Status:    reconciler.StatusCodeNotFound,
		Message:   "no billing record carries code MOD-9999",
	})
	r.Add(reconciler.Detail{
		Candidate: models.TransactionCandidate{Description: "Virement"},
		Status:    reconciler.StatusNoCode,
	})
	r.Add(reconciler.Detail{
		Candidate: models.TransactionCandidate{Code: "MOD-1234", Amount: amountPtr("150"), Date: "2024-03-15"},
		Code:      "MOD-1234",
		Status:    reconciler.StatusAlreadyProcessed,
	})
	return r
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "xml", TableMaxWidth: 120}, expectError: true},
		{name: "table width too small", config: &ReportConfig{Format: FormatConsole, TableMaxWidth: 30}, expectError: true},
		{name: "negative list items", config: &ReportConfig{Format: FormatConsole, TableMaxWidth: 80, MaxListItems: -1}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"xml", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestConsoleReport(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"RECONCILIATION REPORT",
		"Document: statement.pdf",
		"Matched:    1 (25.0%)",
		"Unmatched:  2 (50.0%)",
		"Duplicates: 1 (25.0%)",
		"Total Amount Matched: 150.00",
		"=== CODE NOT FOUND (1) ===",
		"=== NO CODE FOUND (1) ===",
		"=== ALREADY PROCESSED (1) ===",
		"=== SUCCESS (1) ===",
		"Code: MOD-9999, Amount: 300.00",
		"(no billing record carries code MOD-9999)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "=== ERROR") {
		t.Errorf("empty groups should not be printed")
	}
}

func TestConsoleReportLimitsAndFilters(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxListItems = 1
	config.IncludeSuccessful = false
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatal(err)
	}

	report := reconciler.NewReport("batch-2", models.SourceReceipt, time.Now())
	for i := 0; i < 3; i++ {
		report.Add(reconciler.Detail{Status: reconciler.StatusNoCode})
	}
	report.Add(reconciler.Detail{Status: reconciler.StatusSuccess, Candidate: models.TransactionCandidate{Amount: amountPtr("60")}})

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "... and 2 more") {
		t.Errorf("expected truncated listing, got\n%s", out)
	}
	if strings.Contains(out, "=== SUCCESS") {
		t.Errorf("successful details should be filtered")
	}
}

func TestJSONReport(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{Format: FormatJSON, TableMaxWidth: 120, IncludeUnmatched: true})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		BatchID string `json:"batch_id"`
		Summary struct {
			Matched            int    `json:"matched"`
			Unmatched          int    `json:"unmatched"`
			Duplicates         int    `json:"duplicates"`
			TotalAmountMatched string `json:"total_amount_matched"`
		} `json:"summary"`
		Details []struct {
			Status string `json:"status"`
		} `json:"details"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if decoded.BatchID != "batch-1" {
		t.Errorf("batch_id = %q", decoded.BatchID)
	}
	if decoded.Summary.Matched != 1 || decoded.Summary.Unmatched != 2 || decoded.Summary.Duplicates != 1 {
		t.Errorf("unexpected summary %+v", decoded.Summary)
	}
	if decoded.Summary.TotalAmountMatched != "150.00" {
		t.Errorf("total_amount_matched = %q", decoded.Summary.TotalAmountMatched)
	}
	if len(decoded.Details) != 2 {
		t.Fatalf("expected only unmatched details, got %d", len(decoded.Details))
	}
	for _, d := range decoded.Details {
		if d.Status != string(reconciler.StatusCodeNotFound) && d.Status != string(reconciler.StatusNoCode) {
			t.Errorf("unexpected status %q", d.Status)
		}
	}
}

func TestJSONReportMultipleOutcomes(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{Format: FormatJSON, TableMaxWidth: 120})
	if err != nil {
		t.Fatal(err)
	}

	outcomes := []reconciler.DocumentOutcome{
		{Name: "statement.pdf", Report: sampleReport()},
		{Name: "broken.pdf", Err: stderrors.New("unreadable")},
	}
	var buf bytes.Buffer
	if err := generator.GenerateOutcomes(outcomes, &buf); err != nil {
		t.Fatal(err)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded))
	}
	if _, ok := decoded[0]["report"]; !ok {
		t.Errorf("expected report for first document")
	}
	if decoded[1]["error"] != "unreadable" {
		t.Errorf("error = %v", decoded[1]["error"])
	}
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVDelimiter = ';'
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatal(err)
	}

	outcomes := []reconciler.DocumentOutcome{
		{Name: "statement.pdf", Report: sampleReport()},
		{Name: "broken.pdf", Err: stderrors.New("unreadable")},
	}
	var buf bytes.Buffer
	if err := generator.GenerateOutcomes(outcomes, &buf); err != nil {
		t.Fatal(err)
	}

	reader := csv.NewReader(&buf)
	reader.Comma = ';'
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected header + 5 lines, got %d", len(records))
	}
	if records[0][2] != "Status" {
		t.Errorf("unexpected header %v", records[0])
	}

	success := records[1]
	if success[2] != "Success" || success[3] != "MOD-1234" || success[4] != "150.00" || success[8] != "7" || success[9] != "11" {
		t.Errorf("unexpected success line %v", success)
	}
	failed := records[5]
	if failed[1] != "broken.pdf" || failed[2] != "Error" || failed[10] != "unreadable" {
		t.Errorf("unexpected failed document line %v", failed)
	}
}

func TestSafeReportGenerator(t *testing.T) {
	generator, err := NewSafeReportGenerator(&ReportConfig{Format: FormatJSON, TableMaxWidth: 120, IncludeErrors: true}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReportSafely(nil, &buf); err == nil {
		t.Errorf("expected validation error for no outcomes")
	}
	if err := generator.GenerateReportSafely([]reconciler.DocumentOutcome{{Report: sampleReport()}}, nil); err == nil {
		t.Errorf("expected validation error for nil writer")
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, logger.Discard()); err == nil {
		t.Errorf("expected configuration error")
	}
}

func TestSafeReportGeneratorWriteFile(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "report.txt")
	if err := generator.WriteFile([]reconciler.DocumentOutcome{{Report: sampleReport()}}, path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "RECONCILIATION REPORT") {
		t.Errorf("unexpected file content:\n%s", data)
	}

	if err := generator.WriteFile([]reconciler.DocumentOutcome{{Report: sampleReport()}}, filepath.Join(t.TempDir(), "missing", "r.txt")); err == nil {
		t.Errorf("expected error for missing directory")
	}
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath(filepath.Join("out", "report.csv")); got != filepath.Join("out", "report_backup.csv") {
		t.Errorf("generateBackupPath = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 8); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}

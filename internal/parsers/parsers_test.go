package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRowParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *RowParserConfig)
		wantErr bool
	}{
		{"default", func(c *RowParserConfig) {}, false},
		{"missing date column", func(c *RowParserConfig) { c.DateColumn = " " }, true},
		{"missing amount column", func(c *RowParserConfig) { c.AmountColumn = "" }, true},
		{"missing description column", func(c *RowParserConfig) { c.DescriptionColumn = "" }, true},
		{"missing delimiter", func(c *RowParserConfig) { c.Delimiter = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultRowParserConfig()
			tt.modify(config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRows(t *testing.T) {
	input := strings.Join([]string{
		"date,amount,description,senderName",
		"15/03/2024,\"150,00\",Payment MOD12345678,Ahmed Benali",
		"2024-03-16,1500.50,VIR MOD-0042,",
		"",
		"not a date,100,Payment MOD-0001,X",
		"17/03/2024,abc,Payment MOD-0002,X",
		"18/03/2024,120,,X",
	}, "\n")

	parser, err := NewRowParser(nil, nil)
	if err != nil {
		t.Fatalf("NewRowParser() error = %v", err)
	}

	rows, stats, err := parser.ParseRows(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRows() error = %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if stats.RecordsParsed != 5 {
		t.Errorf("RecordsParsed = %d, want 5", stats.RecordsParsed)
	}
	if stats.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3: %v", stats.ErrorCount, stats.GetSampleErrors(0))
	}

	first := rows[0]
	if first.Date != "2024-03-15" {
		t.Errorf("Date = %s, want 2024-03-15", first.Date)
	}
	if !first.Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Amount = %s, want 150", first.Amount)
	}
	if first.Description != "Payment MOD12345678" || first.SenderName != "Ahmed Benali" {
		t.Errorf("unexpected row %+v", first)
	}

	if !rows[1].Amount.Equal(decimal.RequireFromString("1500.5")) {
		t.Errorf("Amount = %s, want 1500.5", rows[1].Amount)
	}
	if rows[1].SenderName != "" {
		t.Errorf("SenderName = %q, want empty", rows[1].SenderName)
	}
}

func TestParseRowsAliases(t *testing.T) {
	input := "Date Opération;Libellé;Montant\n15/03/2024;VIREMENT MOD-0042;1 250,00\n"

	config := DefaultRowParserConfig()
	config.Delimiter = ';'
	parser, err := NewRowParser(config, nil)
	if err != nil {
		t.Fatalf("NewRowParser() error = %v", err)
	}

	rows, _, err := parser.ParseRows(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Description != "VIREMENT MOD-0042" || !rows[0].Amount.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("unexpected row %+v", rows[0])
	}
}

func TestParseRowsMissingColumn(t *testing.T) {
	parser, _ := NewRowParser(nil, nil)
	_, _, err := parser.ParseRows(context.Background(), strings.NewReader("date,amount\n15/03/2024,100\n"))
	if err == nil {
		t.Fatal("expected error for missing description column")
	}
	if !strings.Contains(err.Error(), "description") {
		t.Errorf("error should name the missing column, got %v", err)
	}
}

func TestParseRowsEmpty(t *testing.T) {
	parser, _ := NewRowParser(nil, nil)
	if _, _, err := parser.ParseRows(context.Background(), strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestParseRowsWithoutHeader(t *testing.T) {
	config := DefaultRowParserConfig()
	config.HasHeader = false
	parser, _ := NewRowParser(config, nil)

	rows, _, err := parser.ParseRows(context.Background(), strings.NewReader("15/03/2024,200,Payment MOD-0007,Sara\n"))
	if err != nil {
		t.Fatalf("ParseRows() error = %v", err)
	}
	if len(rows) != 1 || rows[0].SenderName != "Sara" {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestParseRowsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser, _ := NewRowParser(nil, nil)
	_, _, err := parser.ParseRows(ctx, strings.NewReader("date,amount,description\n15/03/2024,200,MOD-0007\n"))
	if err == nil {
		t.Error("expected cancellation error")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(path, []byte("date,amount,description\n15/03/2024,200,Payment MOD-0007\n"), 0644); err != nil {
		t.Fatal(err)
	}

	parser, _ := NewRowParser(nil, nil)
	rows, stats, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(rows) != 1 || stats.RecordsValid != 1 {
		t.Errorf("expected 1 valid row, got %d (%s)", len(rows), stats)
	}

	if _, _, err := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

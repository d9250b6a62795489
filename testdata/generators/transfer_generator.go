// Command transfer_generator writes synthetic bank transfer evidence for
// manual and load testing: a row CSV, a statement text document and one text
// receipt per receipt payment.
//
//	go run transfer_generator.go -count=500 -codes=MOD-1234,MOD12345678 -output-dir=../generated
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransferGenerator produces transfers that reference billing codes
type TransferGenerator struct {
	Count          int
	StartDate      time.Time
	EndDate        time.Time
	Codes          []string
	NoCodeRatio    float64
	DuplicateRatio float64
	BelowMinRatio  float64
	rnd            *rand.Rand
}

// Transfer is one generated bank transfer
type Transfer struct {
	Date   time.Time
	Amount decimal.Decimal
	Code   string
	Sender string
}

var senders = []string{
	"AMINE EL IDRISSI", "SARA BENNANI", "YOUSSEF ALAOUI", "KHADIJA TAZI",
	"MEHDI CHRAIBI", "NADIA FASSI", "OMAR BERRADA", "LEILA SQALLI",
}

var prices = []int64{150, 200, 250, 300, 500}

func main() {
	var (
		outputDir      = flag.String("output-dir", "../generated", "Output directory for generated files")
		count          = flag.Int("count", 100, "Number of transfers to generate")
		startDate      = flag.String("start-date", "2024-01-01", "Start date (YYYY-MM-DD)")
		endDate        = flag.String("end-date", "2024-03-31", "End date (YYYY-MM-DD)")
		codes          = flag.String("codes", "", "Comma-separated billing codes to reference (random codes when empty)")
		noCodeRatio    = flag.Float64("no-code-ratio", 0.1, "Ratio of transfers without a billing code")
		duplicateRatio = flag.Float64("duplicate-ratio", 0.05, "Ratio of transfers repeated verbatim")
		belowMinRatio  = flag.Float64("below-min-ratio", 0.05, "Ratio of transfers under the statement minimum")
		seed           = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("Invalid end date: %v", err)
	}
	if end.Before(start) {
		log.Fatal("end date is before start date")
	}

	generator := &TransferGenerator{
		Count:          *count,
		StartDate:      start,
		EndDate:        end,
		NoCodeRatio:    *noCodeRatio,
		DuplicateRatio: *duplicateRatio,
		BelowMinRatio:  *belowMinRatio,
		rnd:            rand.New(rand.NewSource(*seed)),
	}
	if *codes != "" {
		generator.Codes = strings.Split(*codes, ",")
	}

	if err := os.MkdirAll(filepath.Join(*outputDir, "receipts"), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	transfers := generator.Generate()

	rowsPath := filepath.Join(*outputDir, "rows.csv")
	if err := WriteRows(rowsPath, transfers); err != nil {
		log.Fatalf("Failed to write rows: %v", err)
	}
	statementPath := filepath.Join(*outputDir, "statement.txt")
	if err := WriteStatement(statementPath, transfers); err != nil {
		log.Fatalf("Failed to write statement: %v", err)
	}
	receipts, err := WriteReceipts(filepath.Join(*outputDir, "receipts"), transfers)
	if err != nil {
		log.Fatalf("Failed to write receipts: %v", err)
	}

	fmt.Printf("Generated %d transfers\n", len(transfers))
	fmt.Printf("Rows: %s\n", rowsPath)
	fmt.Printf("Statement: %s\n", statementPath)
	fmt.Printf("Receipts: %d\n", receipts)
	fmt.Printf("Seed used: %d\n", *seed)
}

// Generate creates Count transfers
func (tg *TransferGenerator) Generate() []Transfer {
	transfers := make([]Transfer, 0, tg.Count)
	span := int(tg.EndDate.Sub(tg.StartDate).Hours()/24) + 1

	for len(transfers) < tg.Count {
		if len(transfers) > 0 && tg.rnd.Float64() < tg.DuplicateRatio {
			transfers = append(transfers, transfers[tg.rnd.Intn(len(transfers))])
			continue
		}

		t := Transfer{
			Date:   tg.StartDate.AddDate(0, 0, tg.rnd.Intn(span)),
			Amount: decimal.NewFromInt(prices[tg.rnd.Intn(len(prices))]),
			Sender: senders[tg.rnd.Intn(len(senders))],
		}
		if tg.rnd.Float64() < tg.BelowMinRatio {
			t.Amount = decimal.NewFromInt(int64(10 + tg.rnd.Intn(80)))
		}
		if tg.rnd.Float64() >= tg.NoCodeRatio {
			t.Code = tg.code()
		}
		transfers = append(transfers, t)
	}
	return transfers
}

func (tg *TransferGenerator) code() string {
	if len(tg.Codes) > 0 {
		return strings.TrimSpace(tg.Codes[tg.rnd.Intn(len(tg.Codes))])
	}
	if tg.rnd.Intn(2) == 0 {
		return fmt.Sprintf("MOD-%04d", tg.rnd.Intn(10000))
	}
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var b strings.Builder
	b.WriteString("MOD")
	for i := 0; i < 8; i++ {
		b.WriteByte(alphabet[tg.rnd.Intn(len(alphabet))])
	}
	return b.String()
}

func frenchAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func description(t Transfer) string {
	if t.Code == "" {
		return "VIREMENT RECU " + t.Sender
	}
	return fmt.Sprintf("VIREMENT RECU %s REF %s", t.Sender, t.Code)
}

// WriteRows writes the transfers as a row file
func WriteRows(filename string, transfers []Transfer) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "amount", "description", "senderName"}); err != nil {
		return err
	}
	for _, t := range transfers {
		record := []string{
			t.Date.Format("02/01/2006"),
			t.Amount.StringFixed(2),
			description(t),
			t.Sender,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteStatement writes a plain text bank statement, one transfer per line
func WriteStatement(filename string, transfers []Transfer) error {
	var b strings.Builder
	b.WriteString("RELEVE DE COMPTE\n")
	b.WriteString("DATE        LIBELLE                                              MONTANT\n")
	for _, t := range transfers {
		fmt.Fprintf(&b, "%s  %-52s %s MAD\n", t.Date.Format("02/01/2006"), description(t), frenchAmount(t.Amount))
	}
	return os.WriteFile(filename, []byte(b.String()), 0644)
}

// WriteReceipts writes one transfer receipt per transfer referencing a
// receipt code and returns how many it wrote
func WriteReceipts(dir string, transfers []Transfer) (int, error) {
	n := 0
	for _, t := range transfers {
		if !strings.HasPrefix(t.Code, "MOD") || strings.HasPrefix(t.Code, "MOD-") {
			continue
		}
		n++
		body := fmt.Sprintf("RECU DE VIREMENT\nDate: %s\nDonneur d'ordre: %s\nMotif: %s\nMontant: %s MAD\n",
			t.Date.Format("02/01/2006"), t.Sender, t.Code, frenchAmount(t.Amount))
		name := filepath.Join(dir, fmt.Sprintf("receipt_%04d.txt", n))
		if err := os.WriteFile(name, []byte(body), 0644); err != nil {
			return n, err
		}
	}
	return n, nil
}

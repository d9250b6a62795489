package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bank-transfer-reconciler/cmd/reconciler/config"
	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/parsers"
	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/internal/reporter"
	"bank-transfer-reconciler/pkg/errors"
)

// Flags for the reconcile commands
var (
	documentFiles  []string
	documentSource string
	showProgress   bool

	rowsFile      string
	rowsDelimiter string

	outputFormat string
	outputFile   string
)

var reconcileDocumentCmd = &cobra.Command{
	Use:   "reconcile-document",
	Short: "Reconcile bank statements or transfer receipts",
	Long: `Reconcile-document extracts transfer candidates from one or more documents
and applies them to the matching billing records.

Statements mark records paid immediately. Receipts create payments that wait
for an administrator to confirm them.

Examples:
  reconciler reconcile-document --file statement.pdf
  reconciler reconcile-document --file a.pdf,b.txt --progress
  reconciler reconcile-document --file receipt.jpg --source receipt --output-format json`,
	PreRunE: validateDocumentFlags,
	RunE:    runReconcileDocuments,
}

var reconcileRowsCmd = &cobra.Command{
	Use:   "reconcile-rows",
	Short: "Reconcile a CSV file of transfer rows",
	Long: `Reconcile-rows reads structured transfer rows (date, amount, description,
senderName) and reconciles each row against the billing records.

Examples:
  reconciler reconcile-rows --file transfers.csv
  reconciler reconcile-rows --file transfers.csv --delimiter ';' --output-format csv --output-file out.csv`,
	PreRunE: validateRowsFlags,
	RunE:    runReconcileRows,
}

func init() {
	rootCmd.AddCommand(reconcileDocumentCmd)
	rootCmd.AddCommand(reconcileRowsCmd)

	docFlags := reconcileDocumentCmd.Flags()
	docFlags.StringSliceVar(&documentFiles, "file", []string{}, "comma-separated document paths (required)")
	docFlags.StringVar(&documentSource, "source", string(models.SourceStatement), "document kind: statement or receipt")
	docFlags.BoolVar(&showProgress, "progress", false, "show progress indicators")
	addOutputFlags(reconcileDocumentCmd)
	reconcileDocumentCmd.MarkFlagRequired("file")

	rowFlags := reconcileRowsCmd.Flags()
	rowFlags.StringVar(&rowsFile, "file", "", "path to the row CSV file (required)")
	rowFlags.StringVar(&rowsDelimiter, "delimiter", ",", "CSV delimiter: ',', ';' or 'tab'")
	addOutputFlags(reconcileRowsCmd)
	reconcileRowsCmd.MarkFlagRequired("file")

	viper.BindPFlag("document.source", docFlags.Lookup("source"))
	viper.BindPFlag("rows.delimiter", rowFlags.Lookup("delimiter"))
}

func addOutputFlags(c *cobra.Command) {
	c.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	c.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
}

func validateDocumentFlags(cmd *cobra.Command, args []string) error {
	documentSource = viper.GetString("document.source")

	if len(documentFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "file", nil, nil).
			WithSuggestion("pass at least one document with --file")
	}
	for i, path := range documentFiles {
		if err := validateFileExists(path, fmt.Sprintf("document %d", i+1)); err != nil {
			return err
		}
	}
	if _, err := parseSource(documentSource); err != nil {
		return err
	}
	return validateOutputFlags()
}

func validateRowsFlags(cmd *cobra.Command, args []string) error {
	rowsDelimiter = viper.GetString("rows.delimiter")

	if err := validateFileExists(rowsFile, "row file"); err != nil {
		return err
	}
	if _, err := config.CreateRowParserConfig(rowsDelimiter); err != nil {
		return errors.ValidationError(errors.CodeInvalidFormat, "delimiter", rowsDelimiter, err)
	}
	return validateOutputFlags()
}

func validateOutputFlags() error {
	if _, err := config.CreateReportConfig(outputFormat); err != nil {
		return errors.ValidationError(errors.CodeInvalidFormat, "output-format", outputFormat, err)
	}
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}
	return nil
}

func parseSource(value string) (models.PaymentSource, error) {
	source := models.PaymentSource(strings.ToLower(strings.TrimSpace(value)))
	if !source.IsValid() {
		return "", errors.ValidationError(errors.CodeInvalidArgument, "source", value, nil).
			WithSuggestion("use 'statement' or 'receipt'")
	}
	return source, nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

// readDocuments loads every path into a document request
func readDocuments(paths []string, source models.PaymentSource) ([]reconciler.DocumentRequest, error) {
	reqs := make([]reconciler.DocumentRequest, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.ExtractionError(errors.CodeUnreadableDocument, path, err)
		}
		reqs = append(reqs, reconciler.DocumentRequest{
			Name:   filepath.Base(path),
			Data:   data,
			Source: source,
		})
	}
	return reqs, nil
}

func runReconcileDocuments(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	source, err := parseSource(documentSource)
	if err != nil {
		return err
	}
	reqs, err := readDocuments(documentFiles, source)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Reconciling %d %s document(s): %s\n", len(reqs), source, strings.Join(documentFiles, ", "))
	}

	app, err := loadApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if showProgress {
		app.orchestrator.AddProgressCallback(func(p reconciler.ReconciliationProgress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				p.CompletedDocuments, p.TotalDocuments, p.CurrentStep, p.PercentComplete)
		})
	}

	outcomes := app.orchestrator.ReconcileDocuments(ctx, reqs)
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n")
	}

	if err := writeReport(outcomes); err != nil {
		return err
	}
	return firstFailure(outcomes)
}

func runReconcileRows(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	app, err := loadApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	parserConfig, err := config.CreateRowParserConfig(rowsDelimiter)
	if err != nil {
		return err
	}
	parser, err := parsers.NewRowParser(parserConfig, app.logger)
	if err != nil {
		return err
	}

	report, stats, err := app.orchestrator.ReconcileRowsFile(ctx, rowsFile, parser)
	if err != nil {
		return err
	}
	if stats != nil && stats.HasErrors() {
		rowErrs := make([]error, 0, len(stats.Errors))
		for _, parseErr := range stats.Errors {
			rowErrs = append(rowErrs, parseErr)
		}
		fmt.Fprintf(os.Stderr, "%s\n%s\n", stats, FormatValidationErrors(rowErrs))
	}

	return writeReport([]reconciler.DocumentOutcome{{Name: filepath.Base(rowsFile), Report: report}})
}

func writeReport(outcomes []reconciler.DocumentOutcome) error {
	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}
	return generator.WriteFile(outcomes, outputFile)
}

// firstFailure returns an error only when no document could be reconciled
func firstFailure(outcomes []reconciler.DocumentOutcome) error {
	var first error
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			return nil
		}
		if first == nil {
			first = outcome.Err
		}
	}
	return first
}

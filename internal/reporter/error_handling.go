package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_config", config, err).
			WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.OrGlobal(log).WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the outcomes, falling back to console output
// when a structured format fails and to a backup file when the output file
// cannot be written.
func (srg *SafeReportGenerator) GenerateReportSafely(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format":    srg.config.Format,
		"output":    getWriterDescription(writer),
		"documents": len(outcomes),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(outcomes, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(outcomes, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}
	return nil
}

func (srg *SafeReportGenerator) validateInputs(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	if len(outcomes) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "outcomes", nil, nil).
			WithSuggestion("Provide at least one reconciliation report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	return nil
}

func (srg *SafeReportGenerator) generateWithFallback(outcomes []reconciler.DocumentOutcome, writer io.Writer) error {
	err := srg.GenerateOutcomes(outcomes, writer)
	if err == nil {
		return nil
	}
	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if file, ok := writer.(*os.File); ok && file.Name() != "" && isFileError(err) {
		return srg.generateWithOutputFallback(outcomes, file, err)
	}
	if srg.config.Format != FormatConsole {
		return srg.generateWithFormatFallback(outcomes, writer, err)
	}
	return wrapGenerationError(err)
}

func (srg *SafeReportGenerator) generateWithFormatFallback(outcomes []reconciler.DocumentOutcome, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateOutcomes(outcomes, writer); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err))
	}

	srg.logger.WithField("fallback_format", FormatConsole).Info("Report generated using format fallback")
	return nil
}

func (srg *SafeReportGenerator) generateWithOutputFallback(outcomes []reconciler.DocumentOutcome, file *os.File, originalErr error) error {
	originalPath := file.Name()
	backupPath := generateBackupPath(originalPath)

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	if err := srg.GenerateOutcomes(outcomes, backupFile); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err))
	}

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Warn("Report saved to backup location")
	return nil
}

// WriteFile renders the outcomes to path, or to stdout when path is empty
func (srg *SafeReportGenerator) WriteFile(outcomes []reconciler.DocumentOutcome, path string) error {
	if path == "" {
		return srg.GenerateReportSafely(outcomes, os.Stdout)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "create_report_file", err).
			WithContext("path", path).
			WithSuggestion("Check that the output directory exists and is writable")
	}
	defer file.Close()

	return srg.GenerateReportSafely(outcomes, file)
}

func isFileError(err error) bool {
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}

func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

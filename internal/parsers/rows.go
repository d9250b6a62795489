package parsers

import (
	"context"
	"fmt"
	"io"
	"os"

	"bank-transfer-reconciler/internal/extractor"
	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// RowParser parses operator row files
type RowParser struct {
	*BaseParser
	config *RowParserConfig
}

// NewRowParser creates a new RowParser with the given configuration
func NewRowParser(config *RowParserConfig, log logger.Logger) (*RowParser, error) {
	if config == nil {
		config = DefaultRowParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid row parser configuration: %w", err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &RowParser{
		BaseParser: NewBaseParser(parseConfig, log),
		config:     config,
	}, nil
}

// ParseFile opens path and parses it as a row file
func (rp *RowParser) ParseFile(ctx context.Context, path string) ([]models.Row, *ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NotFoundError(errors.CodeRecordNotFound, path, err).
				WithSuggestion("Check the file path")
		}
		return nil, nil, errors.InternalError(errors.CodeUnexpectedError, "open_row_file", err)
	}
	defer file.Close()

	return rp.ParseRows(ctx, file)
}

// ParseRows parses every row in r. Rows that fail to parse or validate are
// recorded in the stats and skipped; only a missing required column fails
// the whole file.
func (rp *RowParser) ParseRows(ctx context.Context, r io.Reader) ([]models.Row, *ParseStats, error) {
	reader := rp.NewReader(r)
	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	defaults := []string{
		rp.config.DateColumn,
		rp.config.AmountColumn,
		rp.config.DescriptionColumn,
		rp.config.SenderNameColumn,
	}
	if err := rp.ReadHeaders(reader, parseCtx, defaults); err != nil {
		return nil, stats, err
	}

	columns := make(map[string]int, 4)
	for _, field := range []string{FieldDate, FieldAmount, FieldDescription, FieldSenderName} {
		columns[field] = parseCtx.GetColumnIndex(rp.config.Candidates(field)...)
	}
	for _, field := range []string{FieldDate, FieldAmount, FieldDescription} {
		if columns[field] < 0 {
			return nil, stats, errors.ValidationError(errors.CodeMissingField, rp.config.GetColumnName(field), "", nil).
				WithSuggestion(fmt.Sprintf("Add a '%s' column or one of its aliases: %v", field, rp.config.ColumnAliases[field])).
				WithContext("available_headers", parseCtx.Headers)
		}
	}

	var rows []models.Row
	for {
		record, err := rp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rows, stats, ctxErr
			}
			if parseErr, ok := err.(*ParseError); ok {
				stats.AddError(parseErr)
				continue
			}
			stats.AddError(&ParseError{Line: parseCtx.LineNumber + 1, Message: "failed to read record", Err: err})
			continue
		}

		stats.RecordsParsed++
		row, parseErr := rp.parseRow(record, columns, parseCtx.LineNumber)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		rows = append(rows, row)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	rp.logger.WithFields(logger.Fields{
		"rows":   stats.RecordsValid,
		"errors": stats.ErrorCount,
	}).Debug("Parsed row file")
	return rows, stats, nil
}

func (rp *RowParser) parseRow(record []string, columns map[string]int, line int) (models.Row, *ParseError) {
	amountStr := fieldValue(record, columns[FieldAmount])
	amount, err := extractor.ParseAmount(amountStr)
	if err != nil {
		return models.Row{}, &ParseError{Line: line, Field: FieldAmount, Value: amountStr, Message: "invalid amount", Err: err}
	}

	dateStr := fieldValue(record, columns[FieldDate])
	date, err := extractor.NormalizeDate(dateStr)
	if err != nil {
		return models.Row{}, &ParseError{Line: line, Field: FieldDate, Value: dateStr, Message: "invalid date", Err: err}
	}

	row := models.Row{
		Date:        date,
		Amount:      amount,
		Description: fieldValue(record, columns[FieldDescription]),
		SenderName:  fieldValue(record, columns[FieldSenderName]),
	}
	if err := row.Validate(); err != nil {
		return models.Row{}, &ParseError{Line: line, Field: FieldDescription, Value: row.Description, Message: "row validation failed", Err: err}
	}
	return row, nil
}

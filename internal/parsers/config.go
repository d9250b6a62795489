package parsers

import (
	"fmt"
	"strings"
)

// Standard field names of an operator row file
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldSenderName  = "senderName"
)

// RowParserConfig describes the column layout of an operator row file
type RowParserConfig struct {
	DateColumn        string              `json:"date_column" mapstructure:"date_column"`
	AmountColumn      string              `json:"amount_column" mapstructure:"amount_column"`
	DescriptionColumn string              `json:"description_column" mapstructure:"description_column"`
	SenderNameColumn  string              `json:"sender_name_column" mapstructure:"sender_name_column"`
	HasHeader         bool                `json:"has_header" mapstructure:"has_header"`
	Delimiter         rune                `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases     map[string][]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultRowParserConfig returns the layout used by the row template, with
// aliases for common French and English bank export headers.
func DefaultRowParserConfig() *RowParserConfig {
	return &RowParserConfig{
		DateColumn:        FieldDate,
		AmountColumn:      FieldAmount,
		DescriptionColumn: FieldDescription,
		SenderNameColumn:  FieldSenderName,
		HasHeader:         true,
		Delimiter:         ',',
		ColumnAliases: map[string][]string{
			FieldDate:        {"transaction_date", "date_operation", "date opération", "date valeur", "booking date"},
			FieldAmount:      {"montant", "credit", "crédit", "value"},
			FieldDescription: {"libelle", "libellé", "memo", "motif", "reference", "details"},
			FieldSenderName:  {"sender", "sender_name", "emetteur", "émetteur", "donneur d'ordre", "name"},
		},
	}
}

// Validate checks if the row parser configuration is valid
func (c *RowParserConfig) Validate() error {
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if strings.TrimSpace(c.DescriptionColumn) == "" {
		return fmt.Errorf("description column cannot be empty")
	}
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	return nil
}

// GetColumnName returns the configured column name for a standard field
func (c *RowParserConfig) GetColumnName(field string) string {
	switch field {
	case FieldDate:
		return c.DateColumn
	case FieldAmount:
		return c.AmountColumn
	case FieldDescription:
		return c.DescriptionColumn
	case FieldSenderName:
		return c.SenderNameColumn
	default:
		return field
	}
}

// Candidates returns the configured column name followed by its aliases
func (c *RowParserConfig) Candidates(field string) []string {
	names := []string{c.GetColumnName(field)}
	return append(names, c.ColumnAliases[field]...)
}

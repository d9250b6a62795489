package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
)

// MatchingConfig holds configuration for the matching engine
type MatchingConfig struct {
	// Source is the ingestion path of the candidates being matched.
	Source models.PaymentSource `json:"source"`
	// MinAmount is the smallest amount a matched candidate may carry.
	MinAmount decimal.Decimal `json:"min_amount"`
	// Now is the clock used to derive expiry of paid records.
	Now func() time.Time `json:"-"`
}

// DefaultMatchingConfig returns the configuration for a payment source
func DefaultMatchingConfig(source models.PaymentSource) *MatchingConfig {
	if !source.IsValid() {
		source = models.SourceStatement
	}
	return &MatchingConfig{
		Source:    source,
		MinAmount: source.MinAmount(),
		Now:       time.Now,
	}
}

func (c *MatchingConfig) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Validate checks the configuration
func (c *MatchingConfig) Validate() error {
	if !c.Source.IsValid() {
		return fmt.Errorf("invalid payment source: %s", c.Source)
	}
	if c.MinAmount.IsNegative() {
		return fmt.Errorf("minimum amount cannot be negative: %s", c.MinAmount)
	}
	if c.MinAmount.LessThan(c.Source.MinAmount()) {
		return fmt.Errorf("minimum amount %s is below the %s minimum %s", c.MinAmount, c.Source, c.Source.MinAmount())
	}
	return nil
}

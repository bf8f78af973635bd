package matcher

import (
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/fiscal"
	gsterrors "gst-reconciliation-service/pkg/errors"
)

// Config holds the knobs for one matching run. A Config is read-only once
// constructed; concurrent reconciliation calls may share one safely.
type Config struct {
	// Tolerance is the per-record amount tolerance in rupees. Two sides of
	// a pair whose totals differ by no more than this are MATCHED.
	Tolerance decimal.Decimal

	// Period is the selected reconciliation window. Records dated outside
	// it land in the OUT_OF_PERIOD bucket no matter how well they match.
	Period fiscal.Period
}

// DefaultTolerance is the one-rupee tolerance the UI defaults to.
var DefaultTolerance = decimal.NewFromInt(1)

// NewConfig builds a validated matching configuration. Validation failures
// surface before any matching work begins.
func NewConfig(tolerance decimal.Decimal, period fiscal.Period) (*Config, error) {
	if tolerance.IsNegative() {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidTolerance, "tolerance", tolerance.String(), nil)
	}

	if err := period.Validate(); err != nil {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidPeriod, "period", period, err)
	}

	return &Config{Tolerance: tolerance, Period: period}, nil
}

// Validate re-checks an externally constructed Config.
func (c *Config) Validate() error {
	if c == nil {
		return gsterrors.ConfigurationError(gsterrors.CodeMissingConfig, "matcher_config", nil, nil)
	}
	_, err := NewConfig(c.Tolerance, c.Period)
	return err
}

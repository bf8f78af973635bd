package reconciler

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/fiscal"
	gsterrors "gst-reconciliation-service/pkg/errors"
)

// Request carries the period and tolerance selection shared by every
// reconciliation operation, in the wire spellings the callers send.
type Request struct {
	SelectedFY   string `json:"selected_fy"`        // "2024-2025"
	PeriodType   string `json:"period_type"`        // MONTHLY | QUARTERLY | ANNUALLY
	PeriodValue  string `json:"selected_period_val"` // "July", "7", "Q2 (Jul-Sep)", "Entire Year"
	Tolerance    string `json:"tolerance"`
	ForceRefresh bool   `json:"force_refresh"`
}

// ManualRequest is a fully offline run over two uploaded template files.
type ManualRequest struct {
	Request
	FileA io.Reader
	FileB io.Reader
}

// BooksRequest pairs a period selection with an uploaded books file; the
// other side comes from the portal.
type BooksRequest struct {
	Request
	FileBooks io.Reader
}

// Options is the resolved, validated form of a Request.
type Options struct {
	Period       fiscal.Period
	Tolerance    decimal.Decimal
	ForceRefresh bool
}

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

// parseMonth accepts a calendar month by name ("July") or number ("7").
func parseMonth(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if m, ok := monthNames[s]; ok {
		return m, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return n, true
	}
	return 0, false
}

// parseQuarter accepts "Q2" and the labelled form "Q2 (Jul-Sep)".
func parseQuarter(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	if len(s) == 2 && s[0] == 'Q' && s[1] >= '1' && s[1] <= '4' {
		return int(s[1] - '0'), true
	}
	return 0, false
}

// Resolve validates the selection and turns it into matcher options. All
// configuration problems surface here, before any file is read or any
// matching work begins.
func (r Request) Resolve(now time.Time) (*Options, error) {
	fyStart, err := fiscal.ParseFY(r.SelectedFY)
	if err != nil {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidPeriod, "selected_fy", r.SelectedFY, err)
	}

	granularity, err := fiscal.ParseGranularity(r.PeriodType)
	if err != nil {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidPeriod, "period_type", r.PeriodType, err)
	}

	period := fiscal.Period{FYStart: fyStart, Granularity: granularity}
	switch granularity {
	case fiscal.Month:
		m, ok := parseMonth(r.PeriodValue)
		if !ok {
			return nil, gsterrors.ConfigurationError(
				gsterrors.CodeInvalidPeriod, "selected_period_val", r.PeriodValue, nil).
				WithSuggestion("provide a month name or number for a monthly reconciliation")
		}
		period.Value = m
	case fiscal.Quarter:
		q, ok := parseQuarter(r.PeriodValue)
		if !ok {
			return nil, gsterrors.ConfigurationError(
				gsterrors.CodeInvalidPeriod, "selected_period_val", r.PeriodValue, nil).
				WithSuggestion("provide a quarter (Q1-Q4) for a quarterly reconciliation")
		}
		period.Value = q
	}

	if err := period.Validate(); err != nil {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidPeriod, "period", period.Label(), err)
	}
	if period.IsFuture(now) {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidPeriod, "period", period.Label(), nil).
			WithSuggestion("the selected period has not started yet")
	}

	tolerance := decimal.NewFromInt(1)
	if strings.TrimSpace(r.Tolerance) != "" {
		tolerance, err = decimal.NewFromString(strings.TrimSpace(r.Tolerance))
		if err != nil {
			return nil, gsterrors.ConfigurationError(
				gsterrors.CodeInvalidTolerance, "tolerance", r.Tolerance, err)
		}
	}
	if tolerance.IsNegative() {
		return nil, gsterrors.ConfigurationError(
			gsterrors.CodeInvalidTolerance, "tolerance", r.Tolerance, nil)
	}

	return &Options{
		Period:       period,
		Tolerance:    tolerance,
		ForceRefresh: r.ForceRefresh,
	}, nil
}

// Package fiscal implements Indian financial-year period math. The Indian
// tax calendar runs April through March: months 4-12 of a financial year
// fall in its start calendar year, months 1-3 in the next.
package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Granularity selects how a reconciliation period is sliced.
type Granularity string

const (
	Month   Granularity = "MONTH"
	Quarter Granularity = "QUARTER"
	Year    Granularity = "YEAR"
)

// ParseGranularity maps the period-type spellings used by callers
// (MONTHLY/QUARTERLY/ANNUALLY and their UI variants) onto a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MONTH", "MONTHLY":
		return Month, nil
	case "QUARTER", "QUARTERLY":
		return Quarter, nil
	case "YEAR", "ANNUALLY", "FY", "ANNUAL":
		return Year, nil
	default:
		return "", fmt.Errorf("unknown period type '%s'", s)
	}
}

// Period is one selectable reconciliation window within a financial year.
// FYStart is the calendar year the FY begins in: 2024 means FY 2024-25.
// Value holds the month (1-12) or quarter (1-4); it is ignored for Year.
type Period struct {
	FYStart     int         `json:"fy_start"`
	Granularity Granularity `json:"granularity"`
	Value       int         `json:"value,omitempty"`
}

// Validate checks internal consistency of the period.
func (p Period) Validate() error {
	if p.FYStart < 1991 {
		return fmt.Errorf("financial year start %d is out of range", p.FYStart)
	}

	switch p.Granularity {
	case Month:
		if p.Value < 1 || p.Value > 12 {
			return fmt.Errorf("month must be 1-12, got %d", p.Value)
		}
	case Quarter:
		if p.Value < 1 || p.Value > 4 {
			return fmt.Errorf("quarter must be 1-4, got %d", p.Value)
		}
	case Year:
		// no value needed
	default:
		return fmt.Errorf("unknown granularity '%s'", p.Granularity)
	}

	return nil
}

// CalendarYearOf resolves which calendar year a FY month falls in: April
// through December belong to the start year, January through March to the
// next.
func CalendarYearOf(fyStart, month int) int {
	if month >= 4 {
		return fyStart
	}
	return fyStart + 1
}

// quarterStartMonth maps Q1-Q4 to their first calendar month.
// Q1=Apr-Jun, Q2=Jul-Sep, Q3=Oct-Dec, Q4=Jan-Mar.
func quarterStartMonth(q int) int {
	if q == 4 {
		return 1
	}
	return 3*q + 1
}

// QuarterEndMonth returns the calendar month a quarter ends in:
// Q1→Jun, Q2→Sep, Q3→Dec, Q4→Mar (of the next calendar year).
func QuarterEndMonth(q int) int {
	if q == 4 {
		return 3
	}
	return 3*q + 3
}

// Bounds returns the half-open interval [start, end) of the period in UTC.
func (p Period) Bounds() (time.Time, time.Time) {
	switch p.Granularity {
	case Month:
		year := CalendarYearOf(p.FYStart, p.Value)
		start := time.Date(year, time.Month(p.Value), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case Quarter:
		month := quarterStartMonth(p.Value)
		year := CalendarYearOf(p.FYStart, month)
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)
	default:
		start := time.Date(p.FYStart, time.April, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
}

// Contains reports whether a date falls inside the period. Only the calendar
// day matters; time-of-day is ignored.
func (p Period) Contains(d time.Time) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	start, end := p.Bounds()
	return !day.Before(start) && day.Before(end)
}

// Months enumerates the (calendarYear, month) pairs the period spans, in
// FY order.
func (p Period) Months() []YearMonth {
	start, end := p.Bounds()
	var out []YearMonth
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 1, 0) {
		out = append(out, YearMonth{Year: cur.Year(), Month: int(cur.Month())})
	}
	return out
}

// YearMonth is a calendar year and month pair.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Label returns the YearMonth display form, e.g. "Jul 2024".
func (ym YearMonth) Label() string {
	return fmt.Sprintf("%s %d", time.Month(ym.Month).String()[:3], ym.Year)
}

// fyLabel renders "2024-25" for FYStart 2024.
func fyLabel(fyStart int) string {
	return fmt.Sprintf("%d-%02d", fyStart, (fyStart+1)%100)
}

// Label returns the human-readable period label used in result output, e.g.
// "July 2024", "Q2 (Jul-Sep) FY 2024-25", "FY 2024-25".
func (p Period) Label() string {
	switch p.Granularity {
	case Month:
		return fmt.Sprintf("%s %d", time.Month(p.Value), CalendarYearOf(p.FYStart, p.Value))
	case Quarter:
		names := map[int]string{1: "Q1 (Apr-Jun)", 2: "Q2 (Jul-Sep)", 3: "Q3 (Oct-Dec)", 4: "Q4 (Jan-Mar)"}
		return fmt.Sprintf("%s FY %s", names[p.Value], fyLabel(p.FYStart))
	default:
		return "FY " + fyLabel(p.FYStart)
	}
}

// CurrentFYStart computes the financial year a date belongs to. April or
// later is the current calendar year; January-March belong to the FY that
// started the previous year.
func CurrentFYStart(today time.Time) int {
	if today.Month() >= time.April {
		return today.Year()
	}
	return today.Year() - 1
}

// FYOption is one selectable financial year.
type FYOption struct {
	Start int    `json:"start"`
	Label string `json:"label"` // "FY 2024-25"
	Value string `json:"value"` // "2024-2025", the wire form
}

// FYOptions enumerates the last n financial years, newest first. It is
// evaluated against today on every call; "now" is never cached.
func FYOptions(today time.Time, n int) []FYOption {
	current := CurrentFYStart(today)
	options := make([]FYOption, 0, n)
	for i := 0; i < n; i++ {
		start := current - i
		options = append(options, FYOption{
			Start: start,
			Label: "FY " + fyLabel(start),
			Value: fmt.Sprintf("%d-%d", start, start+1),
		})
	}
	return options
}

// ParseFY parses a financial year in the "2024-2025" or "2024-25" wire form
// (a bare "2024" is also accepted) into its start year.
func ParseFY(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("financial year is required")
	}

	parts := strings.SplitN(s, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid financial year '%s'", s)
	}

	if len(parts) == 2 {
		endStr := strings.TrimSpace(parts[1])
		end, err := strconv.Atoi(endStr)
		if err != nil {
			return 0, fmt.Errorf("invalid financial year '%s'", s)
		}
		if len(endStr) == 2 {
			end += (start / 100) * 100
		}
		if end != start+1 {
			return 0, fmt.Errorf("financial year '%s' must span consecutive years", s)
		}
	}

	return start, nil
}

// IsFutureMonth reports whether a FY month resolves to a calendar
// year/month strictly after today's.
func IsFutureMonth(fyStart, month int, today time.Time) bool {
	year := CalendarYearOf(fyStart, month)
	if year != today.Year() {
		return year > today.Year()
	}
	return month > int(today.Month())
}

// IsFutureQuarter reports whether a FY quarter's end month is strictly
// after today's calendar year/month.
func IsFutureQuarter(fyStart, quarter int, today time.Time) bool {
	endMonth := QuarterEndMonth(quarter)
	year := CalendarYearOf(fyStart, endMonth)
	if year != today.Year() {
		return year > today.Year()
	}
	return endMonth > int(today.Month())
}

// IsFuture reports whether the whole period lies in the future relative to
// today. A year period is future only if its first month is.
func (p Period) IsFuture(today time.Time) bool {
	switch p.Granularity {
	case Month:
		return IsFutureMonth(p.FYStart, p.Value, today)
	case Quarter:
		return IsFutureQuarter(p.FYStart, p.Value, today)
	default:
		return IsFutureMonth(p.FYStart, 4, today)
	}
}

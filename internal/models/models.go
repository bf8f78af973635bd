// Package models defines the canonical transaction shape shared by every
// reconciliation source: GST portal returns (GSTR-1/2A/2B/3B) and the
// taxpayer's books of accounts.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceSystem identifies which ledger a transaction line came from.
type SourceSystem string

const (
	SourcePortal1  SourceSystem = "PORTAL_1"
	SourcePortal2A SourceSystem = "PORTAL_2A"
	SourcePortal2B SourceSystem = "PORTAL_2B"
	SourcePortal3B SourceSystem = "PORTAL_3B"
	SourceBooks    SourceSystem = "BOOKS"
)

// String returns the string representation of SourceSystem
func (s SourceSystem) String() string {
	return string(s)
}

// IsValid checks if the source system is a known value
func (s SourceSystem) IsValid() bool {
	switch s {
	case SourcePortal1, SourcePortal2A, SourcePortal2B, SourcePortal3B, SourceBooks:
		return true
	}
	return false
}

// RecordType classifies a supply line per GST return section.
type RecordType string

const (
	RecordB2B      RecordType = "B2B"
	RecordB2C      RecordType = "B2C"
	RecordCDN      RecordType = "CDN"
	RecordExport   RecordType = "EXPORT"
	RecordNilRated RecordType = "NIL_RATED"
	RecordNonGST   RecordType = "NON_GST"
	RecordISD      RecordType = "ISD"
	RecordImport   RecordType = "IMPORT"
)

// String returns the string representation of RecordType
func (r RecordType) String() string {
	return string(r)
}

// ParseRecordType parses a record type from the spellings that show up in
// books exports and portal payloads. Blank defaults to B2B, the dominant
// record type in 2B data.
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "B2B", "REGULAR":
		return RecordB2B, nil
	case "B2C", "B2CS", "B2CL":
		return RecordB2C, nil
	case "CDN", "CDNR", "CREDIT NOTE", "DEBIT NOTE", "CREDIT/DEBIT NOTE":
		return RecordCDN, nil
	case "EXPORT", "EXP", "EXPORTS", "SEZ":
		return RecordExport, nil
	case "NIL_RATED", "NIL RATED", "NIL", "EXEMPT", "NIL/EXEMPT":
		return RecordNilRated, nil
	case "NON_GST", "NON-GST", "NON GST", "NONGST":
		return RecordNonGST, nil
	case "ISD":
		return RecordISD, nil
	case "IMPORT", "IMP", "IMPORTS", "IMPG", "IMPS":
		return RecordImport, nil
	default:
		return "", fmt.Errorf("unknown record type '%s'", s)
	}
}

// gstinPattern is the standard 15-character GSTIN layout: 2-digit state
// code, 10-character PAN, entity number, 'Z', checksum.
var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][0-9A-Z]Z[0-9A-Z]$`)

// IsValidGSTIN reports whether s is a well-formed GSTIN.
func IsValidGSTIN(s string) bool {
	return gstinPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// GrossTolerance is the rounding tolerance for the gross-amount invariant:
// grossAmount must equal taxableValue + taxes within one paisa.
var GrossTolerance = decimal.NewFromFloat(0.01)

// Transaction is one ledger line from either source. CounterpartyGSTIN is
// only meaningful when HasGSTIN is true; an absent GSTIN must never collapse
// into an empty string used as a join key.
type Transaction struct {
	Source            SourceSystem    `json:"source"`
	CounterpartyGSTIN string          `json:"gstin,omitempty"`
	HasGSTIN          bool            `json:"has_gstin"`
	Supplier          string          `json:"supplier,omitempty"`
	InvoiceNumber     string          `json:"invoice"`
	InvoiceDate       time.Time       `json:"date"`
	TaxableValue      decimal.Decimal `json:"taxable"`
	IGST              decimal.Decimal `json:"igst"`
	CGST              decimal.Decimal `json:"cgst"`
	SGST              decimal.Decimal `json:"sgst"`
	Cess              decimal.Decimal `json:"cess"`
	GrossAmount       decimal.Decimal `json:"gross"`
	RecordType        RecordType      `json:"type"`
}

// TaxTotal returns IGST + CGST + SGST + Cess.
func (t *Transaction) TaxTotal() decimal.Decimal {
	return t.IGST.Add(t.CGST).Add(t.SGST).Add(t.Cess)
}

// TotalValue returns taxable value plus all tax components. This is the
// amount compared during matching.
func (t *Transaction) TotalValue() decimal.Decimal {
	return t.TaxableValue.Add(t.TaxTotal())
}

// SetGSTIN assigns the counterparty GSTIN. Malformed identifiers are treated
// the same as absent ones ("no PAN/GSTIN available").
func (t *Transaction) SetGSTIN(raw string) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" || !IsValidGSTIN(normalized) {
		t.CounterpartyGSTIN = ""
		t.HasGSTIN = false
		return
	}
	t.CounterpartyGSTIN = normalized
	t.HasGSTIN = true
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if !t.Source.IsValid() {
		return fmt.Errorf("invalid source system: %s", t.Source)
	}

	if strings.TrimSpace(t.InvoiceNumber) == "" {
		return fmt.Errorf("invoice number cannot be empty")
	}

	if t.InvoiceDate.IsZero() {
		return fmt.Errorf("invoice date cannot be zero")
	}

	for _, amt := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"taxable value", t.TaxableValue},
		{"IGST", t.IGST},
		{"CGST", t.CGST},
		{"SGST", t.SGST},
		{"cess", t.Cess},
	} {
		if amt.value.IsNegative() {
			return fmt.Errorf("%s cannot be negative: %s", amt.name, amt.value)
		}
	}

	if diff := t.GrossAmount.Sub(t.TotalValue()).Abs(); diff.GreaterThan(GrossTolerance) {
		return fmt.Errorf("gross amount %s does not equal taxable plus taxes %s",
			t.GrossAmount, t.TotalValue())
	}

	return nil
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	gstin := "-"
	if t.HasGSTIN {
		gstin = t.CounterpartyGSTIN
	}
	return fmt.Sprintf("Transaction{Source: %s, GSTIN: %s, Invoice: %s, Date: %s, Total: %s}",
		t.Source, gstin, t.InvoiceNumber, t.InvoiceDate.Format("2006-01-02"), t.TotalValue())
}

// invoiceJunk matches every character that invoice-number comparison
// ignores: separators, spaces and other punctuation that books exports and
// the portal disagree on ("INV-3" vs "INV3").
var invoiceJunk = regexp.MustCompile(`[^0-9A-Z]`)

// NormalizeInvoice reduces an invoice number to its comparison form:
// uppercase with all non-alphanumerics stripped.
func NormalizeInvoice(s string) string {
	return invoiceJunk.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
}

// ParseAmount parses a currency amount. Blank means zero per the template
// contract; currency symbols and thousand separators are stripped.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	s = strings.ReplaceAll(s, "₹", "")
	s = strings.ReplaceAll(s, "Rs.", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", s, err)
	}

	return d, nil
}

// invoiceDateFormats lists the date spellings accepted from books exports.
// Indian accounting packages are day-first; ISO is accepted for portal data.
var invoiceDateFormats = []string{
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"02-Jan-2006",
	"02-Jan-06",
	"2006-01-02T15:04:05Z07:00",
}

// ParseInvoiceDate parses an invoice date string using the accepted formats.
func ParseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}

	var lastErr error
	for _, format := range invoiceDateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ValidateDateRange checks that an invoice date is a real calendar date in a
// sane range: GST did not exist before 2017 but books carry legacy entries,
// so the floor is 1991; the ceiling is one year past now.
func ValidateDateRange(date time.Time, now time.Time) error {
	min := time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC)
	max := now.AddDate(1, 0, 0)

	if date.Before(min) {
		return fmt.Errorf("date %s is before %s", date.Format("2006-01-02"), min.Format("2006-01-02"))
	}
	if date.After(max) {
		return fmt.Errorf("date %s is more than a year in the future", date.Format("2006-01-02"))
	}
	return nil
}

// Round2 rounds a money amount to two decimal places (paise). All tolerance
// comparisons round first to avoid floating-point drift flagging false
// mismatches.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// AmountsEqualWithin reports whether two amounts are equal within tolerance,
// after 2-decimal rounding of both sides.
func AmountsEqualWithin(a, b, tolerance decimal.Decimal) bool {
	return Round2(a).Sub(Round2(b)).Abs().LessThanOrEqual(tolerance)
}

package parsers

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	gsterrors "gst-reconciliation-service/pkg/errors"
)

var templateHeader = []string{
	"GSTIN/UIN", "Supplier", "Invoice", "Date",
	"Gross Amt", "Taxable", "IGST", "SGST", "CGST", "Cess", "Type",
}

func row(gstin, supplier, invoice, date, gross, taxable, igst, sgst, cgst, cess, typ string) []string {
	return []string{gstin, supplier, invoice, date, gross, taxable, igst, sgst, cgst, cess, typ}
}

func TestNormalizeRowsTemplate(t *testing.T) {
	rows := [][]string{
		row("27AAAAA0000A1Z5", "Acme Traders", "INV001", "15-07-2024", "1180", "1000", "180", "", "", "", "B2B"),
	}

	txs, stats, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.Parsed != 1 {
		t.Fatalf("Expected 1 parsed row, got %d", stats.Parsed)
	}

	tx := txs[0]
	if !tx.HasGSTIN || tx.CounterpartyGSTIN != "27AAAAA0000A1Z5" {
		t.Errorf("Unexpected GSTIN: %q (has=%v)", tx.CounterpartyGSTIN, tx.HasGSTIN)
	}
	if !tx.TaxableValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected taxable 1000, got %s", tx.TaxableValue)
	}
	// Blank numerics default to zero
	if !tx.SGST.IsZero() || !tx.CGST.IsZero() || !tx.Cess.IsZero() {
		t.Error("Expected blank tax columns to default to zero")
	}
	if tx.InvoiceDate.Day() != 15 || int(tx.InvoiceDate.Month()) != 7 {
		t.Errorf("Expected 15 July, got %s", tx.InvoiceDate)
	}
	if tx.RecordType != models.RecordB2B {
		t.Errorf("Expected B2B, got %s", tx.RecordType)
	}
}

func TestNormalizeMissingColumn(t *testing.T) {
	header := []string{"GSTIN/UIN", "Supplier", "Invoice", "Date", "Taxable", "SGST", "CGST", "Cess", "Type"} // no IGST

	_, _, err := NormalizeRows(header, nil, models.SourceBooks, nil)
	if err == nil {
		t.Fatal("Expected error for missing IGST column")
	}

	reconErr, ok := gsterrors.AsReconError(err)
	if !ok {
		t.Fatalf("Expected ReconError, got %T", err)
	}
	if reconErr.Code != gsterrors.CodeMissingColumn {
		t.Errorf("Expected code %s, got %s", gsterrors.CodeMissingColumn, reconErr.Code)
	}
	if !strings.Contains(reconErr.Message, "'IGST'") {
		t.Errorf("Expected column name in message: %q", reconErr.Message)
	}
}

func TestNormalizeHeaderCaseAndWhitespace(t *testing.T) {
	header := []string{
		" gstin/uin ", "SUPPLIER", "invoice", " DATE",
		"gross amt", "TAXABLE", "igst", "sgst", "cgst", "cess", "type",
	}
	rows := [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "2024-07-01", "", "100", "18", "", "", "", ""),
	}

	txs, _, err := NormalizeRows(header, rows, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Expected case-insensitive header match, got %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
}

func TestNormalizeExtraColumnsIgnored(t *testing.T) {
	header := append([]string{"Sr No"}, templateHeader...)
	header = append(header, "Remarks")
	data := append([]string{"1"},
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "", "100", "18", "", "", "", "B2B")...)
	data = append(data, "some remark")

	txs, _, err := NormalizeRows(header, [][]string{data}, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Expected extra columns to be ignored, got %v", err)
	}
	if txs[0].InvoiceNumber != "INV1" {
		t.Errorf("Columns misaligned: invoice = %q", txs[0].InvoiceNumber)
	}
}

func TestNormalizeBadNumberIsRowAddressable(t *testing.T) {
	rows := [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "", "100", "18", "", "", "", "B2B"),
		row("27AAAAA0000A1Z5", "X", "INV2", "01-07-2024", "", "abc", "0", "", "", "", "B2B"),
	}

	_, _, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	if err == nil {
		t.Fatal("Expected error for non-numeric taxable value")
	}

	reconErr, _ := gsterrors.AsReconError(err)
	if reconErr.Code != gsterrors.CodeInvalidAmount {
		t.Errorf("Expected code %s, got %s", gsterrors.CodeInvalidAmount, reconErr.Code)
	}
	// Header is row 1, so the second data row is row 3
	if reconErr.Context["row"] != 3 {
		t.Errorf("Expected row 3, got %v", reconErr.Context["row"])
	}
	if reconErr.Context["column"] != "Taxable" {
		t.Errorf("Expected column Taxable, got %v", reconErr.Context["column"])
	}
}

func TestNormalizeBadDate(t *testing.T) {
	rows := [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "not-a-date", "", "100", "18", "", "", "", "B2B"),
	}

	_, _, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	reconErr, ok := gsterrors.AsReconError(err)
	if !ok || reconErr.Code != gsterrors.CodeInvalidDate {
		t.Fatalf("Expected invalid_date error, got %v", err)
	}

	// Out-of-range dates are rejected the same way
	rows = [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-1985", "", "100", "18", "", "", "", "B2B"),
	}
	_, _, err = NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	reconErr, ok = gsterrors.AsReconError(err)
	if !ok || reconErr.Code != gsterrors.CodeInvalidDate {
		t.Fatalf("Expected invalid_date for 1985, got %v", err)
	}
}

func TestNormalizeAbsentGSTINStaysAbsent(t *testing.T) {
	rows := [][]string{
		row("", "Unregistered Dealer", "INV1", "01-07-2024", "", "100", "0", "9", "9", "", "B2C"),
		row("BADGSTIN", "Typo Dealer", "INV2", "01-07-2024", "", "200", "36", "", "", "", "B2B"),
	}

	txs, _, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i, tx := range txs {
		if tx.HasGSTIN {
			t.Errorf("Row %d: expected absent GSTIN", i)
		}
		if tx.CounterpartyGSTIN != "" {
			t.Errorf("Row %d: absent GSTIN must not leave residual value %q", i, tx.CounterpartyGSTIN)
		}
	}
}

func TestNormalizeGrossInvariant(t *testing.T) {
	// Gross provided and consistent
	rows := [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "118.00", "100", "18", "", "", "", "B2B"),
	}
	txs, _, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !txs[0].GrossAmount.Equal(decimal.NewFromFloat(118.0)) {
		t.Errorf("Expected gross 118, got %s", txs[0].GrossAmount)
	}

	// Gross provided but inconsistent beyond 0.01
	rows = [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "120.00", "100", "18", "", "", "", "B2B"),
	}
	_, _, err = NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	reconErr, ok := gsterrors.AsReconError(err)
	if !ok || reconErr.Code != gsterrors.CodeGrossMismatch {
		t.Fatalf("Expected gross_mismatch error, got %v", err)
	}

	// Gross blank: computed from components
	rows = [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "", "100", "18", "", "", "", "B2B"),
	}
	txs, _, err = NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !txs[0].GrossAmount.Equal(decimal.NewFromInt(118)) {
		t.Errorf("Expected computed gross 118, got %s", txs[0].GrossAmount)
	}
}

func TestNormalizeNegativeAmountRejected(t *testing.T) {
	rows := [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "", "-100", "0", "", "", "", "B2B"),
	}

	_, _, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	reconErr, ok := gsterrors.AsReconError(err)
	if !ok || reconErr.Code != gsterrors.CodeOutOfRange {
		t.Fatalf("Expected out_of_range error, got %v", err)
	}
}

func TestNormalizeBlankRowsSkipped(t *testing.T) {
	rows := [][]string{
		row("27AAAAA0000A1Z5", "X", "INV1", "01-07-2024", "", "100", "18", "", "", "", "B2B"),
		{"", "", "", "", "", "", "", "", "", "", ""},
		row("27AAAAA0000A1Z5", "X", "INV2", "02-07-2024", "", "200", "36", "", "", "", "B2B"),
	}

	txs, stats, err := NormalizeRows(templateHeader, rows, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(txs) != 2 || stats.Skipped != 1 {
		t.Errorf("Expected 2 parsed + 1 skipped, got %d parsed, %d skipped", len(txs), stats.Skipped)
	}
}

func TestParseReader(t *testing.T) {
	csvData := strings.Join([]string{
		"GSTIN/UIN,Supplier,Invoice,Date,Gross Amt,Taxable,IGST,SGST,CGST,Cess,Type",
		"27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,,,,B2B",
		"29BBBBB1111B2Z6,Beta,INV002,16-07-2024,,500,0,45,45,,B2B",
	}, "\n")

	txs, stats, err := ParseReader(strings.NewReader(csvData), models.SourcePortal2B, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(txs) != 2 || stats.Parsed != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Source != models.SourcePortal2B {
		t.Errorf("Expected source PORTAL_2B, got %s", txs[0].Source)
	}

	// Empty stream is a parse error, not a panic
	_, _, err = ParseReader(strings.NewReader(""), models.SourceBooks, nil)
	if err == nil {
		t.Error("Expected error for empty stream")
	}
}

func TestNormalizeEmptyInputIsNotAnError(t *testing.T) {
	// Zero data rows under a valid header: nothing to reconcile, not a failure
	txs, stats, err := NormalizeRows(templateHeader, nil, models.SourceBooks, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(txs) != 0 || stats.Parsed != 0 {
		t.Errorf("Expected empty result, got %d transactions", len(txs))
	}
}

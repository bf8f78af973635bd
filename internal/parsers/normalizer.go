// Package parsers normalizes raw ledger rows into canonical transactions.
//
// Two ingestion paths feed the reconciliation engine: uploaded books
// spreadsheets (CSV matching the published template) and pre-fetched portal
// rows. Both funnel through NormalizeRows, which enforces the template
// contract: required columns are a hard error when missing, numeric blanks
// default to zero, and every malformed value is reported with its row and
// column so the caller can surface "row 14: invalid date" style messages.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	gsterrors "gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// Stats reports what a normalization pass consumed.
type Stats struct {
	RowsRead int `json:"rows_read"`
	Parsed   int `json:"parsed"`
	Skipped  int `json:"skipped"` // blank rows only; bad rows are hard errors
}

// columnIndex maps each canonical column to its position in the header row,
// or -1 when the (optional) column is absent.
type columnIndex struct {
	gstin, supplier, invoice, date, gross, taxable, igst, sgst, cgst, cess, typ int
}

// resolveHeader locates every canonical column in the header row. Matching
// trims whitespace and ignores case; unknown extra columns are ignored.
// A missing required column is a hard error naming the column.
func resolveHeader(header []string, mapping *ColumnMapping, source string) (*columnIndex, error) {
	if mapping == nil {
		mapping = DefaultTemplateMapping()
	}
	if err := mapping.Validate(); err != nil {
		return nil, gsterrors.ConfigurationError(gsterrors.CodeInvalidConfig, "column_mapping", mapping, err)
	}

	positions := make(map[string]int, len(header))
	for i, cell := range header {
		key := strings.ToLower(strings.TrimSpace(cell))
		if key == "" {
			continue
		}
		if canonical, ok := mapping.Aliases[key]; ok {
			key = strings.ToLower(canonical)
		}
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	find := func(name string) int {
		if idx, ok := positions[strings.ToLower(strings.TrimSpace(name))]; ok {
			return idx
		}
		return -1
	}

	idx := &columnIndex{
		gstin:    find(mapping.GSTIN),
		supplier: find(mapping.Supplier),
		invoice:  find(mapping.Invoice),
		date:     find(mapping.Date),
		gross:    find(mapping.Gross),
		taxable:  find(mapping.Taxable),
		igst:     find(mapping.IGST),
		sgst:     find(mapping.SGST),
		cgst:     find(mapping.CGST),
		cess:     find(mapping.Cess),
		typ:      find(mapping.Type),
	}

	required := []struct {
		name string
		pos  int
	}{
		{mapping.GSTIN, idx.gstin},
		{mapping.Invoice, idx.invoice},
		{mapping.Date, idx.date},
		{mapping.Taxable, idx.taxable},
		{mapping.IGST, idx.igst},
		{mapping.SGST, idx.sgst},
		{mapping.CGST, idx.cgst},
		{mapping.Cess, idx.cess},
		{mapping.Type, idx.typ},
	}
	for _, col := range required {
		if col.pos < 0 {
			return nil, gsterrors.MissingColumnError(source, col.name, header)
		}
	}

	return idx, nil
}

func fieldAt(record []string, pos int) string {
	if pos < 0 || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func isBlankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// NormalizeRows converts raw rows into canonical transactions. The header
// slice is the file's first row; rows are the data rows in file order. Row
// numbers in errors are spreadsheet-style: the header is row 1 and the
// first data row is row 2.
//
// This is a pure transform: it reads nothing but its arguments and the
// clock (for the sane-date-range ceiling).
func NormalizeRows(header []string, rows [][]string, source models.SourceSystem, mapping *ColumnMapping) ([]*models.Transaction, *Stats, error) {
	idx, err := resolveHeader(header, mapping, source.String())
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	stats := &Stats{}
	transactions := make([]*models.Transaction, 0, len(rows))

	for i, record := range rows {
		rowNum := i + 2
		stats.RowsRead++

		if isBlankRow(record) {
			stats.Skipped++
			continue
		}

		tx, err := normalizeRow(record, idx, source, rowNum, now)
		if err != nil {
			return nil, stats, err
		}

		transactions = append(transactions, tx)
		stats.Parsed++
	}

	return transactions, stats, nil
}

func normalizeRow(record []string, idx *columnIndex, source models.SourceSystem, rowNum int, now time.Time) (*models.Transaction, error) {
	tx := &models.Transaction{Source: source}

	// GSTIN: absent or malformed is not an error, the row is kept with no
	// join identity on the counterparty side.
	tx.SetGSTIN(fieldAt(record, idx.gstin))
	tx.Supplier = fieldAt(record, idx.supplier)

	invoice := fieldAt(record, idx.invoice)
	if invoice == "" {
		return nil, gsterrors.RowError(gsterrors.CodeInvalidData, rowNum, "Invoice", "", nil).
			WithSuggestion("every row needs an invoice number")
	}
	tx.InvoiceNumber = invoice

	rawDate := fieldAt(record, idx.date)
	date, err := models.ParseInvoiceDate(rawDate)
	if err != nil {
		return nil, gsterrors.RowError(gsterrors.CodeInvalidDate, rowNum, "Date", rawDate, err)
	}
	if err := models.ValidateDateRange(date, now); err != nil {
		return nil, gsterrors.RowError(gsterrors.CodeInvalidDate, rowNum, "Date", rawDate, err)
	}
	tx.InvoiceDate = date

	amounts := []struct {
		column string
		pos    int
		dest   *decimal.Decimal
	}{
		{"Taxable", idx.taxable, &tx.TaxableValue},
		{"IGST", idx.igst, &tx.IGST},
		{"CGST", idx.cgst, &tx.CGST},
		{"SGST", idx.sgst, &tx.SGST},
		{"Cess", idx.cess, &tx.Cess},
	}
	for _, a := range amounts {
		raw := fieldAt(record, a.pos)
		value, err := models.ParseAmount(raw)
		if err != nil {
			return nil, gsterrors.RowError(gsterrors.CodeInvalidAmount, rowNum, a.column, raw, err)
		}
		if value.IsNegative() {
			return nil, gsterrors.RowError(gsterrors.CodeOutOfRange, rowNum, a.column, raw, nil).
				WithSuggestion("amounts must be non-negative; report credit notes with Type CDN")
		}
		*a.dest = value
	}

	rawType := fieldAt(record, idx.typ)
	recordType, err := models.ParseRecordType(rawType)
	if err != nil {
		return nil, gsterrors.RowError(gsterrors.CodeInvalidData, rowNum, "Type", rawType, err)
	}
	tx.RecordType = recordType

	rawGross := fieldAt(record, idx.gross)
	if rawGross != "" {
		gross, err := models.ParseAmount(rawGross)
		if err != nil {
			return nil, gsterrors.RowError(gsterrors.CodeInvalidAmount, rowNum, "Gross Amt", rawGross, err)
		}
		if gross.Sub(tx.TotalValue()).Abs().GreaterThan(models.GrossTolerance) {
			return nil, gsterrors.RowError(gsterrors.CodeGrossMismatch, rowNum, "Gross Amt", rawGross, nil).
				WithContext("expected", tx.TotalValue().String())
		}
		tx.GrossAmount = gross
	} else {
		tx.GrossAmount = tx.TotalValue()
	}

	return tx, nil
}

// ParseReader reads a CSV stream and normalizes it. The first non-empty
// record is the header.
func ParseReader(r io.Reader, source models.SourceSystem, mapping *ColumnMapping) ([]*models.Transaction, *Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, gsterrors.New(gsterrors.CategoryParse, gsterrors.CodeInvalidFormat,
			fmt.Sprintf("%s data is empty", source)).
			WithSuggestion("the file must contain at least a header row")
	}
	if err != nil {
		return nil, nil, gsterrors.Wrap(err, gsterrors.CategoryParse, gsterrors.CodeInvalidFormat,
			fmt.Sprintf("failed to read %s header row", source))
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, gsterrors.Wrap(err, gsterrors.CategoryParse, gsterrors.CodeInvalidFormat,
				fmt.Sprintf("failed to read %s data row", source))
		}
		rows = append(rows, record)
	}

	return NormalizeRows(header, rows, source, mapping)
}

// ParseFile opens and normalizes a CSV file from disk.
func ParseFile(path string, source models.SourceSystem, mapping *ColumnMapping) ([]*models.Transaction, *Stats, error) {
	log := logger.GetGlobalLogger().WithComponent("normalizer")
	log.WithFields(logger.Fields{
		"file_path": path,
		"source":    source,
	}).Debug("Parsing ledger file")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, gsterrors.FileError(gsterrors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, nil, gsterrors.FileError(gsterrors.CodeFilePermission, path, err)
		}
		return nil, nil, gsterrors.FileError(gsterrors.CodeUnexpectedError, path, err)
	}
	defer file.Close()

	transactions, stats, err := ParseReader(file, source, mapping)
	if err != nil {
		log.WithError(err).WithField("file_path", path).Error("Failed to normalize ledger file")
		return nil, stats, err
	}

	log.WithFields(logger.Fields{
		"file_path": path,
		"parsed":    stats.Parsed,
		"skipped":   stats.Skipped,
	}).Info("Normalized ledger file")

	return transactions, stats, nil
}

// Package reporter renders reconciliation results for human and machine
// consumption.
//
// Supported output formats:
//   - Console: tabular output for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: flat rows for spreadsheet applications
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/reconciler"
)

// OutputFormat selects how a result is rendered.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeMatched controls whether fully matched pairs are listed in
	// console and CSV output. They dominate healthy ledgers, so the
	// default lists only rows needing attention.
	IncludeMatched bool `json:"include_matched"`

	// MaxTableRows caps console table length per bucket; 0 means no cap.
	MaxTableRows int `json:"max_table_rows"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		MaxTableRows: 10,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxTableRows < 0 {
		return fmt.Errorf("max table rows cannot be negative, got %d", c.MaxTableRows)
	}
	return nil
}

// ReportGenerator renders reconciliation results in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the result to the writer.
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// bucketTitles maps bucket keys to console section headings.
var bucketTitles = map[matcher.Bucket]string{
	matcher.BucketMatched:          "MATCHED",
	matcher.BucketMismatchProbable: "PROBABLE MISMATCHES",
	matcher.BucketInvoiceMismatch:  "INVOICE NUMBER MISMATCHES",
	matcher.BucketOnlyInA:          "ONLY IN FIRST SOURCE",
	matcher.BucketOnlyInB:          "ONLY IN SECOND SOURCE",
	matcher.BucketOutOfPeriod:      "OUT OF PERIOD",
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	fmt.Fprintf(writer, "GST RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Period:    %s\n", result.PeriodLabel)
	if result.SessionInfo.GSTIN != "" {
		fmt.Fprintf(writer, "GSTIN:     %s\n", result.SessionInfo.GSTIN)
	}
	fmt.Fprintf(writer, "Generated: %s\n\n", result.SessionInfo.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(writer, "=== METRICS ===\n")
	fmt.Fprintf(writer, "Matched:            %d\n", result.Metrics.Matched)
	fmt.Fprintf(writer, "Probable mismatch:  %d\n", result.Metrics.MismatchProbable)
	fmt.Fprintf(writer, "Invoice mismatch:   %d\n", result.Metrics.InvoiceMismatch)
	fmt.Fprintf(writer, "Only in 2B/Portal:  %d\n", result.Metrics.Only2B)
	fmt.Fprintf(writer, "Only in books:      %d\n", result.Metrics.OnlyBooks)
	fmt.Fprintf(writer, "Out of period:      %d\n\n", result.Metrics.OutOfPeriod)

	for _, bucket := range matcher.Buckets() {
		if bucket == matcher.BucketMatched && !rg.config.IncludeMatched {
			continue
		}
		rows := result.Tables[string(bucket)]
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(writer, "=== %s (%d) ===\n", bucketTitles[bucket], len(rows))
		rg.printTableRows(rows, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(result.Summary) > 0 {
		fmt.Fprintf(writer, "=== MONTHLY SUMMARY ===\n")
		for _, block := range result.Summary {
			fmt.Fprintf(writer, "%s [%s]\n", block.Month, block.Status)
			for _, row := range block.Rows {
				fmt.Fprintf(writer, "  %-34s %14s %14s %12s\n",
					row.Particular,
					row.V1.StringFixed(2),
					row.V2.StringFixed(2),
					row.Diff.StringFixed(2))
			}
		}
	}
	return nil
}

func (rg *ReportGenerator) printTableRows(rows []reconciler.TableRow, writer io.Writer) {
	for i, row := range rows {
		if rg.config.MaxTableRows > 0 && i >= rg.config.MaxTableRows {
			fmt.Fprintf(writer, "  ... and %d more\n", len(rows)-rg.config.MaxTableRows)
			break
		}

		gstin := row.GSTIN
		if gstin == "" {
			gstin = "-"
		}
		invoice := row.Invoice
		if row.MatchedInvoice != "" {
			invoice = fmt.Sprintf("%s / %s", row.Invoice, row.MatchedInvoice)
		}
		fmt.Fprintf(writer, "  %-15s %-24s %-10s %12s %12s %10s",
			gstin, invoice, row.Date,
			row.V1.StringFixed(2), row.V2.StringFixed(2), row.Diff.StringFixed(2))
		if row.Remarks != "" {
			fmt.Fprintf(writer, "  %s", row.Remarks)
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{"Bucket", "GSTIN", "Supplier", "Invoice", "Matched_Invoice", "Date", "V1", "V2", "Diff", "Remarks"}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, bucket := range matcher.Buckets() {
		if bucket == matcher.BucketMatched && !rg.config.IncludeMatched {
			continue
		}
		for _, row := range result.Tables[string(bucket)] {
			record := []string{
				string(bucket),
				row.GSTIN,
				row.Supplier,
				row.Invoice,
				row.MatchedInvoice,
				row.Date,
				row.V1.StringFixed(2),
				row.V2.StringFixed(2),
				row.Diff.StringFixed(2),
				row.Remarks,
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write %s row: %w", bucket, err)
			}
		}
	}
	return nil
}

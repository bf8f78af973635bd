package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/reporter"
)

// Flags for the reconcile command
var (
	file2B         string
	fileBooks      string
	selectedFY     string
	periodType     string
	periodValue    string
	tolerance      string
	outputFormat   string
	outputFile     string
	includeMatched bool
	maxTableRows   int
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a GSTR-2B export against books of accounts",
	Long: `Reconcile compares a GSTR-2B invoice export with the purchase register
from the books, both in the standard template CSV layout.

Rows are joined on (counterparty GSTIN, normalized invoice number) and
compared on total value within the tolerance. Unjoined rows on either
side are reported separately, as are rows dated outside the selected
period.

Examples:
  # Reconcile a single month
  gstrecon reconcile --file-2b gstr2b.csv --file-books books.csv \
    --fy 2024-2025 --period-type monthly --period July

  # Quarterly run with a wider tolerance, JSON to a file
  gstrecon reconcile --file-2b 2b.csv --file-books books.csv \
    --fy 2024-2025 --period-type quarterly --period Q2 \
    --tolerance 10 --output-format json --output report.json

  # Full year, include matched rows in the tables
  gstrecon reconcile --file-2b 2b.csv --file-books books.csv \
    --fy 2024-2025 --period-type annually --include-matched`,

	PreRunE: validateReconcileFlags,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReconcile(cmd, args); err != nil {
			os.Exit(NewCLIErrorHandler().HandleError(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVar(&file2B, "file-2b", "", "path to GSTR-2B template CSV file (required)")
	reconcileCmd.Flags().StringVar(&fileBooks, "file-books", "", "path to books template CSV file (required)")
	reconcileCmd.Flags().StringVar(&selectedFY, "fy", "", "financial year, e.g. 2024-2025 (required)")

	// Period selection flags
	reconcileCmd.Flags().StringVar(&periodType, "period-type", "annually", "period type: monthly, quarterly, annually")
	reconcileCmd.Flags().StringVar(&periodValue, "period", "", "period value: month name or number, or quarter (Q1-Q4)")
	reconcileCmd.Flags().StringVar(&tolerance, "tolerance", "", "per-invoice amount tolerance in rupees (default 1)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeMatched, "include-matched", false, "list fully matched rows in the output tables")
	reconcileCmd.Flags().IntVar(&maxTableRows, "max-rows", 10, "maximum console table rows per bucket (0 = unlimited)")

	reconcileCmd.MarkFlagRequired("file-2b")
	reconcileCmd.MarkFlagRequired("file-books")
	reconcileCmd.MarkFlagRequired("fy")

	viper.BindPFlag("file-2b", reconcileCmd.Flags().Lookup("file-2b"))
	viper.BindPFlag("file-books", reconcileCmd.Flags().Lookup("file-books"))
	viper.BindPFlag("fy", reconcileCmd.Flags().Lookup("fy"))
	viper.BindPFlag("period-type", reconcileCmd.Flags().Lookup("period-type"))
	viper.BindPFlag("period", reconcileCmd.Flags().Lookup("period"))
	viper.BindPFlag("tolerance", reconcileCmd.Flags().Lookup("tolerance"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output", reconcileCmd.Flags().Lookup("output"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	file2B = viper.GetString("file-2b")
	fileBooks = viper.GetString("file-books")
	selectedFY = viper.GetString("fy")
	periodType = viper.GetString("period-type")
	periodValue = viper.GetString("period")
	tolerance = viper.GetString("tolerance")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output")

	if err := validateFileExists(file2B, "GSTR-2B file"); err != nil {
		return err
	}
	if err := validateFileExists(fileBooks, "books file"); err != nil {
		return err
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation...\n")
		fmt.Fprintf(os.Stderr, "GSTR-2B file: %s\n", file2B)
		fmt.Fprintf(os.Stderr, "Books file: %s\n", fileBooks)
		fmt.Fprintf(os.Stderr, "Period: %s %s %s\n", selectedFY, periodType, periodValue)
	}

	f2b, err := os.Open(file2B)
	if err != nil {
		return fmt.Errorf("failed to open GSTR-2B file: %w", err)
	}
	defer f2b.Close()

	fbooks, err := os.Open(fileBooks)
	if err != nil {
		return fmt.Errorf("failed to open books file: %w", err)
	}
	defer fbooks.Close()

	request := reconciler.ManualRequest{
		Request: reconciler.Request{
			SelectedFY:  selectedFY,
			PeriodType:  periodType,
			PeriodValue: periodValue,
			Tolerance:   tolerance,
		},
		FileA: f2b,
		FileB: fbooks,
	}

	service := reconciler.NewService(nil)
	result, err := service.Reconcile2BManual(ctx, request)
	if err != nil {
		return err
	}

	reportConfig := reporter.DefaultReportConfig()
	reportConfig.Format = reporter.OutputFormat(outputFormat)
	reportConfig.IncludeMatched = includeMatched
	reportConfig.MaxTableRows = maxTableRows

	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := reportGenerator.GenerateReport(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		m := result.Metrics
		fmt.Fprintf(os.Stderr, "\nReconciliation completed for %s.\n", result.PeriodLabel)
		fmt.Fprintf(os.Stderr, "Matched %d, mismatched %d, invoice mismatches %d.\n",
			m.Matched, m.MismatchProbable, m.InvoiceMismatch)
		fmt.Fprintf(os.Stderr, "Only in 2B: %d, only in books: %d, out of period: %d.\n",
			m.Only2B, m.OnlyBooks, m.OutOfPeriod)
	}

	return nil
}

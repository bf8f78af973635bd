package reconciler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
)

// Metrics counts reconciliation pairs per bucket, in the key spellings the
// consumers render.
type Metrics struct {
	Matched          int `json:"matched"`
	MismatchProbable int `json:"mismatch_probable"`
	InvoiceMismatch  int `json:"invoice_mismatch"`
	Only2B           int `json:"only_2b"`
	OnlyBooks        int `json:"only_books"`
	OutOfPeriod      int `json:"out_of_period"`
}

// TableRow is one rendered line of a bucket table.
type TableRow struct {
	GSTIN    string `json:"gstin,omitempty"`
	Supplier string `json:"supplier,omitempty"`
	Invoice  string `json:"invoice"`

	// MatchedInvoice carries the second source's invoice number when the
	// pair was joined despite differing invoice numbers.
	MatchedInvoice string `json:"matched_invoice,omitempty"`

	Date    string          `json:"date,omitempty"`
	V1      decimal.Decimal `json:"v1"`
	V2      decimal.Decimal `json:"v2"`
	Diff    decimal.Decimal `json:"diff"`
	Remarks string          `json:"remarks,omitempty"`
}

// SessionInfo identifies one reconciliation run.
type SessionInfo struct {
	RunID       string    `json:"run_id"`
	GSTIN       string    `json:"gstin,omitempty"`
	Period      string    `json:"period"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Result is the complete outcome of one reconciliation run. It is built
// fresh per run and never mutated afterwards; persistence and export are
// the consumer's business.
type Result struct {
	Status      string                   `json:"status"`
	PeriodLabel string                   `json:"period_label"`
	Metrics     Metrics                  `json:"metrics"`
	Tables      map[string][]TableRow    `json:"tables"`
	Summary     []aggregator.MonthBlock  `json:"summary"`
	SessionInfo SessionInfo              `json:"session_info"`
}

// ComprehensiveResult is the outcome of the whole-FY multi-return run:
// sales cross-checked between GSTR-1 and 3B, credit between 2B and 3B,
// month by month.
type ComprehensiveResult struct {
	Status      string                  `json:"status"`
	PeriodLabel string                  `json:"period_label"`
	Sales       []aggregator.MonthBlock `json:"sales"`
	ITC         []aggregator.MonthBlock `json:"itc"`
	SessionInfo SessionInfo             `json:"session_info"`
}

// sourceLabels names the two sides of a matching run for remarks and
// table keys. LabelA varies by operation ("2B", "Portal"); LabelB is
// always the taxpayer's books.
type sourceLabels struct {
	onlyA string
	onlyB string
}

var (
	labels2B     = sourceLabels{onlyA: "Only in 2B", onlyB: "Only in Books"}
	labelsPortal = sourceLabels{onlyA: "Only in Portal", onlyB: "Only in Books"}
)

func newSessionInfo(gstin string, period fiscal.Period) SessionInfo {
	return SessionInfo{
		RunID:       uuid.NewString(),
		GSTIN:       gstin,
		Period:      period.Label(),
		GeneratedAt: time.Now().UTC(),
	}
}

// assemble bundles matcher and aggregator output into the result shape.
func assemble(res *matcher.Result, period fiscal.Period, labels sourceLabels, session SessionInfo) *Result {
	out := &Result{
		Status:      "success",
		PeriodLabel: period.Label(),
		Metrics: Metrics{
			Matched:          res.Counts[matcher.BucketMatched],
			MismatchProbable: res.Counts[matcher.BucketMismatchProbable],
			InvoiceMismatch:  res.Counts[matcher.BucketInvoiceMismatch],
			Only2B:           res.Counts[matcher.BucketOnlyInA],
			OnlyBooks:        res.Counts[matcher.BucketOnlyInB],
			OutOfPeriod:      res.Counts[matcher.BucketOutOfPeriod],
		},
		Tables:      make(map[string][]TableRow, len(matcher.Buckets())),
		Summary:     aggregator.MonthlySummary(res, period),
		SessionInfo: session,
	}

	for _, bucket := range matcher.Buckets() {
		rows := make([]TableRow, 0, res.Counts[bucket])
		for _, p := range res.PairsIn(bucket) {
			rows = append(rows, tableRow(p, labels))
		}
		out.Tables[string(bucket)] = rows
	}
	return out
}

func tableRow(p *matcher.Pair, labels sourceLabels) TableRow {
	row := TableRow{
		Invoice: p.Key.Invoice,
		V1:      p.TotalA,
		V2:      p.TotalB,
		Diff:    p.Diff,
	}
	if p.Key.HasGSTIN {
		row.GSTIN = p.Key.GSTIN
	}
	if p.KeyB != nil {
		row.MatchedInvoice = p.KeyB.Invoice
	}
	if t := firstRecord(p); t != nil {
		row.Date = t.InvoiceDate.Format("02-01-2006")
		row.Supplier = t.Supplier
	}

	switch p.Bucket {
	case matcher.BucketOnlyInA:
		row.Remarks = labels.onlyA
	case matcher.BucketOnlyInB:
		row.Remarks = labels.onlyB
	case matcher.BucketOutOfPeriod:
		row.Remarks = "Outside selected period"
	}
	return row
}

func firstRecord(p *matcher.Pair) *models.Transaction {
	if len(p.A) > 0 {
		return p.A[0]
	}
	if len(p.B) > 0 {
		return p.B[0]
	}
	return nil
}

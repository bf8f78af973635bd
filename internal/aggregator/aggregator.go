// Package aggregator rolls matcher output up into the summary rows and
// month blocks that reports and API responses render. All arithmetic is
// decimal; row order is fixed so repeated runs emit identical output.
package aggregator

import (
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
)

// Block and comparison statuses.
const (
	StatusMatched    = "MATCHED"
	StatusMismatched = "MISMATCHED"
	StatusRisk       = "RISK"
	StatusPartial    = "PARTIAL"
	StatusReconciled = "RECONCILED"
	StatusNoData     = "NO DATA"
)

// SummaryBand is the one-rupee band for summary-level status. It is coarser
// than the per-record matching tolerance on purpose: a block of thousands of
// invoices that nets out to under a rupee is treated as reconciled.
var SummaryBand = decimal.NewFromInt(1)

// SummaryRow is one "particular / v1 / v2 / diff" line. V1 is the first
// source's total, V2 the second's, Diff is V1 minus V2 with sign preserved.
type SummaryRow struct {
	Particular string          `json:"particular"`
	V1         decimal.Decimal `json:"v1"`
	V2         decimal.Decimal `json:"v2"`
	Diff       decimal.Decimal `json:"diff"`
}

// NewRow builds a summary row with both sides rounded to two decimals.
func NewRow(particular string, v1, v2 decimal.Decimal) SummaryRow {
	v1 = models.Round2(v1)
	v2 = models.Round2(v2)
	return SummaryRow{Particular: particular, V1: v1, V2: v2, Diff: v1.Sub(v2)}
}

// MonthBlock is one month's worth of summary rows plus its rollup status.
type MonthBlock struct {
	Month  string       `json:"month"`
	Status string       `json:"status"`
	Rows   []SummaryRow `json:"rows"`
}

// blockStatus applies the one-rupee band to the net diff across a block.
func blockStatus(rows []SummaryRow) string {
	var net decimal.Decimal
	for _, r := range rows {
		net = net.Add(r.Diff)
	}
	if net.Abs().LessThanOrEqual(SummaryBand) {
		return StatusMatched
	}
	return StatusMismatched
}

// componentTotals accumulates one month's per-component amounts per side.
type componentTotals struct {
	v1 [5]decimal.Decimal
	v2 [5]decimal.Decimal
}

var componentNames = [5]string{"Taxable Value", "IGST", "CGST", "SGST", "Cess"}

func (c *componentTotals) add(t *models.Transaction, side int) {
	amounts := [5]decimal.Decimal{t.TaxableValue, t.IGST, t.CGST, t.SGST, t.Cess}
	for i, a := range amounts {
		if side == 0 {
			c.v1[i] = c.v1[i].Add(a)
		} else {
			c.v2[i] = c.v2[i].Add(a)
		}
	}
}

// MonthlySummary breaks a matching result down into per-month blocks with
// one row per tax component. Out-of-period records are excluded, so the row
// totals reconcile exactly against the bucketed in-period records. Months
// inside the period with no activity are omitted.
func MonthlySummary(res *matcher.Result, period fiscal.Period) []MonthBlock {
	byMonth := make(map[fiscal.YearMonth]*componentTotals)

	accumulate := func(records []*models.Transaction, side int) {
		for _, t := range records {
			ym := fiscal.YearMonth{Year: t.InvoiceDate.Year(), Month: int(t.InvoiceDate.Month())}
			c, ok := byMonth[ym]
			if !ok {
				c = &componentTotals{}
				byMonth[ym] = c
			}
			c.add(t, side)
		}
	}
	for _, p := range res.Pairs {
		if p.Bucket == matcher.BucketOutOfPeriod {
			continue
		}
		accumulate(p.A, 0)
		accumulate(p.B, 1)
	}

	var blocks []MonthBlock
	for _, ym := range period.Months() {
		c, ok := byMonth[ym]
		if !ok {
			continue
		}
		rows := make([]SummaryRow, 0, len(componentNames))
		for i, name := range componentNames {
			rows = append(rows, NewRow(name, c.v1[i], c.v2[i]))
		}
		blocks = append(blocks, MonthBlock{
			Month:  ym.Label(),
			Status: blockStatus(rows),
			Rows:   rows,
		})
	}
	return blocks
}

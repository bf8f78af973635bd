package aggregator

import (
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
)

// SalesFigures carries the outward-supply totals of one source broken down
// the way the 3B summary return reports them: regular taxable supplies
// (3.1.a), zero-rated exports (3.1.b), nil-rated/exempt (3.1.c), and
// non-GST outward supplies (3.1.e).
type SalesFigures struct {
	Taxable decimal.Decimal `json:"taxable"`
	IGST    decimal.Decimal `json:"igst"`
	CGST    decimal.Decimal `json:"cgst"`
	SGST    decimal.Decimal `json:"sgst"`

	ExportTaxable decimal.Decimal `json:"export_taxable"`
	ExportIGST    decimal.Decimal `json:"export_igst"`

	NilExempt decimal.Decimal `json:"nil_exempt"`
	NonGST    decimal.Decimal `json:"non_gst"`
}

// IsZero reports whether every figure is zero, meaning no data for the month.
func (f SalesFigures) IsZero() bool {
	for _, d := range []decimal.Decimal{
		f.Taxable, f.IGST, f.CGST, f.SGST,
		f.ExportTaxable, f.ExportIGST, f.NilExempt, f.NonGST,
	} {
		if !d.IsZero() {
			return false
		}
	}
	return true
}

// SalesFromTransactions folds invoice-level rows into 3B-style sales
// figures. Record types decide the line: exports and SEZ supplies go to
// 3.1.b, nil-rated/exempt to 3.1.c, non-GST to 3.1.e, everything else to
// the regular 3.1.a lines.
func SalesFromTransactions(txs []*models.Transaction) SalesFigures {
	var f SalesFigures
	for _, t := range txs {
		switch t.RecordType {
		case models.RecordExport:
			f.ExportTaxable = f.ExportTaxable.Add(t.TaxableValue)
			f.ExportIGST = f.ExportIGST.Add(t.IGST)
		case models.RecordNilRated:
			f.NilExempt = f.NilExempt.Add(t.TaxableValue)
		case models.RecordNonGST:
			f.NonGST = f.NonGST.Add(t.TaxableValue)
		default:
			f.Taxable = f.Taxable.Add(t.TaxableValue)
			f.IGST = f.IGST.Add(t.IGST)
			f.CGST = f.CGST.Add(t.CGST)
			f.SGST = f.SGST.Add(t.SGST)
		}
	}
	return f
}

// CompareSales lines two sources' sales figures up against each other in
// the fixed 3.1.x particular order.
func CompareSales(v1, v2 SalesFigures) []SummaryRow {
	return []SummaryRow{
		NewRow("3.1.a Taxable Value", v1.Taxable, v2.Taxable),
		NewRow("3.1.a IGST", v1.IGST, v2.IGST),
		NewRow("3.1.a CGST", v1.CGST, v2.CGST),
		NewRow("3.1.a SGST", v1.SGST, v2.SGST),
		NewRow("3.1.b Exports Taxable", v1.ExportTaxable, v2.ExportTaxable),
		NewRow("3.1.b Exports IGST", v1.ExportIGST, v2.ExportIGST),
		NewRow("3.1.c Nil/Exempt", v1.NilExempt, v2.NilExempt),
		NewRow("3.1.e Non-GST", v1.NonGST, v2.NonGST),
	}
}

// SalesBlock builds one month's sales comparison block. A month where
// neither source reports anything is flagged NO DATA rather than MATCHED.
func SalesBlock(month string, v1, v2 SalesFigures) MonthBlock {
	rows := CompareSales(v1, v2)
	status := blockStatus(rows)
	if v1.IsZero() && v2.IsZero() {
		status = StatusNoData
	}
	return MonthBlock{Month: month, Status: status, Rows: rows}
}

package aggregator

import (
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
)

// ITCFigures carries one source's input-tax-credit totals per component.
// RCM holds reverse-charge and import credit: it is self-assessed by the
// recipient, so it legitimately appears in the 3B claim without any 2B
// counterpart and must not be flagged as a mismatch.
type ITCFigures struct {
	IGST decimal.Decimal `json:"igst"`
	CGST decimal.Decimal `json:"cgst"`
	SGST decimal.Decimal `json:"sgst"`
	Cess decimal.Decimal `json:"cess"`

	RCM decimal.Decimal `json:"rcm"`
}

// Total returns the summed credit across all components, RCM included.
func (f ITCFigures) Total() decimal.Decimal {
	return f.IGST.Add(f.CGST).Add(f.SGST).Add(f.Cess)
}

// IsZero reports whether the source has no credit at all for the month.
func (f ITCFigures) IsZero() bool {
	return f.Total().IsZero() && f.RCM.IsZero()
}

// ITCFromTransactions folds 2B invoice rows into credit figures. Import
// rows count toward the RCM line as well as their components.
func ITCFromTransactions(txs []*models.Transaction) ITCFigures {
	var f ITCFigures
	for _, t := range txs {
		f.IGST = f.IGST.Add(t.IGST)
		f.CGST = f.CGST.Add(t.CGST)
		f.SGST = f.SGST.Add(t.SGST)
		f.Cess = f.Cess.Add(t.Cess)
		if t.RecordType == models.RecordImport {
			f.RCM = f.RCM.Add(t.TaxTotal())
		}
	}
	return f
}

// ITCComparison is the outcome of reconciling 2B-reported credit against
// the credit claimed in 3B for one month.
type ITCComparison struct {
	Status string       `json:"status"`
	Rows   []SummaryRow `json:"rows"`

	// Adjusted3B is the 3B claim net of its RCM/import portion, the figure
	// the status verdict is based on.
	Adjusted3B decimal.Decimal `json:"adjusted_3b"`
}

// CompareITC reconciles available credit (2B) against claimed credit (3B).
// The 3B side's RCM/import portion is subtracted before the net diff is
// rounded and compared, and reported on its own line, so credit that can
// never appear in 2B does not read as an excess claim. Verdicts: RISK when
// the adjusted claim exceeds the available credit beyond the band, PARTIAL
// when credit is left unclaimed, RECONCILED within the band, NO DATA when
// neither side reports anything.
func CompareITC(from2B, from3B ITCFigures) ITCComparison {
	adjusted := from3B.Total().Sub(from3B.RCM)
	net := models.Round2(adjusted.Sub(from2B.Total()))

	rows := []SummaryRow{
		NewRow("ITC IGST", from2B.IGST, from3B.IGST),
		NewRow("ITC CGST", from2B.CGST, from3B.CGST),
		NewRow("ITC SGST", from2B.SGST, from3B.SGST),
		NewRow("ITC Cess", from2B.Cess, from3B.Cess),
		NewRow("RCM/Imports", from2B.RCM, from3B.RCM),
		NewRow("Eligible ITC (net of RCM/Imports)", from2B.Total(), adjusted),
	}

	cmp := ITCComparison{Rows: rows, Adjusted3B: models.Round2(adjusted)}
	switch {
	case from2B.IsZero() && from3B.IsZero():
		cmp.Status = StatusNoData
	case net.Abs().LessThanOrEqual(SummaryBand):
		cmp.Status = StatusReconciled
	case net.IsPositive():
		cmp.Status = StatusRisk
	default:
		cmp.Status = StatusPartial
	}
	return cmp
}

// ITCBlock renders an ITC comparison as a month block.
func ITCBlock(month string, from2B, from3B ITCFigures) MonthBlock {
	cmp := CompareITC(from2B, from3B)
	return MonthBlock{Month: month, Status: cmp.Status, Rows: cmp.Rows}
}

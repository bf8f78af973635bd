package reconciler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/portal"
	gsterrors "gst-reconciliation-service/pkg/errors"
)

const templateHeader = "GSTIN/UIN,Supplier,Invoice,Date,Gross Amt,Taxable,IGST,SGST,CGST,Cess,Type"

func csvFile(rows ...string) *strings.Reader {
	return strings.NewReader(templateHeader + "\n" + strings.Join(rows, "\n") + "\n")
}

func julyRequest() Request {
	return Request{
		SelectedFY:  "2024-2025",
		PeriodType:  "MONTHLY",
		PeriodValue: "July",
		Tolerance:   "1",
	}
}

func newTestService(client portal.Client) *Service {
	s := NewService(client)
	s.now = func() time.Time { return time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestReconcile2BManualIdenticalRows(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
		FileB:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
	}

	res, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "July 2024", res.PeriodLabel)
	assert.Equal(t, 1, res.Metrics.Matched)
	assert.Equal(t, 0, res.Metrics.MismatchProbable)

	rows := res.Tables[string(matcher.BucketMatched)]
	require.Len(t, rows, 1)
	assert.True(t, rows[0].V1.Equal(decimal.NewFromInt(1180)))
	assert.True(t, rows[0].V2.Equal(decimal.NewFromInt(1180)))
	assert.True(t, rows[0].Diff.IsZero())

	require.Len(t, res.Summary, 1)
	assert.Equal(t, aggregator.StatusMatched, res.Summary[0].Status)
	assert.NotEmpty(t, res.SessionInfo.RunID)
}

func TestReconcile2BManualMismatch(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
		FileB:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1170,1000,170,0,0,0,B2B`),
	}

	res, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Metrics.MismatchProbable)
	rows := res.Tables[string(matcher.BucketMismatchProbable)]
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Diff.Equal(decimal.NewFromInt(10)))

	require.Len(t, res.Summary, 1)
	assert.Equal(t, aggregator.StatusMismatched, res.Summary[0].Status)
}

func TestReconcile2BManualOnlyInOneSource(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA: csvFile(
			`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`,
			`27AAAAA0000A1Z5,Acme,INV002,16-07-2024,500,500,0,0,0,0,B2B`,
		),
		FileB: csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
	}

	res, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Metrics.Only2B)
	rows := res.Tables[string(matcher.BucketOnlyInA)]
	require.Len(t, rows, 1)
	assert.Equal(t, "INV002", rows[0].Invoice)
	assert.Equal(t, "Only in 2B", rows[0].Remarks)
}

func TestReconcile2BManualInvoiceNormalization(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA:   csvFile(`27AAAAA0000A1Z5,Acme,INV-3,15-07-2024,1180,1000,180,0,0,0,B2B`),
		FileB:   csvFile(`27AAAAA0000A1Z5,Acme,INV3,15-07-2024,1180,1000,180,0,0,0,B2B`),
	}

	res, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metrics.Matched)
}

func TestReconcile2BManualOutOfPeriod(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-06-2024,1180,1000,180,0,0,0,B2B`),
		FileB:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-06-2024,1180,1000,180,0,0,0,B2B`),
	}

	res, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Metrics.Matched)
	assert.Equal(t, 1, res.Metrics.OutOfPeriod)
	assert.Empty(t, res.Summary)
}

func TestReconcile2BManualEmptyFiles(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA:   strings.NewReader(templateHeader + "\n"),
		FileB:   strings.NewReader(templateHeader + "\n"),
	}

	res, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, Metrics{}, res.Metrics)
	for _, bucket := range matcher.Buckets() {
		assert.Empty(t, res.Tables[string(bucket)])
	}
}

func TestReconcile2BManualParseErrorSurfaces(t *testing.T) {
	req := ManualRequest{
		Request: julyRequest(),
		FileA:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,31-02-2024,1180,1000,180,0,0,0,B2B`),
		FileB:   csvFile(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
	}

	_, err := newTestService(nil).Reconcile2BManual(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestResolveFailFast(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"bad fy", Request{SelectedFY: "20xx", PeriodType: "MONTHLY", PeriodValue: "July"}},
		{"non-consecutive fy", Request{SelectedFY: "2024-2026", PeriodType: "MONTHLY", PeriodValue: "July"}},
		{"bad period type", Request{SelectedFY: "2024-2025", PeriodType: "WEEKLY", PeriodValue: "July"}},
		{"monthly without month", Request{SelectedFY: "2024-2025", PeriodType: "MONTHLY", PeriodValue: ""}},
		{"quarterly without quarter", Request{SelectedFY: "2024-2025", PeriodType: "QUARTERLY", PeriodValue: "July"}},
		{"negative tolerance", Request{SelectedFY: "2024-2025", PeriodType: "MONTHLY", PeriodValue: "July", Tolerance: "-1"}},
		{"unparseable tolerance", Request{SelectedFY: "2024-2025", PeriodType: "MONTHLY", PeriodValue: "July", Tolerance: "abc"}},
		{"future month", Request{SelectedFY: "2024-2025", PeriodType: "MONTHLY", PeriodValue: "December"}},
	}

	now := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.Resolve(now)
			require.Error(t, err)
			re, ok := gsterrors.AsReconError(err)
			require.True(t, ok)
			assert.Equal(t, gsterrors.CategoryConfiguration, re.Category)
		})
	}
}

func TestResolveAcceptedSpellings(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	opts, err := Request{SelectedFY: "2024-25", PeriodType: "QUARTERLY", PeriodValue: "Q2 (Jul-Sep)"}.Resolve(now)
	require.NoError(t, err)
	assert.Equal(t, fiscal.Period{FYStart: 2024, Granularity: fiscal.Quarter, Value: 2}, opts.Period)

	opts, err = Request{SelectedFY: "2024-2025", PeriodType: "ANNUALLY", PeriodValue: "Entire Year"}.Resolve(now)
	require.NoError(t, err)
	assert.Equal(t, fiscal.Year, opts.Period.Granularity)

	opts, err = Request{SelectedFY: "2024-2025", PeriodType: "MONTHLY", PeriodValue: "7"}.Resolve(now)
	require.NoError(t, err)
	assert.Equal(t, 7, opts.Period.Value)
	assert.True(t, opts.Tolerance.Equal(decimal.NewFromInt(1)))
}

// stubPortal serves canned portal data and records freshness demands.
type stubPortal struct {
	invoices     map[models.SourceSystem][]*models.Transaction
	sales        map[fiscal.YearMonth]aggregator.SalesFigures
	itc          map[fiscal.YearMonth]aggregator.ITCFigures
	sawForceRefresh bool
}

func (s *stubPortal) FetchInvoices(ctx context.Context, cred portal.Credential, source models.SourceSystem, period fiscal.Period) ([]*models.Transaction, error) {
	if portal.ForceRefresh(ctx) {
		s.sawForceRefresh = true
	}
	return s.invoices[source], nil
}

func (s *stubPortal) FetchSalesSummary(ctx context.Context, cred portal.Credential, month fiscal.YearMonth) (aggregator.SalesFigures, error) {
	return s.sales[month], nil
}

func (s *stubPortal) FetchITCSummary(ctx context.Context, cred portal.Credential, month fiscal.YearMonth) (aggregator.ITCFigures, error) {
	return s.itc[month], nil
}

func portalTx(invoice string, date time.Time, taxable, igst float64) *models.Transaction {
	tr := &models.Transaction{
		Source:        models.SourcePortal1,
		InvoiceNumber: invoice,
		InvoiceDate:   date,
		TaxableValue:  decimal.NewFromFloat(taxable),
		IGST:          decimal.NewFromFloat(igst),
		RecordType:    models.RecordB2B,
	}
	tr.GrossAmount = tr.TotalValue()
	tr.SetGSTIN("29BBBBB1111B1Z6")
	return tr
}

var testCred = portal.Credential{SessionID: "sess-1", GSTIN: "27AAAAA0000A1Z5"}

func TestReconcile1VsBooks(t *testing.T) {
	july15 := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	stub := &stubPortal{
		invoices: map[models.SourceSystem][]*models.Transaction{
			models.SourcePortal1: {portalTx("INV001", july15, 1000, 180)},
		},
	}

	req := BooksRequest{
		Request:   julyRequest(),
		FileBooks: csvFile(`29BBBBB1111B1Z6,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
	}
	req.ForceRefresh = true

	res, err := newTestService(stub).Reconcile1VsBooks(context.Background(), testCred, req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Metrics.Matched)
	assert.True(t, stub.sawForceRefresh)
	assert.Equal(t, testCred.GSTIN, res.SessionInfo.GSTIN)
}

func TestReconcile1VsBooksOnlyInPortalLabel(t *testing.T) {
	july15 := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	stub := &stubPortal{
		invoices: map[models.SourceSystem][]*models.Transaction{
			models.SourcePortal1: {portalTx("INV001", july15, 1000, 180)},
		},
	}

	req := BooksRequest{
		Request:   julyRequest(),
		FileBooks: strings.NewReader(templateHeader + "\n"),
	}

	res, err := newTestService(stub).Reconcile1VsBooks(context.Background(), testCred, req)
	require.NoError(t, err)

	rows := res.Tables[string(matcher.BucketOnlyInA)]
	require.Len(t, rows, 1)
	assert.Equal(t, "Only in Portal", rows[0].Remarks)
}

func TestReconcile1VsBooksRequiresPortalClient(t *testing.T) {
	req := BooksRequest{
		Request:   julyRequest(),
		FileBooks: strings.NewReader(templateHeader + "\n"),
	}
	_, err := newTestService(nil).Reconcile1VsBooks(context.Background(), testCred, req)
	require.Error(t, err)

	re, ok := gsterrors.AsReconError(err)
	require.True(t, ok)
	assert.Equal(t, gsterrors.CodeMissingConfig, re.Code)
}

func TestReconcile3BVsBooks(t *testing.T) {
	july := fiscal.YearMonth{Year: 2024, Month: 7}
	stub := &stubPortal{
		sales: map[fiscal.YearMonth]aggregator.SalesFigures{
			july: {Taxable: decimal.NewFromInt(1000), IGST: decimal.NewFromInt(180)},
		},
	}

	req := BooksRequest{
		Request:   julyRequest(),
		FileBooks: csvFile(`29BBBBB1111B1Z6,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
	}

	res, err := newTestService(stub).Reconcile3BVsBooks(context.Background(), testCred, req)
	require.NoError(t, err)

	require.Len(t, res.Summary, 1)
	block := res.Summary[0]
	assert.Equal(t, "Jul 2024", block.Month)
	assert.Equal(t, aggregator.StatusMatched, block.Status)
	assert.Empty(t, res.Tables)
}

func TestReconcileComprehensive(t *testing.T) {
	july15 := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	july := fiscal.YearMonth{Year: 2024, Month: 7}

	twoB := portalTx("INV500", july15, 1000, 180)
	twoB.Source = models.SourcePortal2B

	stub := &stubPortal{
		invoices: map[models.SourceSystem][]*models.Transaction{
			models.SourcePortal1:  {portalTx("INV001", july15, 1000, 180)},
			models.SourcePortal2B: {twoB},
		},
		sales: map[fiscal.YearMonth]aggregator.SalesFigures{
			july: {Taxable: decimal.NewFromInt(1000), IGST: decimal.NewFromInt(180)},
		},
		itc: map[fiscal.YearMonth]aggregator.ITCFigures{
			july: {IGST: decimal.NewFromInt(180)},
		},
	}

	req := julyRequest()

	res, err := newTestService(stub).ReconcileComprehensive(context.Background(), testCred, req)
	require.NoError(t, err)

	require.Len(t, res.Sales, 1)
	assert.Equal(t, aggregator.StatusMatched, res.Sales[0].Status)
	require.Len(t, res.ITC, 1)
	assert.Equal(t, aggregator.StatusReconciled, res.ITC[0].Status)
}

func TestReconcileComprehensiveSkipsFutureMonths(t *testing.T) {
	stub := &stubPortal{}
	req := Request{SelectedFY: "2024-2025", PeriodType: "ANNUALLY"}

	res, err := newTestService(stub).ReconcileComprehensive(context.Background(), testCred, req)
	require.NoError(t, err)

	// Service clock is mid-August 2024: April through August are
	// reportable, September onward is not.
	require.Len(t, res.Sales, 5)
	assert.Equal(t, "Apr 2024", res.Sales[0].Month)
	assert.Equal(t, "Aug 2024", res.Sales[4].Month)
	for _, block := range res.Sales {
		assert.Equal(t, aggregator.StatusNoData, block.Status)
	}
}

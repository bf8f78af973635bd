package reconciler

import (
	"context"
	"time"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/matcher"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/parsers"
	"gst-reconciliation-service/internal/portal"
	gsterrors "gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// Service hosts the reconciliation operations. It holds no per-run state:
// every call is a pure function of its inputs, so concurrent callers need
// no coordination.
type Service struct {
	portal portal.Client
	log    logger.Logger
	now    func() time.Time
}

// NewService builds a reconciliation service. The portal client may be nil
// when only the manual file-vs-file operation is needed.
func NewService(portalClient portal.Client) *Service {
	return &Service{
		portal: portalClient,
		log:    logger.WithComponent("reconciler"),
		now:    time.Now,
	}
}

func (s *Service) requirePortal() error {
	if s.portal == nil {
		return gsterrors.ConfigurationError(gsterrors.CodeMissingConfig, "portal_client", nil, nil).
			WithSuggestion("configure a portal gateway URL to use portal-backed reconciliations")
	}
	return nil
}

func (s *Service) fetchCtx(ctx context.Context, opts *Options) context.Context {
	if opts.ForceRefresh {
		return portal.WithForceRefresh(ctx)
	}
	return ctx
}

// Reconcile2BManual reconciles two uploaded template files: a GSTR-2B
// export against the taxpayer's books.
func (s *Service) Reconcile2BManual(ctx context.Context, req ManualRequest) (*Result, error) {
	opts, err := req.Resolve(s.now())
	if err != nil {
		return nil, err
	}
	if req.FileA == nil || req.FileB == nil {
		return nil, gsterrors.ValidationError(
			gsterrors.CodeMissingField, "files", nil, nil).
			WithSuggestion("upload both the 2B file and the books file")
	}

	timer := logger.StartRun(s.log, "reconcile_2b_manual")

	side2B, _, err := parsers.ParseReader(req.FileA, models.SourcePortal2B, nil)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	books, _, err := parsers.ParseReader(req.FileB, models.SourceBooks, nil)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}

	result, err := s.run(side2B, books, opts, labels2B, newSessionInfo("", opts.Period))
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	timer.Done(len(side2B), len(books))
	return result, nil
}

// Reconcile1VsBooks reconciles the taxpayer's filed GSTR-1 invoices,
// fetched from the portal, against an uploaded books file.
func (s *Service) Reconcile1VsBooks(ctx context.Context, cred portal.Credential, req BooksRequest) (*Result, error) {
	opts, err := req.Resolve(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.requirePortal(); err != nil {
		return nil, err
	}
	if req.FileBooks == nil {
		return nil, gsterrors.ValidationError(
			gsterrors.CodeMissingField, "file_books", nil, nil)
	}

	timer := logger.StartRun(s.log, "reconcile_1_books")

	portalRows, err := s.portal.FetchInvoices(s.fetchCtx(ctx, opts), cred, models.SourcePortal1, opts.Period)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	books, _, err := parsers.ParseReader(req.FileBooks, models.SourceBooks, nil)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}

	result, err := s.run(portalRows, books, opts, labelsPortal, newSessionInfo(cred.GSTIN, opts.Period))
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	timer.Done(len(portalRows), len(books))
	return result, nil
}

// run is the shared normalize-and-match tail of the invoice-level
// operations.
func (s *Service) run(sideA, sideB []*models.Transaction, opts *Options, labels sourceLabels, session SessionInfo) (*Result, error) {
	cfg, err := matcher.NewConfig(opts.Tolerance, opts.Period)
	if err != nil {
		return nil, err
	}
	res, err := matcher.Match(sideA, sideB, cfg)
	if err != nil {
		return nil, err
	}
	return assemble(res, opts.Period, labels, session), nil
}

// Reconcile3BVsBooks compares the 3B summary return's sales figures
// against the books, month by month. 3B carries no invoice detail, so this
// operation produces month blocks only, never bucket tables.
func (s *Service) Reconcile3BVsBooks(ctx context.Context, cred portal.Credential, req BooksRequest) (*Result, error) {
	opts, err := req.Resolve(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.requirePortal(); err != nil {
		return nil, err
	}
	if req.FileBooks == nil {
		return nil, gsterrors.ValidationError(
			gsterrors.CodeMissingField, "file_books", nil, nil)
	}

	timer := logger.StartRun(s.log, "reconcile_3b_books")

	books, _, err := parsers.ParseReader(req.FileBooks, models.SourceBooks, nil)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	booksByMonth := partitionByMonth(books)

	fetchCtx := s.fetchCtx(ctx, opts)
	var blocks []aggregator.MonthBlock
	for _, ym := range s.electableMonths(opts.Period) {
		from3B, err := s.portal.FetchSalesSummary(fetchCtx, cred, ym)
		if err != nil {
			timer.Failed(err)
			return nil, err
		}
		fromBooks := aggregator.SalesFromTransactions(booksByMonth[ym])
		blocks = append(blocks, aggregator.SalesBlock(ym.Label(), from3B, fromBooks))
	}

	result := &Result{
		Status:      "success",
		PeriodLabel: opts.Period.Label(),
		Tables:      map[string][]TableRow{},
		Summary:     blocks,
		SessionInfo: newSessionInfo(cred.GSTIN, opts.Period),
	}
	timer.Done(0, len(books))
	return result, nil
}

// ReconcileComprehensive cross-checks every filed return for the period:
// sales as reported in GSTR-1 against the 3B summary, and credit available
// in 2B against the credit claimed in 3B with its RCM portion netted out.
func (s *Service) ReconcileComprehensive(ctx context.Context, cred portal.Credential, req Request) (*ComprehensiveResult, error) {
	opts, err := req.Resolve(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.requirePortal(); err != nil {
		return nil, err
	}

	timer := logger.StartRun(s.log, "reconcile_comprehensive")
	fetchCtx := s.fetchCtx(ctx, opts)

	gstr1, err := s.portal.FetchInvoices(fetchCtx, cred, models.SourcePortal1, opts.Period)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	gstr2b, err := s.portal.FetchInvoices(fetchCtx, cred, models.SourcePortal2B, opts.Period)
	if err != nil {
		timer.Failed(err)
		return nil, err
	}
	salesByMonth := partitionByMonth(gstr1)
	creditByMonth := partitionByMonth(gstr2b)

	result := &ComprehensiveResult{
		Status:      "success",
		PeriodLabel: opts.Period.Label(),
		SessionInfo: newSessionInfo(cred.GSTIN, opts.Period),
	}
	for _, ym := range s.electableMonths(opts.Period) {
		sales3B, err := s.portal.FetchSalesSummary(fetchCtx, cred, ym)
		if err != nil {
			timer.Failed(err)
			return nil, err
		}
		sales1 := aggregator.SalesFromTransactions(salesByMonth[ym])
		result.Sales = append(result.Sales, aggregator.SalesBlock(ym.Label(), sales1, sales3B))

		itc3B, err := s.portal.FetchITCSummary(fetchCtx, cred, ym)
		if err != nil {
			timer.Failed(err)
			return nil, err
		}
		itc2B := aggregator.ITCFromTransactions(creditByMonth[ym])
		result.ITC = append(result.ITC, aggregator.ITCBlock(ym.Label(), itc2B, itc3B))
	}

	timer.Done(len(gstr1), len(gstr2b))
	return result, nil
}

// electableMonths lists the period's months up to the present. Future
// months have no filed returns to fetch.
func (s *Service) electableMonths(period fiscal.Period) []fiscal.YearMonth {
	now := s.now()
	var months []fiscal.YearMonth
	for _, ym := range period.Months() {
		if ym.Year > now.Year() || (ym.Year == now.Year() && ym.Month > int(now.Month())) {
			continue
		}
		months = append(months, ym)
	}
	return months
}

func partitionByMonth(txs []*models.Transaction) map[fiscal.YearMonth][]*models.Transaction {
	byMonth := make(map[fiscal.YearMonth][]*models.Transaction)
	for _, t := range txs {
		ym := fiscal.YearMonth{Year: t.InvoiceDate.Year(), Month: int(t.InvoiceDate.Month())}
		byMonth[ym] = append(byMonth[ym], t)
	}
	return byMonth
}

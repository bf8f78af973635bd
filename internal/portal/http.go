package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/models"
	gsterrors "gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// HTTPClient talks to the GST portal gateway over its JSON API. The gateway
// fronts the government portal and owns login, captcha and OTP flows; this
// client only replays an established session.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewHTTPClient builds a portal client against a gateway base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.WithComponent("portal_client"),
	}
}

// envelope is the gateway's uniform response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// invoiceRow is one invoice line as the gateway reports it.
type invoiceRow struct {
	GSTIN    string `json:"gstin"`
	Supplier string `json:"supplier"`
	Invoice  string `json:"invoice"`
	Date     string `json:"date"`
	Taxable  string `json:"taxable"`
	IGST     string `json:"igst"`
	CGST     string `json:"cgst"`
	SGST     string `json:"sgst"`
	Cess     string `json:"cess"`
	Type     string `json:"type"`
}

var sourcePaths = map[models.SourceSystem]string{
	models.SourcePortal1:  "gstr1",
	models.SourcePortal2A: "gstr2a",
	models.SourcePortal2B: "gstr2b",
}

func (c *HTTPClient) FetchInvoices(ctx context.Context, cred Credential, source models.SourceSystem, period fiscal.Period) ([]*models.Transaction, error) {
	path, ok := sourcePaths[source]
	if !ok {
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed,
			fmt.Sprintf("source %s carries no invoice detail", source), nil)
	}

	start, end := period.Bounds()
	url := fmt.Sprintf("%s/api/returns/%s?gstin=%s&from=%s&to=%s",
		c.baseURL, path, cred.GSTIN,
		start.Format("2006-01-02"), end.AddDate(0, 0, -1).Format("2006-01-02"))

	data, err := c.doGet(ctx, cred, url)
	if err != nil {
		return nil, err
	}

	var rows []invoiceRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed, "decoding invoice rows", err)
	}

	txs := make([]*models.Transaction, 0, len(rows))
	for i, r := range rows {
		tx, err := r.toTransaction(source)
		if err != nil {
			return nil, gsterrors.Wrap(err, gsterrors.CategoryPortal, gsterrors.CodeFetchFailed,
				fmt.Sprintf("invoice row %d from %s", i+1, path))
		}
		txs = append(txs, tx)
	}

	c.log.WithFields(logger.Fields{
		"source": source,
		"gstin":  cred.GSTIN,
		"rows":   len(txs),
	}).Debug("fetched invoice rows")
	return txs, nil
}

func (c *HTTPClient) FetchSalesSummary(ctx context.Context, cred Credential, month fiscal.YearMonth) (aggregator.SalesFigures, error) {
	url := fmt.Sprintf("%s/api/returns/gstr3b/sales?gstin=%s&year=%d&month=%d",
		c.baseURL, cred.GSTIN, month.Year, month.Month)

	data, err := c.doGet(ctx, cred, url)
	if err != nil {
		return aggregator.SalesFigures{}, err
	}

	var figures aggregator.SalesFigures
	if err := json.Unmarshal(data, &figures); err != nil {
		return aggregator.SalesFigures{}, gsterrors.PortalError(
			gsterrors.CodeFetchFailed, "decoding 3B sales summary", err)
	}
	return figures, nil
}

func (c *HTTPClient) FetchITCSummary(ctx context.Context, cred Credential, month fiscal.YearMonth) (aggregator.ITCFigures, error) {
	url := fmt.Sprintf("%s/api/returns/gstr3b/itc?gstin=%s&year=%d&month=%d",
		c.baseURL, cred.GSTIN, month.Year, month.Month)

	data, err := c.doGet(ctx, cred, url)
	if err != nil {
		return aggregator.ITCFigures{}, err
	}

	var figures aggregator.ITCFigures
	if err := json.Unmarshal(data, &figures); err != nil {
		return aggregator.ITCFigures{}, gsterrors.PortalError(
			gsterrors.CodeFetchFailed, "decoding 3B ITC summary", err)
	}
	return figures, nil
}

func (c *HTTPClient) doGet(ctx context.Context, cred Credential, url string) (json.RawMessage, error) {
	if !cred.Valid() {
		return nil, gsterrors.PortalError(gsterrors.CodeSessionExpired, "missing portal session", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Session-ID", cred.SessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gsterrors.PortalError(gsterrors.CodeServiceUnavailable, "portal gateway unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed, "reading response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, gsterrors.PortalError(gsterrors.CodeSessionExpired, "portal session rejected", nil)
	case resp.StatusCode >= 500:
		return nil, gsterrors.PortalError(gsterrors.CodeServiceUnavailable,
			fmt.Sprintf("portal gateway returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed,
			fmt.Sprintf("portal gateway returned %d", resp.StatusCode), nil)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed, "decoding response envelope", err)
	}
	if env.Status != "success" {
		return nil, gsterrors.PortalError(gsterrors.CodeFetchFailed,
			fmt.Sprintf("portal request failed: %s", env.Message), nil)
	}
	return env.Data, nil
}

func (r invoiceRow) toTransaction(source models.SourceSystem) (*models.Transaction, error) {
	tx := &models.Transaction{
		Source:        source,
		Supplier:      r.Supplier,
		InvoiceNumber: r.Invoice,
	}
	tx.SetGSTIN(r.GSTIN)

	date, err := models.ParseInvoiceDate(r.Date)
	if err != nil {
		return nil, err
	}
	tx.InvoiceDate = date

	amounts := []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{r.Taxable, &tx.TaxableValue},
		{r.IGST, &tx.IGST},
		{r.CGST, &tx.CGST},
		{r.SGST, &tx.SGST},
		{r.Cess, &tx.Cess},
	}
	for _, a := range amounts {
		v, err := models.ParseAmount(a.raw)
		if err != nil {
			return nil, err
		}
		*a.dest = v
	}

	recordType, err := models.ParseRecordType(r.Type)
	if err != nil {
		return nil, err
	}
	tx.RecordType = recordType
	tx.GrossAmount = tx.TotalValue()

	return tx, nil
}

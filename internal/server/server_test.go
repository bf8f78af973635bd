package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/portal"
	"gst-reconciliation-service/internal/reconciler"
	gsterrors "gst-reconciliation-service/pkg/errors"
)

const templateHeader = "GSTIN/UIN,Supplier,Invoice,Date,Gross Amt,Taxable,IGST,SGST,CGST,Cess,Type"

func templateCSV(rows ...string) string {
	return templateHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

type multipartUpload struct {
	fields map[string]string
	files  map[string]string
}

func (u multipartUpload) encode(t *testing.T) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range u.fields {
		require.NoError(t, w.WriteField(name, value))
	}
	for name, content := range u.files {
		fw, err := w.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func julyFields() map[string]string {
	return map[string]string{
		"selected_fy":         "2024-2025",
		"period_type":         "MONTHLY",
		"selected_period_val": "July",
		"tolerance":           "1",
	}
}

// stubPortal serves canned data for the portal-backed endpoints.
type stubPortal struct {
	invoices map[models.SourceSystem][]*models.Transaction
	err      error
}

func (s *stubPortal) FetchInvoices(ctx context.Context, cred portal.Credential, source models.SourceSystem, period fiscal.Period) ([]*models.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.invoices[source], nil
}

func (s *stubPortal) FetchSalesSummary(ctx context.Context, cred portal.Credential, month fiscal.YearMonth) (aggregator.SalesFigures, error) {
	if s.err != nil {
		return aggregator.SalesFigures{}, s.err
	}
	return aggregator.SalesFigures{}, nil
}

func (s *stubPortal) FetchITCSummary(ctx context.Context, cred portal.Credential, month fiscal.YearMonth) (aggregator.ITCFigures, error) {
	if s.err != nil {
		return aggregator.ITCFigures{}, s.err
	}
	return aggregator.ITCFigures{}, nil
}

func newTestServer(client portal.Client) *Server {
	return NewServer(reconciler.NewService(client))
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListPeriods(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/periods", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Data   []fiscal.FYOption `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Len(t, body.Data, 5)
}

func TestReconcile2BManualEndpoint(t *testing.T) {
	upload := multipartUpload{
		fields: julyFields(),
		files: map[string]string{
			"file_2b":    templateCSV(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
			"file_books": templateCSV(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
		},
	}
	body, contentType := upload.encode(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/2b-books", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result reconciler.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, result.Metrics.Matched)
	assert.NotEmpty(t, result.SessionInfo.RunID)
}

func TestReconcile2BManualMissingFile(t *testing.T) {
	upload := multipartUpload{
		fields: julyFields(),
		files: map[string]string{
			"file_2b": templateCSV(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,180,0,0,0,B2B`),
		},
	}
	body, contentType := upload.encode(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/2b-books", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "file_books")
}

func TestReconcile2BManualBadConfig(t *testing.T) {
	fields := julyFields()
	fields["tolerance"] = "-5"
	upload := multipartUpload{
		fields: fields,
		files: map[string]string{
			"file_2b":    templateCSV(),
			"file_books": templateCSV(),
		},
	}
	body, contentType := upload.encode(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/2b-books", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp struct {
		Status string `json:"status"`
		Error  struct {
			Category string `json:"category"`
			Code     string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "error", errResp.Status)
	assert.Equal(t, "configuration", errResp.Error.Category)
}

func TestReconcile2BManualBadRow(t *testing.T) {
	upload := multipartUpload{
		fields: julyFields(),
		files: map[string]string{
			"file_2b":    templateCSV(`27AAAAA0000A1Z5,Acme,INV001,15-07-2024,1180,1000,abc,0,0,0,B2B`),
			"file_books": templateCSV(),
		},
	}
	body, contentType := upload.encode(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/2b-books", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "row 2")
}

func TestReconcile1VsBooksSessionExpired(t *testing.T) {
	stub := &stubPortal{err: gsterrors.PortalError(gsterrors.CodeSessionExpired, "gstr1", nil)}

	upload := multipartUpload{
		fields: julyFields(),
		files:  map[string]string{"file_books": templateCSV()},
	}
	body, contentType := upload.encode(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/1-books", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Session-ID", "sess-1")
	rec := httptest.NewRecorder()
	newTestServer(stub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReconcile1VsBooksPortalDown(t *testing.T) {
	stub := &stubPortal{err: gsterrors.PortalError(gsterrors.CodeServiceUnavailable, "gstr1", nil)}

	upload := multipartUpload{
		fields: julyFields(),
		files:  map[string]string{"file_books": templateCSV()},
	}
	body, contentType := upload.encode(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/1-books", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newTestServer(stub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestReconcileComprehensiveEndpoint(t *testing.T) {
	july15 := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	inv := &models.Transaction{
		Source:        models.SourcePortal1,
		InvoiceNumber: "INV001",
		InvoiceDate:   july15,
		TaxableValue:  decimal.NewFromInt(1000),
		IGST:          decimal.NewFromInt(180),
		RecordType:    models.RecordB2B,
	}
	inv.GrossAmount = inv.TotalValue()
	inv.SetGSTIN("29BBBBB1111B1Z6")

	stub := &stubPortal{
		invoices: map[models.SourceSystem][]*models.Transaction{
			models.SourcePortal1: {inv},
		},
	}

	form := url.Values{}
	for k, v := range julyFields() {
		form.Set(k, v)
	}
	form.Set("gstin", "27AAAAA0000A1Z5")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile/comprehensive",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Session-ID", "sess-1")
	rec := httptest.NewRecorder()
	newTestServer(stub).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result reconciler.ComprehensiveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "success", result.Status)
	require.NotEmpty(t, result.Sales)
	assert.Equal(t, "Jul 2024", result.Sales[0].Month)
}

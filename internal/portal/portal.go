// Package portal fetches return data (GSTR-1/2A/2B invoice rows, 3B summary
// figures) from the GST portal gateway on behalf of a logged-in taxpayer.
// The reconciliation core never talks to the portal itself; it accepts
// whatever rows a Client hands it.
package portal

import (
	"context"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/models"
)

// Credential identifies an authenticated portal session. It is opaque to the
// reconciliation core; only portal clients interpret it.
type Credential struct {
	SessionID string `json:"session_id"`
	GSTIN     string `json:"gstin"`
	Username  string `json:"username,omitempty"`
}

// Valid reports whether the credential can authenticate a fetch.
func (c Credential) Valid() bool {
	return c.SessionID != "" && c.GSTIN != ""
}

// Client supplies portal-side return data for one taxpayer and period.
// Implementations may serve stale data; wrap with NewCachingClient and use
// WithForceRefresh to control freshness.
type Client interface {
	// FetchInvoices returns invoice-level rows for an invoice-bearing
	// return (GSTR-1, 2A or 2B) covering the period.
	FetchInvoices(ctx context.Context, cred Credential, source models.SourceSystem, period fiscal.Period) ([]*models.Transaction, error)

	// FetchSalesSummary returns the 3B outward-supply figures for a month.
	FetchSalesSummary(ctx context.Context, cred Credential, month fiscal.YearMonth) (aggregator.SalesFigures, error)

	// FetchITCSummary returns the 3B input-tax-credit claim for a month.
	FetchITCSummary(ctx context.Context, cred Credential, month fiscal.YearMonth) (aggregator.ITCFigures, error)
}

type forceRefreshKey struct{}

// WithForceRefresh marks the context so caching clients bypass their cache
// and fetch fresh data.
func WithForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceRefreshKey{}, true)
}

// ForceRefresh reports whether the context demands a cache bypass.
func ForceRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(forceRefreshKey{}).(bool)
	return v
}

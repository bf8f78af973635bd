package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gst-reconciliation-service/internal/aggregator"
	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/logger"
)

// DefaultCacheTTL bounds how long fetched portal data is reused. Portal
// returns change rarely within a filing window, so minutes-scale reuse is
// safe and spares the gateway repeated full-period pulls.
const DefaultCacheTTL = 15 * time.Minute

type cacheEntry struct {
	invoices  []*models.Transaction
	sales     aggregator.SalesFigures
	itc       aggregator.ITCFigures
	fetchedAt time.Time
}

// CachingClient memoizes portal fetches per taxpayer, return and period.
// A context marked with WithForceRefresh bypasses and replaces the cached
// entry. Safe for concurrent use.
type CachingClient struct {
	inner Client
	ttl   time.Duration
	now   func() time.Time
	log   logger.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachingClient wraps a portal client with a TTL cache.
func NewCachingClient(inner Client, ttl time.Duration) *CachingClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingClient{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		log:     logger.WithComponent("portal_cache"),
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachingClient) lookup(ctx context.Context, key string) (cacheEntry, bool) {
	if ForceRefresh(ctx) {
		return cacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) > c.ttl {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *CachingClient) store(key string, e cacheEntry) {
	e.fetchedAt = c.now()
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *CachingClient) FetchInvoices(ctx context.Context, cred Credential, source models.SourceSystem, period fiscal.Period) ([]*models.Transaction, error) {
	key := fmt.Sprintf("inv|%s|%s|%s", cred.GSTIN, source, period.Label())
	if e, ok := c.lookup(ctx, key); ok {
		c.log.WithField("key", key).Debug("cache hit")
		return e.invoices, nil
	}

	rows, err := c.inner.FetchInvoices(ctx, cred, source, period)
	if err != nil {
		return nil, err
	}
	c.store(key, cacheEntry{invoices: rows})
	return rows, nil
}

func (c *CachingClient) FetchSalesSummary(ctx context.Context, cred Credential, month fiscal.YearMonth) (aggregator.SalesFigures, error) {
	key := fmt.Sprintf("sales|%s|%d-%02d", cred.GSTIN, month.Year, month.Month)
	if e, ok := c.lookup(ctx, key); ok {
		return e.sales, nil
	}

	figures, err := c.inner.FetchSalesSummary(ctx, cred, month)
	if err != nil {
		return aggregator.SalesFigures{}, err
	}
	c.store(key, cacheEntry{sales: figures})
	return figures, nil
}

func (c *CachingClient) FetchITCSummary(ctx context.Context, cred Credential, month fiscal.YearMonth) (aggregator.ITCFigures, error) {
	key := fmt.Sprintf("itc|%s|%d-%02d", cred.GSTIN, month.Year, month.Month)
	if e, ok := c.lookup(ctx, key); ok {
		return e.itc, nil
	}

	figures, err := c.inner.FetchITCSummary(ctx, cred, month)
	if err != nil {
		return aggregator.ITCFigures{}, err
	}
	c.store(key, cacheEntry{itc: figures})
	return figures, nil
}

package pricing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds the fallback prices used when a key is missing or inactive.
type Config struct {
	Defaults map[string]decimal.Decimal
	Fallback decimal.Decimal
	CacheTTL time.Duration
}

type cachedPrice struct {
	entry   *PriceEntry
	expires time.Time
}

// Catalog resolves service prices. Entries are cached in process for CacheTTL.
type Catalog struct {
	repo     Repository
	defaults map[string]decimal.Decimal
	fallback decimal.Decimal
	ttl      time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	entries   map[string]cachedPrice
	active    []PriceEntry
	activeExp time.Time
}

func NewCatalog(repo Repository, cfg Config) *Catalog {
	defaults := make(map[string]decimal.Decimal, len(cfg.Defaults))
	for k, v := range cfg.Defaults {
		defaults[k] = v
	}
	return &Catalog{
		repo:     repo,
		defaults: defaults,
		fallback: cfg.Fallback,
		ttl:      cfg.CacheTTL,
		now:      time.Now,
		entries:  make(map[string]cachedPrice),
	}
}

// Default is the configured price for key.
func (c *Catalog) Default(key string) decimal.Decimal {
	if v, ok := c.defaults[key]; ok {
		return v
	}
	return c.fallback
}

// GetPrice returns the unit price for key. It never fails: absent, inactive
// or unreadable entries resolve to the configured default.
func (c *Catalog) GetPrice(ctx context.Context, key string) decimal.Decimal {
	if entry, ok := c.cached(key); ok {
		return c.priceOf(key, entry)
	}

	entry, err := c.repo.Get(ctx, key)
	switch {
	case errors.Is(err, ErrPriceNotFound):
		entry = nil
	case err != nil:
		log.Warn().Err(err).Str("service_key", key).Msg("price lookup failed, using default")
		return c.Default(key)
	}

	c.mu.Lock()
	c.entries[key] = cachedPrice{entry: entry, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return c.priceOf(key, entry)
}

// Quote is the total for units of key.
func (c *Catalog) Quote(ctx context.Context, key string, units int) decimal.Decimal {
	return c.GetPrice(ctx, key).Mul(decimal.NewFromInt(int64(units)))
}

func (c *Catalog) cached(key string) (*PriceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp, ok := c.entries[key]
	if !ok || !c.now().Before(cp.expires) {
		return nil, false
	}
	return cp.entry, true
}

func (c *Catalog) priceOf(key string, entry *PriceEntry) decimal.Decimal {
	if entry == nil || !entry.IsActive || entry.UnitPrice.IsNegative() {
		return c.Default(key)
	}
	return entry.UnitPrice
}

// ListActive returns the active price entries.
func (c *Catalog) ListActive(ctx context.Context) ([]PriceEntry, error) {
	c.mu.RLock()
	if c.active != nil && c.now().Before(c.activeExp) {
		out := make([]PriceEntry, len(c.active))
		copy(out, c.active)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	items, err := c.repo.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list prices")
		return nil, err
	}

	c.mu.Lock()
	c.active = items
	c.activeExp = c.now().Add(c.ttl)
	c.mu.Unlock()

	out := make([]PriceEntry, len(items))
	copy(out, items)
	return out, nil
}

// Invalidate drops every cached entry.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cachedPrice)
	c.active = nil
	c.mu.Unlock()
}

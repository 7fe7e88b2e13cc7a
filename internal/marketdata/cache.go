package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

type cachedPrice struct {
	price   decimal.Decimal
	fetched time.Time
}

// CachedFeed memoizes prices from an underlying feed for a short TTL so the
// mark-to-market sweep and the pipeline don't hammer the upstream within
// the same tick.
type CachedFeed struct {
	upstream PriceFeed
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	prices map[models.Pair]cachedPrice
}

func NewCachedFeed(upstream PriceFeed, ttl time.Duration, logger *zap.Logger) *CachedFeed {
	return &CachedFeed{
		upstream: upstream,
		ttl:      ttl,
		logger:   logger.Named("pricecache"),
		now:      time.Now,
		prices:   map[models.Pair]cachedPrice{},
	}
}

func (c *CachedFeed) Price(ctx context.Context, pair models.Pair) (decimal.Decimal, error) {
	c.mu.RLock()
	cached, ok := c.prices[pair]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.fetched) <= c.ttl {
		return cached.price, nil
	}

	price, err := c.upstream.Price(ctx, pair)
	if err != nil {
		// Serve the stale entry if we have one; the ledger tolerates
		// stale marks better than missing ones.
		if ok {
			c.logger.Debug("upstream price failed, serving stale",
				zap.String("pair", pair.String()), zap.Error(err))
			return cached.price, nil
		}
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.prices[pair] = cachedPrice{price: price, fetched: c.now()}
	c.mu.Unlock()
	return price, nil
}

func (c *CachedFeed) History(ctx context.Context, pair models.Pair, n int) ([]float64, error) {
	return c.upstream.History(ctx, pair, n)
}

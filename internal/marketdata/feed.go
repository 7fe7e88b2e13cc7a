// Package marketdata defines the price feed the pipeline consumes.
// Retrieval from real venues is an external collaborator; this package
// ships the interface, a static in-memory feed for paper runs and tests,
// and a caching wrapper.
package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// PriceFeed supplies the current mark and recent closing prices for a pair.
type PriceFeed interface {
	Price(ctx context.Context, pair models.Pair) (decimal.Decimal, error)
	// History returns up to n closing prices, newest last.
	History(ctx context.Context, pair models.Pair, n int) ([]float64, error)
}

// StaticFeed is an in-memory feed with settable prices. Paper mode and
// tests drive it directly.
type StaticFeed struct {
	mu      sync.RWMutex
	prices  map[models.Pair]decimal.Decimal
	history map[models.Pair][]float64
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{
		prices:  map[models.Pair]decimal.Decimal{},
		history: map[models.Pair][]float64{},
	}
}

// SetPrice sets the current mark and appends it to the pair's history.
func (f *StaticFeed) SetPrice(pair models.Pair, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[pair] = price
	f.history[pair] = append(f.history[pair], price.InexactFloat64())
}

// SetHistory replaces the pair's price history, newest last.
func (f *StaticFeed) SetHistory(pair models.Pair, prices []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[pair] = append([]float64(nil), prices...)
}

func (f *StaticFeed) Price(_ context.Context, pair models.Pair) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", pair)
	}
	return price, nil
}

func (f *StaticFeed) History(_ context.Context, pair models.Pair, n int) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	hist, ok := f.history[pair]
	if !ok || len(hist) == 0 {
		return nil, fmt.Errorf("no history for %s", pair)
	}
	if n > 0 && len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	return append([]float64(nil), hist...), nil
}

// Lookup adapts a feed to the ledger's PriceLookup shape: a fetch error
// becomes a "no price" skip.
func Lookup(ctx context.Context, feed PriceFeed) func(models.Pair) (decimal.Decimal, bool) {
	return func(pair models.Pair) (decimal.Decimal, bool) {
		price, err := feed.Price(ctx, pair)
		if err != nil {
			return decimal.Zero, false
		}
		return price, true
	}
}

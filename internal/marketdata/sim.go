package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dyike/TradeFuseGo/internal/models"
)

const simHistoryCap = 512

// SimFeed generates a geometric random walk per pair. Paper runs use it
// so the whole loop works without a venue connection; each Price call
// advances the walk one step.
type SimFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	drift  float64
	vol    float64
	prices map[models.Pair]float64
	hist   map[models.Pair][]float64
}

func NewSimFeed(seed int64, drift, vol float64) *SimFeed {
	if vol <= 0 {
		vol = 0.01
	}
	return &SimFeed{
		rng:    rand.New(rand.NewSource(seed)),
		drift:  drift,
		vol:    vol,
		prices: map[models.Pair]float64{},
		hist:   map[models.Pair][]float64{},
	}
}

// Seed sets the walk's starting price for a pair. Pairs never seeded
// start at 100.
func (f *SimFeed) Seed(pair models.Pair, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[pair] = price
	f.hist[pair] = append(f.hist[pair], price)
}

func (f *SimFeed) Price(_ context.Context, pair models.Pair) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	last, ok := f.prices[pair]
	if !ok {
		last = 100
	}
	next := last * math.Exp(f.drift+f.vol*f.rng.NormFloat64())
	f.prices[pair] = next

	h := append(f.hist[pair], next)
	if len(h) > simHistoryCap {
		h = h[len(h)-simHistoryCap:]
	}
	f.hist[pair] = h

	return decimal.NewFromFloat(next), nil
}

func (f *SimFeed) History(_ context.Context, pair models.Pair, n int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := f.hist[pair]
	if len(h) == 0 {
		// Cold pair: warm the history so volatility estimation has data.
		last, ok := f.prices[pair]
		if !ok {
			last = 100
		}
		warm := make([]float64, 0, 64)
		for i := 0; i < 64; i++ {
			last = last * math.Exp(f.drift+f.vol*f.rng.NormFloat64())
			warm = append(warm, last)
		}
		f.prices[pair] = last
		f.hist[pair] = warm
		h = warm
	}
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]float64(nil), h...), nil
}

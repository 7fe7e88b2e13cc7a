package models

import (
	"fmt"
	"strings"
)

// Pair is a base/quote trading instrument, e.g. base=BTC quote=USDT.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// knownQuotes are tried longest-first when a symbol carries no delimiter.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "GBP", "BTC", "ETH", "BNB"}

var pairDelimiters = []string{"/", "-", "_"}

// ParsePair resolves a symbol like "BTC/USDT", "eth-usd" or "SOLUSDT" into
// its base and quote assets. Symbols that resolve to an empty base or that
// match no known quote currency are rejected.
func ParsePair(symbol string) (Pair, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return Pair{}, fmt.Errorf("parse pair: empty symbol")
	}

	for _, delim := range pairDelimiters {
		if !strings.Contains(s, delim) {
			continue
		}
		parts := strings.SplitN(s, delim, 2)
		base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if base == "" || quote == "" {
			return Pair{}, fmt.Errorf("parse pair %q: empty base or quote", symbol)
		}
		return Pair{Base: base, Quote: quote}, nil
	}

	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: strings.TrimSuffix(s, quote), Quote: quote}, nil
		}
	}

	return Pair{}, fmt.Errorf("parse pair %q: no delimiter and no known quote suffix", symbol)
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

func (p Pair) IsZero() bool {
	return p.Base == "" || p.Quote == ""
}

package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"BUY", ActionBuy, true},
		{" buy ", ActionBuy, true},
		{"Long", ActionBuy, true},
		{"bullish", ActionBuy, true},
		{"SELL", ActionSell, true},
		{"short", ActionSell, true},
		{"BEARISH", ActionSell, true},
		{"hold", ActionHold, true},
		{"neutral", ActionHold, true},
		{"wait", ActionHold, true},
		{"moon", ActionHold, false},
		{"", ActionHold, false},
	}
	for _, tc := range cases {
		got, ok := ParseAction(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestActionPredicates(t *testing.T) {
	assert.True(t, ActionBuy.IsTradable())
	assert.True(t, ActionSell.IsTradable())
	assert.False(t, ActionHold.IsTradable())

	assert.True(t, ActionHold.Valid())
	assert.False(t, Action("MAYBE").Valid())
}

func TestParsePair(t *testing.T) {
	cases := []struct {
		in   string
		want Pair
	}{
		{"BTC/USDT", Pair{Base: "BTC", Quote: "USDT"}},
		{"eth-usd", Pair{Base: "ETH", Quote: "USD"}},
		{"sol_usdc", Pair{Base: "SOL", Quote: "USDC"}},
		{"SOLUSDT", Pair{Base: "SOL", Quote: "USDT"}},
		{"ETHBTC", Pair{Base: "ETH", Quote: "BTC"}},
		{" doge/usdt ", Pair{Base: "DOGE", Quote: "USDT"}},
	}
	for _, tc := range cases {
		got, err := ParsePair(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParsePairLongestQuoteWins(t *testing.T) {
	// USDT must be tried before USD so the T is not orphaned onto the base.
	got, err := ParsePair("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "BTC", Quote: "USDT"}, got)
}

func TestParsePairRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "/USDT", "BTC/", "USDT", "XYZABC"} {
		_, err := ParsePair(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestPairString(t *testing.T) {
	p := Pair{Base: "BTC", Quote: "USDT"}
	assert.Equal(t, "BTC/USDT", p.String())
	assert.False(t, p.IsZero())
	assert.True(t, Pair{}.IsZero())
}

func TestExecutionErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ExecutionError{Message: "submit order", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsExecutionError(err))
	assert.False(t, IsExecutionError(cause))
}

package portfolio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

func tempTradeLog(t *testing.T) *TradeLog {
	t.Helper()
	return NewTradeLog(filepath.Join(t.TempDir(), "trades.jsonl"), zap.NewNop())
}

func TestTradeLogRoundTrip(t *testing.T) {
	tl := tempTradeLog(t)
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	pos := &Position{
		TradeID:    "t1",
		Pair:       models.Pair{Base: "BTC", Quote: "USDT"},
		Action:     models.ActionBuy,
		EntryPrice: d("10000"),
		Size:       d("0.5"),
		CostBasis:  d("5000"),
		StopLoss:   dp("9500"),
		TakeProfit: dp("11000"),
		OpenedAt:   opened,
	}
	require.NoError(t, tl.AppendOpen(pos))
	require.NoError(t, tl.AppendClose(&ClosedTrade{
		TradeID:    "t1",
		Pair:       pos.Pair,
		Action:     pos.Action,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  d("11000"),
		Size:       pos.Size,
		CostBasis:  pos.CostBasis,
		PnLPct:     10,
		ExitReason: ExitReasonTakeProfit,
		OpenedAt:   opened,
		ClosedAt:   opened.Add(time.Hour),
	}))

	records, err := tl.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)

	openRec, closeRec := records[0], records[1]
	assert.Equal(t, recordOpen, openRec.Type)
	assert.Equal(t, "BTC/USDT", openRec.Symbol)
	require.NotNil(t, openRec.StopLoss)
	assert.True(t, openRec.StopLoss.Equal(d("9500")))

	assert.Equal(t, recordClose, closeRec.Type)
	assert.InDelta(t, 10, closeRec.PnLPct, 1e-9)
	assert.Equal(t, ExitReasonTakeProfit, closeRec.ExitReason)
	assert.True(t, closeRec.Price.Equal(d("11000")))
}

func TestTradeLogMissingFileIsEmpty(t *testing.T) {
	tl := tempTradeLog(t)
	records, err := tl.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTradeLogSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	content := `{"type":"open","trade_id":"t1","symbol":"BTC/USDT","action":"BUY","price":"100","size":"1","timestamp":"2026-03-01T10:00:00Z"}
this is not json
{"type":"mystery","trade_id":"t2"}

{"type":"close","trade_id":"t1","symbol":"BTC/USDT","action":"BUY","price":"110","size":"1","pnl_percentage":10,"exit_reason":"TAKE_PROFIT","timestamp":"2026-03-01T11:00:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tl := NewTradeLog(path, zap.NewNop())
	records, err := tl.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, recordOpen, records[0].Type)
	assert.Equal(t, recordClose, records[1].Type)
}

func TestTradeLogOrdersByTimestampOpensFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	// Written out of order, and the t2 close shares its open's timestamp.
	content := `{"type":"close","trade_id":"t1","symbol":"BTC/USDT","action":"BUY","price":"110","size":"1","timestamp":"2026-03-01T12:00:00Z"}
{"type":"open","trade_id":"t1","symbol":"BTC/USDT","action":"BUY","price":"100","size":"1","timestamp":"2026-03-01T10:00:00Z"}
{"type":"close","trade_id":"t2","symbol":"ETH/USDT","action":"BUY","price":"210","size":"1","timestamp":"2026-03-01T11:00:00Z"}
{"type":"open","trade_id":"t2","symbol":"ETH/USDT","action":"BUY","price":"200","size":"1","timestamp":"2026-03-01T11:00:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tl := NewTradeLog(path, zap.NewNop())
	records, err := tl.Load()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "t1", records[0].TradeID)
	assert.Equal(t, recordOpen, records[0].Type)
	assert.Equal(t, "t2", records[1].TradeID)
	assert.Equal(t, recordOpen, records[1].Type, "open sorts before close at equal timestamps")
	assert.Equal(t, "t2", records[2].TradeID)
	assert.Equal(t, recordClose, records[2].Type)
	assert.Equal(t, recordClose, records[3].Type)
}

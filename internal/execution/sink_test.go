package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

func testOrder() models.SizedOrder {
	return models.SizedOrder{
		Pair:          models.Pair{Base: "BTC", Quote: "USDT"},
		Action:        models.ActionBuy,
		NotionalSize:  decimal.NewFromInt(1000),
		AssetQuantity: decimal.NewFromFloat(0.02),
		Price:         decimal.NewFromInt(50000),
	}
}

func TestPaperSinkFillsAtQuotedPrice(t *testing.T) {
	sink := NewPaperSink(zap.NewNop())

	fill, err := sink.Execute(context.Background(), testOrder())
	require.NoError(t, err)

	assert.NotEmpty(t, fill.TradeID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(50000)))
	assert.True(t, fill.Quantity.Equal(decimal.NewFromFloat(0.02)))
	assert.Equal(t, models.ActionBuy, fill.Action)

	other, err := sink.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.NotEqual(t, fill.TradeID, other.TradeID, "every fill gets a fresh trade id")
}

func TestHTTPSinkSuccess(t *testing.T) {
	var got orderPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fillResponse{Status: "success", TradeID: "venue-42", Message: "filled"})
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, zap.NewNop())
	fill, err := sink.Execute(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, "venue-42", fill.TradeID)
	assert.Equal(t, "filled", fill.Message)
	assert.Equal(t, "BTC/USDT", got.Pair)
	assert.Equal(t, "BUY", got.Action)
	assert.Equal(t, "1000", got.NotionalSize)
}

func TestHTTPSinkGeneratesTradeIDWhenVenueOmitsIt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fillResponse{Status: "success"})
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, zap.NewNop())
	fill, err := sink.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.NotEmpty(t, fill.TradeID)
}

func TestHTTPSinkFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fillResponse{Status: "failure", Message: "insufficient margin"})
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, zap.NewNop())
	_, err := sink.Execute(context.Background(), testOrder())

	require.Error(t, err)
	assert.True(t, models.IsExecutionError(err))
	assert.Contains(t, err.Error(), "insufficient margin")
}

func TestHTTPSinkNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, time.Second, zap.NewNop())
	_, err := sink.Execute(context.Background(), testOrder())

	require.Error(t, err)
	assert.True(t, models.IsExecutionError(err))
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSinkTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(fillResponse{Status: "success"})
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, 30*time.Millisecond, zap.NewNop())
	_, err := sink.Execute(context.Background(), testOrder())

	require.Error(t, err)
	assert.True(t, models.IsExecutionError(err))
}

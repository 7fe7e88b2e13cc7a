package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// orderPayload is the wire shape the venue accepts.
type orderPayload struct {
	Pair          string `json:"pair"`
	Action        string `json:"action"`
	NotionalSize  string `json:"notional_size"`
	AssetQuantity string `json:"asset_quantity"`
}

// fillResponse is the venue's acknowledgement.
type fillResponse struct {
	Status  string `json:"status"` // success | failure
	TradeID string `json:"trade_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// HTTPSink posts orders to an HTTP execution venue with a bounded timeout.
// Timeouts and transport failures surface as ExecutionError; they are never
// swallowed.
type HTTPSink struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
	now      func() time.Time
}

func NewHTTPSink(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPSink {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "TradeFuseGo/1.0")
	return &HTTPSink{
		client:   client,
		endpoint: endpoint,
		logger:   logger.Named("execution"),
		now:      time.Now,
	}
}

func (s *HTTPSink) Execute(ctx context.Context, order models.SizedOrder) (*models.Fill, error) {
	payload := orderPayload{
		Pair:          order.Pair.String(),
		Action:        string(order.Action),
		NotionalSize:  order.NotionalSize.String(),
		AssetQuantity: order.AssetQuantity.String(),
	}

	var ack fillResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&ack).
		SetError(&ack).
		Post(s.endpoint)
	if err != nil {
		return nil, &models.ExecutionError{Order: order, Message: "sink request failed", Err: err}
	}
	if resp.IsError() {
		msg := ack.Message
		if msg == "" {
			msg = fmt.Sprintf("sink returned HTTP %d", resp.StatusCode())
		}
		return nil, &models.ExecutionError{Order: order, Message: msg}
	}
	if ack.Status != "success" {
		msg := ack.Message
		if msg == "" {
			msg = fmt.Sprintf("sink reported status %q", ack.Status)
		}
		return nil, &models.ExecutionError{Order: order, Message: msg}
	}

	tradeID := ack.TradeID
	if tradeID == "" {
		tradeID = uuid.NewString()
	}

	s.logger.Info("order executed",
		zap.String("trade_id", tradeID),
		zap.String("pair", order.Pair.String()),
		zap.String("action", string(order.Action)))

	return &models.Fill{
		TradeID:  tradeID,
		Pair:     order.Pair,
		Action:   order.Action,
		Price:    order.Price,
		Quantity: order.AssetQuantity,
		Notional: order.NotionalSize,
		Message:  ack.Message,
		FilledAt: s.now(),
	}, nil
}

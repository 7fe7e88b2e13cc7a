// Package execution hands sized orders to the execution venue. The venue is
// an opaque collaborator: it either fills or reports failure, and a failure
// always surfaces as an ExecutionError.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// Sink receives execution-ready orders.
type Sink interface {
	Execute(ctx context.Context, order models.SizedOrder) (*models.Fill, error)
}

// PaperSink fills every order at its quoted price. Used in paper mode and
// tests.
type PaperSink struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewPaperSink(logger *zap.Logger) *PaperSink {
	return &PaperSink{logger: logger.Named("paper"), now: time.Now}
}

func (s *PaperSink) Execute(_ context.Context, order models.SizedOrder) (*models.Fill, error) {
	fill := &models.Fill{
		TradeID:  uuid.NewString(),
		Pair:     order.Pair,
		Action:   order.Action,
		Price:    order.Price,
		Quantity: order.AssetQuantity,
		Notional: order.NotionalSize,
		Message:  "paper fill",
		FilledAt: s.now(),
	}
	s.logger.Info("paper fill",
		zap.String("trade_id", fill.TradeID),
		zap.String("pair", order.Pair.String()),
		zap.String("action", string(order.Action)),
		zap.String("notional", order.NotionalSize.String()))
	return fill, nil
}

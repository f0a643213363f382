package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"travel-wallet-go/internal/clients"
	"travel-wallet-go/internal/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogPublisher writes every event to the structured log.
type LogPublisher struct{}

func (LogPublisher) Handle(_ context.Context, e ledger.Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(e.Type)),
		zap.String("aggregate_id", e.AggregateId),
		zap.Time("occurred_at", e.OccurredAt),
	}
	for k, v := range e.Payload {
		fields = append(fields, zap.String(k, v))
	}
	zap.L().Info("Domain event", fields...)
	return nil
}

// StreamPublisher appends events to a Redis stream.
type StreamPublisher struct {
	rdb    redis.UniversalClient
	stream string
	maxLen int64
}

func NewStreamPublisher(rdb redis.UniversalClient, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = "wallet-events"
	}
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Handle(ctx context.Context, e ledger.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("unable to encode payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":         string(e.Type),
			"aggregate_id": e.AggregateId,
			"occurred_at":  e.OccurredAt.UTC().Format(time.RFC3339Nano),
			"payload":      string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("unable to publish %s to stream %s: %w", e.Type, p.stream, err)
	}
	return nil
}

var ErrOrderNotCompleted = errors.New("order service did not complete the order")

// OrderCompletionHandler asks the order service to mark funded orders paid.
type OrderCompletionHandler struct {
	orders clients.OrderCompleter
}

func NewOrderCompletionHandler(orders clients.OrderCompleter) *OrderCompletionHandler {
	return &OrderCompletionHandler{orders: orders}
}

func (h *OrderCompletionHandler) Handle(ctx context.Context, e ledger.Event) error {
	orderId := e.Payload["order_id"]
	if orderId == "" {
		zap.L().Warn("Order completion event without order id", zap.String("aggregate_id", e.AggregateId))
		return nil
	}
	ok, err := h.orders.CompleteOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotCompleted, orderId)
	}
	zap.L().Info("Order marked complete",
		zap.String("order_id", orderId),
		zap.String("transaction_id", e.Payload["transaction_id"]))
	return nil
}

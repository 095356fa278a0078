// Package telemetry provides operational metrics for the trade subsystem.
//
// Metrics are recorded through the global OpenTelemetry meter so they are
// no-ops unless the process installs a metrics SDK. Game-visible trade
// notifications are a separate concern and flow through internal/notify.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ashgrove-games/tradepost"

// Metrics holds the trade outcome instruments.
type Metrics struct {
	tradesCompleted metric.Int64Counter
	tradesFailed    metric.Int64Counter
	tradesCancelled metric.Int64Counter
	requestsExpired metric.Int64Counter
	itemsExchanged  metric.Int64Counter
}

// NewMetrics registers the trade instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	tradesCompleted, err := meter.Int64Counter("tradepost.trades.completed",
		metric.WithDescription("Trades that committed successfully"))
	if err != nil {
		return nil, err
	}
	tradesFailed, err := meter.Int64Counter("tradepost.trades.failed",
		metric.WithDescription("Trades that failed during execution"))
	if err != nil {
		return nil, err
	}
	tradesCancelled, err := meter.Int64Counter("tradepost.trades.cancelled",
		metric.WithDescription("Trades cancelled before execution"))
	if err != nil {
		return nil, err
	}
	requestsExpired, err := meter.Int64Counter("tradepost.requests.expired",
		metric.WithDescription("Trade requests that timed out unanswered"))
	if err != nil {
		return nil, err
	}
	itemsExchanged, err := meter.Int64Counter("tradepost.items.exchanged",
		metric.WithDescription("Item entries moved by committed trades"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tradesCompleted: tradesCompleted,
		tradesFailed:    tradesFailed,
		tradesCancelled: tradesCancelled,
		requestsExpired: requestsExpired,
		itemsExchanged:  itemsExchanged,
	}, nil
}

// TradeCompleted records a committed trade and the entries it moved.
func (m *Metrics) TradeCompleted(ctx context.Context, initiatorItems, targetItems int) {
	if m == nil {
		return
	}
	m.tradesCompleted.Add(ctx, 1)
	m.itemsExchanged.Add(ctx, int64(initiatorItems), metric.WithAttributes(attribute.String("side", "initiator")))
	m.itemsExchanged.Add(ctx, int64(targetItems), metric.WithAttributes(attribute.String("side", "target")))
}

// TradeFailed records an execution failure attributed to a side.
func (m *Metrics) TradeFailed(ctx context.Context, side string) {
	if m == nil {
		return
	}
	m.tradesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("side", side)))
}

// TradeCancelled records a cancelled session.
func (m *Metrics) TradeCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.tradesCancelled.Add(ctx, 1)
}

// RequestExpired records a pending request that timed out.
func (m *Metrics) RequestExpired(ctx context.Context) {
	if m == nil {
		return
	}
	m.requestsExpired.Add(ctx, 1)
}

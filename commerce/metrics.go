package commerce

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tanpawarit/Chative-Support-Router/pkg/telemetry"
)

var meter = telemetry.Meter("github.com/tanpawarit/Chative-Support-Router/commerce")

func recordOrderPlaced(ctx context.Context, total decimal.Decimal) {
	if counter, err := meter.Int64Counter("support.orders.placed"); err == nil {
		counter.Add(ctx, 1)
	}
	if hist, err := meter.Float64Histogram("support.orders.amount"); err == nil {
		hist.Record(ctx, total.InexactFloat64())
	}
}

func recordOrderRejected(ctx context.Context, err error) {
	counter, cerr := meter.Int64Counter("support.orders.rejected")
	if cerr != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOrder):
		return "invalid"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}

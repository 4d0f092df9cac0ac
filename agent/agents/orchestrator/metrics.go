package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	"github.com/tanpawarit/Chative-Support-Router/pkg/telemetry"
)

var (
	meter  = telemetry.Meter("github.com/tanpawarit/Chative-Support-Router/agent/orchestrator")
	tracer = telemetry.Tracer("github.com/tanpawarit/Chative-Support-Router/agent/orchestrator")

	instrumentsOnce sync.Once
	turnCounter     metric.Int64Counter
	turnDuration    metric.Float64Histogram
)

func instruments() {
	instrumentsOnce.Do(func() {
		turnCounter, _ = meter.Int64Counter("support.turns",
			metric.WithDescription("Conversation turns by category and outcome"))
		turnDuration, _ = meter.Float64Histogram("support.turn.duration",
			metric.WithDescription("Turn latency"),
			metric.WithUnit("s"))
	})
}

func recordTurn(ctx context.Context, reply contractx.TurnReply, err error, seconds float64) {
	instruments()
	attrs := metric.WithAttributes(
		attribute.String("category", string(reply.Category)),
		attribute.String("outcome", turnOutcome(reply, err)),
	)
	if turnCounter != nil {
		turnCounter.Add(ctx, 1, attrs)
	}
	if turnDuration != nil {
		turnDuration.Record(ctx, seconds, attrs)
	}
}

func turnOutcome(reply contractx.TurnReply, err error) string {
	switch {
	case err == nil && reply.Escalated:
		return "escalated"
	case err == nil:
		return "replied"
	case errors.Is(err, contractx.ErrModelInvoke):
		return "model_error"
	case errors.Is(err, contractx.ErrToolLoopExceeded):
		return "tool_loop"
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrInvalidSession):
		return "invalid_request"
	default:
		return "error"
	}
}

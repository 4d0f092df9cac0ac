package contract

import (
	"context"
	"fmt"
)

type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
}

type Handler interface {
	Respond(ctx context.Context, req HandlerRequest) (HandlerResponse, error)
}

type Registry interface {
	Classifier() Classifier
	Sales() Handler
	TechSupport() Handler
	OrderInquiry() Handler
}

type ToolGateway interface {
	Execute(ctx context.Context, category Category, reqs []ToolRequest) ([]ToolResult, error)
}

type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, e Escalation) error
}

// HandlerFor returns the registry's handler for category.
func HandlerFor(r Registry, category Category) (Handler, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: registry is nil", ErrValidation)
	}
	var h Handler
	switch category {
	case CategorySales:
		h = r.Sales()
	case CategoryTechSupport:
		h = r.TechSupport()
	case CategoryOrderInquiry:
		h = r.OrderInquiry()
	default:
		return nil, fmt.Errorf("%w: no handler for category=%q", ErrUnknownCategory, category)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: handler for %s is not configured", ErrValidation, category)
	}
	return h, nil
}

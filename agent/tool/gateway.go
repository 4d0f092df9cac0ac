package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	"github.com/tanpawarit/Chative-Support-Router/commerce"
	"github.com/tanpawarit/Chative-Support-Router/pkg/telemetry"
)

const defaultMaxConcurrency = 4

var tracer = telemetry.Tracer("github.com/tanpawarit/Chative-Support-Router/agent/tool")

// Gateway executes handler tool calls against a Backend.
type Gateway struct {
	backend        Backend
	maxConcurrency int
}

var _ contractx.ToolGateway = (*Gateway)(nil)

type GatewayOption func(*Gateway)

// WithMaxConcurrency bounds how many read-only calls of one batch run at once.
func WithMaxConcurrency(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxConcurrency = n
		}
	}
}

func NewGateway(backend Backend, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		backend:        backend,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Execute runs reqs for category and returns one result per request in
// request order. Tool failures are reported in ToolResult.Error; the
// returned error is reserved for calls outside the category's partition
// and for a cancelled context.
//
// A batch containing a mutating tool runs sequentially in request order.
// Read-only batches run concurrently.
func (g *Gateway) Execute(ctx context.Context, category contractx.Category, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	if g == nil || g.backend == nil {
		return nil, fmt.Errorf("tool gateway is not configured")
	}
	if !category.HasHandler() {
		return nil, fmt.Errorf("%w: category %q has no tools", contractx.ErrToolNotAllowed, category)
	}

	mutating := false
	for _, req := range reqs {
		if req.Tool == ToolEscalateToHuman || !Allowed(category, req.Tool) {
			return nil, fmt.Errorf("%w: %s may not call %q", contractx.ErrToolNotAllowed, category, req.Tool)
		}
		if definitions[req.Tool].mutating {
			mutating = true
		}
	}

	var results []contractx.ToolResult
	if mutating || len(reqs) < 2 {
		results = make([]contractx.ToolResult, 0, len(reqs))
		for _, req := range reqs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results = append(results, g.call(ctx, category, req))
		}
	} else {
		mapper := iter.Mapper[contractx.ToolRequest, contractx.ToolResult]{MaxGoroutines: g.maxConcurrency}
		results = mapper.Map(reqs, func(req *contractx.ToolRequest) contractx.ToolResult {
			return g.call(ctx, category, *req)
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *Gateway) call(ctx context.Context, category contractx.Category, req contractx.ToolRequest) contractx.ToolResult {
	def := definitions[req.Tool]
	ctx, span := tracer.Start(ctx, "tool."+req.Tool, trace.WithAttributes(
		attribute.String("tool.name", req.Tool),
		attribute.String("tool.call_id", req.ID),
		attribute.String("support.category", string(category)),
	))
	defer span.End()

	res := contractx.ToolResult{Tool: req.Tool, CallID: req.ID}
	args := applyDefaults(req.Tool, cloneArgs(req.Args))

	if msg := validateArgs(def.schema, args); msg != "" {
		res.Error = msg
	} else if out, err := def.run(ctx, g.backend, args); err != nil {
		res.Error = errorMessage(err)
		span.RecordError(err)
	} else {
		res.Result = out
	}

	if !res.OK() {
		span.SetStatus(codes.Error, res.Error)
		log.Warn().
			Str("tool", req.Tool).
			Str("call_id", req.ID).
			Str("category", string(category)).
			Str("error", res.Error).
			Msg("tool call failed")
	}
	return res
}

func validateArgs(s *gojsonschema.Schema, args map[string]any) string {
	result, err := s.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Sprintf("Invalid arguments: %v", err)
	}
	if result.Valid() {
		return ""
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return "Invalid arguments: " + strings.Join(problems, "; ")
}

// cloneArgs copies the top level and nested items so defaults never leak
// into the caller's request.
func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if items, ok := v.([]any); ok {
			copied := make([]any, len(items))
			for i, item := range items {
				if m, ok := item.(map[string]any); ok {
					inner := make(map[string]any, len(m))
					for ik, iv := range m {
						inner[ik] = iv
					}
					item = inner
				}
				copied[i] = item
			}
			v = copied
		}
		out[k] = v
	}
	return out
}

// LearnedIdentifiers returns the ids a successful call establishes: the id
// arguments it was given and, for a placed order, the new order id.
func LearnedIdentifiers(req contractx.ToolRequest, res contractx.ToolResult) contractx.Identifiers {
	if !res.OK() {
		return contractx.Identifiers{}
	}
	ids := contractx.Identifiers{
		CustomerID: stringArg(req.Args, "customer_id"),
		ProductID:  stringArg(req.Args, "product_id"),
		OrderID:    stringArg(req.Args, "order_id"),
	}
	if req.Tool != ToolPlaceOrder {
		return ids
	}
	if items, ok := req.Args["items"].([]any); ok && len(items) > 0 {
		if last, ok := items[len(items)-1].(map[string]any); ok {
			ids.ProductID = stringArg(last, "product_id")
		}
	}
	if placed, ok := res.Result.(*commerce.OrderResult); ok && placed != nil && placed.Success {
		ids.OrderID = placed.OrderID
	}
	return ids
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

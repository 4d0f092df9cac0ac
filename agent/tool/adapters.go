package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tanpawarit/Chative-Support-Router/commerce"
)

// Backend is the set of domain operations the tools expose.
type Backend interface {
	GetCustomerInfo(ctx context.Context, customerID string) (*commerce.CustomerInfo, error)
	GetProductInfo(ctx context.Context, productID string) (*commerce.ProductInfo, error)
	SearchProducts(ctx context.Context, q commerce.ProductQuery) ([]commerce.ProductSummary, error)
	TechnicalIssues(ctx context.Context, productID string) ([]commerce.IssueInfo, error)
	GetOrderDetails(ctx context.Context, orderID string) (*commerce.OrderDetails, error)
	CustomerOrders(ctx context.Context, customerID string) ([]commerce.OrderSummary, error)
	PlaceOrder(ctx context.Context, req commerce.PlaceOrderRequest) (*commerce.OrderResult, error)
}

var _ Backend = (*commerce.Service)(nil)

// notFoundError is reported to the model as a tool error payload.
type notFoundError string

func (e notFoundError) Error() string { return string(e) }

const (
	msgCustomerNotFound = notFoundError("Customer not found")
	msgProductNotFound  = notFoundError("Product not found")
	msgOrderNotFound    = notFoundError("Order not found")
)

type searchProductsArgs struct {
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
}

type idArgs struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	OrderID    string `json:"order_id"`
}

type placeOrderArgs struct {
	CustomerID      string               `json:"customer_id"`
	Items           []commerce.OrderLine `json:"items"`
	ShippingAddress string               `json:"shipping_address"`
}

func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func runSearchProducts(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in searchProductsArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return b.SearchProducts(ctx, commerce.ProductQuery{
		Category: strings.TrimSpace(in.Category),
		Keyword:  strings.TrimSpace(in.Keyword),
	})
}

func runGetProductInfo(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in idArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	p, err := b.GetProductInfo(ctx, strings.TrimSpace(in.ProductID))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, msgProductNotFound
	}
	return p, nil
}

func runGetCustomerInfo(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in idArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	c, err := b.GetCustomerInfo(ctx, strings.TrimSpace(in.CustomerID))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, msgCustomerNotFound
	}
	return c, nil
}

func runPlaceOrder(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in placeOrderArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	for i := range in.Items {
		in.Items[i].ProductID = strings.TrimSpace(in.Items[i].ProductID)
	}
	return b.PlaceOrder(ctx, commerce.PlaceOrderRequest{
		CustomerID:      strings.TrimSpace(in.CustomerID),
		Items:           in.Items,
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
	})
}

func runGetTechnicalIssues(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in idArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return b.TechnicalIssues(ctx, strings.TrimSpace(in.ProductID))
}

func runGetOrderDetails(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in idArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	o, err := b.GetOrderDetails(ctx, strings.TrimSpace(in.OrderID))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, msgOrderNotFound
	}
	return o, nil
}

func runGetCustomerOrders(ctx context.Context, b Backend, args map[string]any) (any, error) {
	var in idArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return b.CustomerOrders(ctx, strings.TrimSpace(in.CustomerID))
}

// errorMessage renders a failure as the text the model sees.
func errorMessage(err error) string {
	var (
		nf         notFoundError
		productErr *commerce.ProductNotFoundError
		stockErr   *commerce.InsufficientStockError
	)
	switch {
	case errors.As(err, &nf):
		return string(nf)
	case errors.Is(err, commerce.ErrCustomerNotFound):
		return string(msgCustomerNotFound)
	case errors.As(err, &productErr):
		return fmt.Sprintf("Product %s not found", productErr.ProductID)
	case errors.As(err, &stockErr):
		return fmt.Sprintf("Insufficient stock for %s", stockErr.ProductID)
	case errors.Is(err, commerce.ErrInvalidOrder):
		return err.Error()
	default:
		return fmt.Sprintf("Operation failed: %v", err)
	}
}

// applyDefaults fills in arguments the model may omit.
func applyDefaults(tool string, args map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	if tool != ToolPlaceOrder {
		return args
	}
	items, ok := args["items"].([]any)
	if !ok {
		return args
	}
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if q, ok := item["quantity"]; !ok || q == nil {
			item["quantity"] = 1
		}
	}
	return args
}

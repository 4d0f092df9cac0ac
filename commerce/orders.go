package commerce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
)

const (
	OrderPlacedNote    = "Order placed via AI agent"
	OrderPlacedMessage = "Order placed successfully"
)

type OrderItemInfo struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       Money  `json:"price"`
}

type OrderDetails struct {
	OrderID         string          `json:"order_id"`
	CustomerID      string          `json:"customer_id"`
	OrderDate       time.Time       `json:"order_date"`
	Status          string          `json:"status"`
	TotalAmount     Money           `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	Items           []OrderItemInfo `json:"items"`
}

type OrderSummary struct {
	OrderID     string    `json:"order_id"`
	OrderDate   time.Time `json:"order_date"`
	Status      string    `json:"status"`
	TotalAmount Money     `json:"total_amount"`
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	CustomerID      string
	Items           []OrderLine
	ShippingAddress string
}

type OrderResult struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id"`
	TotalAmount Money  `json:"total_amount"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

func (s *Service) GetOrderDetails(ctx context.Context, orderID string) (*OrderDetails, error) {
	o, err := s.store.Orders.GetByID(ctx, orderID)
	if errors.Is(err, storex.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	details := &OrderDetails{
		OrderID:         o.OrderID,
		CustomerID:      o.CustomerID,
		OrderDate:       o.OrderDate,
		Status:          string(o.Status),
		TotalAmount:     NewMoney(o.TotalAmount),
		ShippingAddress: o.ShippingAddress,
		TrackingNumber:  o.TrackingNumber,
		Items:           make([]OrderItemInfo, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		info := OrderItemInfo{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     NewMoney(item.Price),
		}
		if item.Product != nil {
			info.ProductName = item.Product.ProductName
			info.Description = item.Product.Description
		}
		details.Items = append(details.Items, info)
	}
	return details, nil
}

// CustomerOrders returns up to twenty orders, newest first.
func (s *Service) CustomerOrders(ctx context.Context, customerID string) ([]OrderSummary, error) {
	orders, err := s.store.Orders.ListByCustomer(ctx, customerID, storex.DefaultOrderHistoryLimit)
	if err != nil {
		return nil, err
	}

	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderSummary{
			OrderID:     o.OrderID,
			OrderDate:   o.OrderDate,
			Status:      string(o.Status),
			TotalAmount: NewMoney(o.TotalAmount),
		})
	}
	return out, nil
}

// PlaceOrder creates a pending order, its items and the initial log entry,
// and decrements stock, all in one transaction. Any failure leaves the
// store unchanged.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	ctx, span := tracer.Start(ctx, "commerce.PlaceOrder", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer span.End()

	result, err := s.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOrderRejected(ctx, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", result.OrderID))
	recordOrderPlaced(ctx, result.TotalAmount.Decimal)
	return result, nil
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidOrder)
	}

	var result *OrderResult
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx *storex.Store) error {
		ok, err := tx.Customers.Exists(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("check customer %s: %w", req.CustomerID, err)
		}
		if !ok {
			return ErrCustomerNotFound
		}
		if err := req.validateItems(); err != nil {
			return err
		}

		products, err := tx.Products.LockForOrder(ctx, req.productIDs())
		if err != nil {
			return err
		}

		requested := make(map[string]int, len(products))
		items := make([]*storex.OrderItem, 0, len(req.Items))
		total := decimal.Zero
		for _, line := range req.Items {
			p, ok := products[line.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: line.ProductID}
			}
			requested[line.ProductID] += line.Quantity
			if want := requested[line.ProductID]; p.StockQuantity < want {
				return &InsufficientStockError{ProductID: line.ProductID, Requested: want, Available: p.StockQuantity}
			}
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			items = append(items, &storex.OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     p.Price,
			})
		}
		total = total.Round(2)

		orderID, err := s.allocateOrderID(ctx, tx)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		order := &storex.Order{
			OrderID:         orderID,
			CustomerID:      req.CustomerID,
			OrderDate:       now,
			Status:          storex.OrderPending,
			TotalAmount:     total,
			ShippingAddress: req.ShippingAddress,
		}
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}

		for _, item := range items {
			item.OrderID = orderID
			if err := tx.Orders.AddItem(ctx, item); err != nil {
				return err
			}
			if err := tx.Products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, storex.ErrStockConflict) {
					return &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
				}
				return err
			}
		}

		if err := tx.Orders.AddLog(ctx, &storex.OrderLog{
			OrderID:   orderID,
			Status:    string(storex.OrderPending),
			Notes:     OrderPlacedNote,
			Timestamp: now,
		}); err != nil {
			return err
		}

		result = &OrderResult{
			Success:     true,
			OrderID:     orderID,
			TotalAmount: NewMoney(total),
			Status:      string(storex.OrderPending),
			Message:     OrderPlacedMessage,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateItems checks the item list shape. It runs after the customer
// check so an unknown customer is always reported first.
func (r PlaceOrderRequest) validateItems() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for i, line := range r.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no product_id", ErrInvalidOrder, i)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidOrder, i)
		}
	}
	return nil
}

// productIDs returns the distinct ids sorted, which is also the lock order.
func (r PlaceOrderRequest) productIDs() []string {
	seen := make(map[string]struct{}, len(r.Items))
	ids := make([]string, 0, len(r.Items))
	for _, line := range r.Items {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Strings(ids)
	return ids
}

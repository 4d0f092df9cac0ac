package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

const DefaultOrderHistoryLimit = 20

type Orders struct {
	db bun.IDB
}

// GetByID loads the order with its items and each item's product.
func (r *Orders) GetByID(ctx context.Context, orderID string) (*Order, error) {
	o := new(Order)
	err := r.db.NewSelect().
		Model(o).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("oi.item_id ASC")
		}).
		Relation("Items.Product").
		Where("o.order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// ListByCustomer returns the newest orders first.
func (r *Orders) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = DefaultOrderHistoryLimit
	}

	orders := make([]*Order, 0, limit)
	err := r.db.NewSelect().
		Model(&orders).
		Where("o.customer_id = ?", customerID).
		Order("o.order_date DESC", "o.order_id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders for customer %s: %w", customerID, err)
	}
	return orders, nil
}

func (r *Orders) Exists(ctx context.Context, orderID string) (bool, error) {
	return r.db.NewSelect().
		Model((*Order)(nil)).
		Where("o.order_id = ?", orderID).
		Exists(ctx)
}

func (r *Orders) Create(ctx context.Context, o *Order) error {
	if _, err := r.db.NewInsert().Model(o).Exec(ctx); err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	return nil
}

func (r *Orders) AddItem(ctx context.Context, item *OrderItem) error {
	if _, err := r.db.NewInsert().Model(item).Exec(ctx); err != nil {
		return fmt.Errorf("insert order item %s/%s: %w", item.OrderID, item.ProductID, err)
	}
	return nil
}

func (r *Orders) AddLog(ctx context.Context, entry *OrderLog) error {
	if _, err := r.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert order log %s: %w", entry.OrderID, err)
	}
	return nil
}

func (r *Orders) Logs(ctx context.Context, orderID string) ([]*OrderLog, error) {
	var logs []*OrderLog
	err := r.db.NewSelect().
		Model(&logs).
		Where("ol.order_id = ?", orderID).
		Order("ol.log_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list order logs %s: %w", orderID, err)
	}
	return logs, nil
}

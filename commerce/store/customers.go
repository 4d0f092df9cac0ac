package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type Customers struct {
	db bun.IDB
}

func (r *Customers) GetByID(ctx context.Context, customerID string) (*Customer, error) {
	c := new(Customer)
	err := r.db.NewSelect().
		Model(c).
		Where("c.customer_id = ?", customerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *Customers) Exists(ctx context.Context, customerID string) (bool, error) {
	return r.db.NewSelect().
		Model((*Customer)(nil)).
		Where("c.customer_id = ?", customerID).
		Exists(ctx)
}

func (r *Customers) Create(ctx context.Context, c *Customer) error {
	if c.LoyaltyTier == "" {
		c.LoyaltyTier = LoyaltyBronze
	}
	if _, err := r.db.NewInsert().Model(c).Exec(ctx); err != nil {
		return fmt.Errorf("insert customer %s: %w", c.CustomerID, err)
	}
	return nil
}

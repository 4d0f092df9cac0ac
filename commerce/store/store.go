// Package store holds the typed accessors for the support backing store:
// customers, products, orders with their items and logs, and technical issues.
//
// Accessors are bound to a bun.IDB so the same code runs against the pool
// or inside a transaction opened by RunInTx.
package store

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type Store struct {
	root *bun.DB
	db   bun.IDB

	Customers *Customers
	Products  *Products
	Orders    *Orders
}

func New(db *bun.DB) *Store {
	return newStore(db, db)
}

func newStore(root *bun.DB, db bun.IDB) *Store {
	return &Store{
		root:      root,
		db:        db,
		Customers: &Customers{db: db},
		Products:  &Products{db: db},
		Orders:    &Orders{db: db},
	}
}

// RunInTx runs fn with accessors bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
// Nested calls reuse the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	if _, ok := s.db.(bun.Tx); ok {
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, newStore(s.root, tx))
	})
}

func (s *Store) Dialect() dialect.Name {
	return s.db.Dialect().Name()
}

// DB exposes the underlying handle for maintenance tasks such as seeding.
func (s *Store) DB() bun.IDB {
	return s.db
}

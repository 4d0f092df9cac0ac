package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	DefaultProductSearchLimit = 10
	DefaultIssueLimit         = 10
)

type Products struct {
	db bun.IDB
}

type ProductFilter struct {
	Category string
	Keyword  string
	Limit    int
}

func (r *Products) GetByID(ctx context.Context, productID string) (*Product, error) {
	p := new(Product)
	err := r.db.NewSelect().
		Model(p).
		Where("p.product_id = ?", productID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// LockForOrder loads the given products keyed by id. On Postgres the rows are
// locked FOR UPDATE in id order so concurrent placements touching the same
// products serialize without deadlocking each other.
func (r *Products) LockForOrder(ctx context.Context, productIDs []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var products []*Product
	q := r.db.NewSelect().
		Model(&products).
		Where("p.product_id IN (?)", bun.In(productIDs)).
		Order("p.product_id ASC")
	if r.db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	for _, p := range products {
		out[p.ProductID] = p
	}
	return out, nil
}

// Search matches category exactly and keyword as a case-insensitive
// substring of name or description.
func (r *Products) Search(ctx context.Context, f ProductFilter) ([]*Product, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultProductSearchLimit
	}

	products := make([]*Product, 0, limit)
	q := r.db.NewSelect().Model(&products)

	if category := strings.TrimSpace(f.Category); category != "" {
		q = q.Where("p.category = ?", category)
	}
	if keyword := strings.TrimSpace(f.Keyword); keyword != "" {
		pattern := "%" + strings.ToLower(keyword) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(p.product_name) LIKE ?", pattern).
				WhereOr("LOWER(p.description) LIKE ?", pattern)
		})
	}

	if err := q.Order("p.product_id ASC").Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

// DecrementStock subtracts qty only while stock stays non-negative.
func (r *Products) DecrementStock(ctx context.Context, productID string, qty int) error {
	res, err := r.db.NewUpdate().
		Model((*Product)(nil)).
		Set("stock_quantity = stock_quantity - ?", qty).
		Where("product_id = ?", productID).
		Where("stock_quantity >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: product=%s qty=%d", ErrStockConflict, productID, qty)
	}
	return nil
}

func (r *Products) Create(ctx context.Context, p *Product) error {
	if _, err := r.db.NewInsert().Model(p).Exec(ctx); err != nil {
		return fmt.Errorf("insert product %s: %w", p.ProductID, err)
	}
	return nil
}

func (r *Products) TechnicalIssues(ctx context.Context, productID string, limit int) ([]*TechnicalIssue, error) {
	if limit <= 0 {
		limit = DefaultIssueLimit
	}

	issues := make([]*TechnicalIssue, 0, limit)
	q := r.db.NewSelect().Model(&issues)
	if id := strings.TrimSpace(productID); id != "" {
		q = q.Where("ti.product_id = ?", id)
	}
	if err := q.Order("ti.issue_id ASC").Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list technical issues: %w", err)
	}
	return issues, nil
}

func (r *Products) CreateIssue(ctx context.Context, issue *TechnicalIssue) error {
	if issue.Severity == "" {
		issue.Severity = SeverityMedium
	}
	if _, err := r.db.NewInsert().Model(issue).Exec(ctx); err != nil {
		return fmt.Errorf("insert technical issue: %w", err)
	}
	return nil
}

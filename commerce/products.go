package commerce

import (
	"context"
	"errors"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
)

type ProductInfo struct {
	ProductID      string         `json:"product_id"`
	ProductName    string         `json:"product_name"`
	Description    string         `json:"description"`
	Price          Money          `json:"price"`
	StockQuantity  int            `json:"stock_quantity"`
	Category       string         `json:"category"`
	Specifications map[string]any `json:"specifications,omitempty"`
}

type ProductSummary struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Description   string `json:"description"`
	Price         Money  `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
}

type ProductQuery struct {
	Category string
	Keyword  string
}

type IssueInfo struct {
	IssueID     int64  `json:"issue_id"`
	ProductID   string `json:"product_id,omitempty"`
	IssueTitle  string `json:"issue_title"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Severity    string `json:"severity"`
}

func (s *Service) GetProductInfo(ctx context.Context, productID string) (*ProductInfo, error) {
	p, err := s.store.Products.GetByID(ctx, productID)
	if errors.Is(err, storex.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ProductInfo{
		ProductID:      p.ProductID,
		ProductName:    p.ProductName,
		Description:    p.Description,
		Price:          NewMoney(p.Price),
		StockQuantity:  p.StockQuantity,
		Category:       p.Category,
		Specifications: p.Specifications,
	}, nil
}

// SearchProducts returns at most ten products.
func (s *Service) SearchProducts(ctx context.Context, q ProductQuery) ([]ProductSummary, error) {
	products, err := s.store.Products.Search(ctx, storex.ProductFilter{
		Category: q.Category,
		Keyword:  q.Keyword,
		Limit:    storex.DefaultProductSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ProductSummary, 0, len(products))
	for _, p := range products {
		out = append(out, ProductSummary{
			ProductID:     p.ProductID,
			ProductName:   p.ProductName,
			Description:   p.Description,
			Price:         NewMoney(p.Price),
			StockQuantity: p.StockQuantity,
		})
	}
	return out, nil
}

// TechnicalIssues lists known issues, optionally for one product only.
func (s *Service) TechnicalIssues(ctx context.Context, productID string) ([]IssueInfo, error) {
	issues, err := s.store.Products.TechnicalIssues(ctx, productID, storex.DefaultIssueLimit)
	if err != nil {
		return nil, err
	}

	out := make([]IssueInfo, 0, len(issues))
	for _, i := range issues {
		out = append(out, IssueInfo{
			IssueID:     i.IssueID,
			ProductID:   i.ProductID,
			IssueTitle:  i.IssueTitle,
			Description: i.Description,
			Solution:    i.Solution,
			Severity:    string(i.Severity),
		})
	}
	return out, nil
}

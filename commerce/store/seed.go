package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// DemoCatalog is the sample data loaded by the seed command.
type DemoCatalog struct {
	Customers []*Customer
	Products  []*Product
	Issues    []*TechnicalIssue
}

func NewDemoCatalog() DemoCatalog {
	return DemoCatalog{
		Customers: []*Customer{
			{CustomerID: "CUST001", Name: "Alice Johnson", Email: "alice.johnson@example.com", Phone: "555-0101", LoyaltyTier: LoyaltyGold},
			{CustomerID: "CUST002", Name: "Bob Smith", Email: "bob.smith@example.com", Phone: "555-0102", LoyaltyTier: LoyaltySilver},
			{CustomerID: "CUST003", Name: "Carol White", Email: "carol.white@example.com", Phone: "555-0103", LoyaltyTier: LoyaltyBronze},
			{CustomerID: "CUST004", Name: "David Brown", Email: "david.brown@example.com", Phone: "555-0104", LoyaltyTier: LoyaltyPlatinum},
		},
		Products: []*Product{
			{
				ProductID: "LP-5000", ProductName: "ProBook 5000 Laptop",
				Description: "15-inch business laptop with long battery life",
				Price:       decimal.RequireFromString("1299.99"), StockQuantity: 25, Category: "Laptops",
				Specifications: map[string]any{"cpu": "8-core 3.2GHz", "ram": "16GB", "storage": "512GB SSD", "display": "15.6in 1080p"},
			},
			{
				ProductID: "LP-7000", ProductName: "ProBook 7000 Laptop",
				Description: "14-inch ultralight laptop for creators",
				Price:       decimal.RequireFromString("1899.00"), StockQuantity: 8, Category: "Laptops",
				Specifications: map[string]any{"cpu": "12-core 3.6GHz", "ram": "32GB", "storage": "1TB SSD", "display": "14in 2.8K OLED"},
			},
			{
				ProductID: "KB-100", ProductName: "TypeMaster Mechanical Keyboard",
				Description: "Wireless mechanical keyboard with hot-swappable switches",
				Price:       decimal.RequireFromString("89.99"), StockQuantity: 120, Category: "Accessories",
				Specifications: map[string]any{"layout": "ANSI", "connectivity": "Bluetooth 5.1 / USB-C"},
			},
			{
				ProductID: "MS-200", ProductName: "Glide Wireless Mouse",
				Description: "Ergonomic wireless mouse with silent clicks",
				Price:       decimal.RequireFromString("29.99"), StockQuantity: 200, Category: "Accessories",
				Specifications: map[string]any{"dpi": "4000", "battery": "AA x1"},
			},
			{
				ProductID: "MN-27Q", ProductName: "ClearView 27 Monitor",
				Description: "27-inch QHD monitor with USB-C power delivery",
				Price:       decimal.RequireFromString("349.50"), StockQuantity: 15, Category: "Monitors",
				Specifications: map[string]any{"resolution": "2560x1440", "refresh": "144Hz", "ports": "HDMI, DP, USB-C 65W"},
			},
		},
		Issues: []*TechnicalIssue{
			{
				ProductID: "LP-5000", IssueTitle: "Battery drains quickly",
				Description: "Battery life drops below 4 hours after a firmware update.",
				Solution:    "Update BIOS to 1.0.7, then recalibrate the battery by charging to 100% and discharging to 5%.",
				Severity:    SeverityMedium,
			},
			{
				ProductID: "LP-5000", IssueTitle: "Wi-Fi disconnects after sleep",
				Description: "Wireless adapter does not reconnect after resume.",
				Solution:    "Install the latest wireless driver and disable 'Allow the computer to turn off this device' in power management.",
				Severity:    SeverityHigh,
			},
			{
				ProductID: "KB-100", IssueTitle: "Keys not registering over Bluetooth",
				Description: "Intermittent missed keystrokes when paired over Bluetooth.",
				Solution:    "Re-pair the keyboard, keep it within 3 meters of the receiver, and update firmware via the companion app.",
				Severity:    SeverityLow,
			},
			{
				ProductID: "MN-27Q", IssueTitle: "No signal over USB-C",
				Description: "Monitor shows 'No signal' when connected through USB-C.",
				Solution:    "Use a USB-C cable that supports DisplayPort Alt Mode and select USB-C as the input source.",
				Severity:    SeverityMedium,
			},
		},
	}
}

// Seed inserts the catalog, skipping customers and products that already
// exist. Issues are only inserted for products created in this call.
func (s *Store) Seed(ctx context.Context, catalog DemoCatalog) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx *Store) error {
		for _, c := range catalog.Customers {
			ok, err := tx.Customers.Exists(ctx, c.CustomerID)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if err := tx.Customers.Create(ctx, c); err != nil {
				return err
			}
		}

		created := make(map[string]bool, len(catalog.Products))
		for _, p := range catalog.Products {
			_, err := tx.Products.GetByID(ctx, p.ProductID)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := tx.Products.Create(ctx, p); err != nil {
				return err
			}
			created[p.ProductID] = true
		}

		for _, issue := range catalog.Issues {
			if issue.ProductID != "" && !created[issue.ProductID] {
				continue
			}
			if err := tx.Products.CreateIssue(ctx, issue); err != nil {
				return err
			}
		}
		return nil
	})
}

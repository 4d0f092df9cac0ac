package store

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type LoyaltyTier string

const (
	LoyaltyBronze   LoyaltyTier = "Bronze"
	LoyaltySilver   LoyaltyTier = "Silver"
	LoyaltyGold     LoyaltyTier = "Gold"
	LoyaltyPlatinum LoyaltyTier = "Platinum"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	CustomerID       string      `bun:"customer_id,pk"`
	Name             string      `bun:"name,notnull"`
	Email            string      `bun:"email,notnull,unique"`
	Phone            string      `bun:"phone"`
	RegistrationDate time.Time   `bun:"registration_date,nullzero,notnull,default:current_timestamp"`
	LoyaltyTier      LoyaltyTier `bun:"loyalty_tier,notnull"`
}

type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ProductID      string          `bun:"product_id,pk"`
	ProductName    string          `bun:"product_name,notnull"`
	Description    string          `bun:"description"`
	Price          decimal.Decimal `bun:"price,type:decimal(10,2),notnull"`
	StockQuantity  int             `bun:"stock_quantity,notnull"`
	Category       string          `bun:"category"`
	Specifications map[string]any  `bun:"specifications,type:jsonb"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Order owns its items and logs; TotalAmount is only ever written at placement.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	OrderID         string          `bun:"order_id,pk"`
	CustomerID      string          `bun:"customer_id,notnull"`
	OrderDate       time.Time       `bun:"order_date,nullzero,notnull,default:current_timestamp"`
	Status          OrderStatus     `bun:"status,notnull"`
	TotalAmount     decimal.Decimal `bun:"total_amount,type:decimal(10,2),notnull"`
	ShippingAddress string          `bun:"shipping_address"`
	TrackingNumber  string          `bun:"tracking_number,nullzero"`

	Items []*OrderItem `bun:"rel:has-many,join:order_id=order_id"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ItemID    int64           `bun:"item_id,pk,autoincrement"`
	OrderID   string          `bun:"order_id,notnull"`
	ProductID string          `bun:"product_id,notnull"`
	Quantity  int             `bun:"quantity,notnull"`
	Price     decimal.Decimal `bun:"price,type:decimal(10,2),notnull"`

	Product *Product `bun:"rel:belongs-to,join:product_id=product_id"`
}

type OrderLog struct {
	bun.BaseModel `bun:"table:order_logs,alias:ol"`

	LogID     int64     `bun:"log_id,pk,autoincrement"`
	OrderID   string    `bun:"order_id,notnull"`
	Status    string    `bun:"status"`
	Notes     string    `bun:"notes"`
	Timestamp time.Time `bun:"timestamp,nullzero,notnull,default:current_timestamp"`
}

type TechnicalIssue struct {
	bun.BaseModel `bun:"table:technical_issues,alias:ti"`

	IssueID     int64     `bun:"issue_id,pk,autoincrement"`
	ProductID   string    `bun:"product_id,nullzero"`
	IssueTitle  string    `bun:"issue_title,notnull"`
	Description string    `bun:"description"`
	Solution    string    `bun:"solution"`
	Severity    Severity  `bun:"severity,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	StoreName    string    `json:"store_name"`
	APIKey       string    `json:"api_key"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

type Product struct {
	ID                int64           `json:"id"`
	AccountID         int64           `json:"account_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	Category          string          `json:"category,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

// StockTransaction is one entry in a product's append-only stock ledger.
// QuantityChange is signed: positive increases stock, negative decreases it.
// StockBefore and StockAfter are snapshotted at write time and never
// recomputed. PricePerUnit and TotalValue are set only for sale decreases.
type StockTransaction struct {
	ID             int64            `json:"id"`
	AccountID      int64            `json:"account_id"`
	ProductID      int64            `json:"product_id"`
	ProductName    string           `json:"product_name"`
	Type           string           `json:"type"`
	QuantityChange int              `json:"quantity_change"`
	StockBefore    int              `json:"stock_before"`
	StockAfter     int              `json:"stock_after"`
	PricePerUnit   *decimal.Decimal `json:"price_per_unit,omitempty"`
	TotalValue     *decimal.Decimal `json:"total_value,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type Order struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []OrderItem     `json:"items,omitempty"`
}

// OrderItem freezes pricing at order-creation time. FinalUnitPrice and
// LineTotal are derived (unit price minus discount, times quantity) and
// stored so the order remains the record of the sale even when product
// prices change later.
type OrderItem struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Discount       decimal.Decimal `json:"discount"`
	FinalUnitPrice decimal.Decimal `json:"final_unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	CreatedAt      time.Time       `json:"created_at"`
}

const (
	TransactionTypeSale       = "sale"
	TransactionTypeRestock    = "restock"
	TransactionTypeInitial    = "initial"
	TransactionTypeAdjustment = "adjustment"
	TransactionTypeReturn     = "return"
)

// ValidTransactionType reports whether t is one of the five ledger kinds.
func ValidTransactionType(t string) bool {
	switch t {
	case TransactionTypeSale, TransactionTypeRestock, TransactionTypeInitial,
		TransactionTypeAdjustment, TransactionTypeReturn:
		return true
	}
	return false
}

const (
	OrderStatusCompleted = "completed"
	OrderStatusPending   = "pending"
	OrderStatusCancelled = "cancelled"
)

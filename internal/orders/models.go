package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	VendorID    int64           `json:"vendor_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Order struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	CustomerID int64     `json:"customer_id"`
	Quantity   int       `json:"quantity"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	VendorID int64  `json:"vendor_id"`
}

type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// OrderView is an order joined with its product (soft-deleted included) and customer.
type OrderView struct {
	Order
	Product  ProductRef `json:"product"`
	Customer UserRef    `json:"customer"`
}

// NotificationDetails is what the notifier re-reads at delivery time.
type NotificationDetails struct {
	OrderID     int64
	Quantity    int
	ProductID   int64
	ProductName string
	VendorID    int64
	VendorEmail string // empty when the vendor has none on file
}

type Page[T any] struct {
	Data    []T `json:"data"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

const (
	PerPage = 10
	// MaxPage caps requested pages; anything past it is an empty page anyway.
	MaxPage = 1_000_000
)

// ClampPage maps a requested page into [1, MaxPage].
func ClampPage(page int) int {
	return min(max(page, 1), MaxPage)
}

// Offset returns the row offset for a 1-based page number.
func Offset(page int) int {
	return (ClampPage(page) - 1) * PerPage
}

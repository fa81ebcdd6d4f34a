package backorders

import (
	"time"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Backorder is stock owed to one sale item at one location.
type Backorder struct {
	ID              int64     `db:"id" json:"id"`
	SaleItemID      int64     `db:"sale_item_id" json:"sale_item_id"`
	ProductID       int64     `db:"product_id" json:"product_id"`
	LocationID      int64     `db:"location_id" json:"location_id"`
	PendingQuantity int64     `db:"pending_quantity" json:"pending_quantity"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Reduce subtracts qty from pending and deactivates at zero.
func (b *Backorder) Reduce(qty int64) {
	b.PendingQuantity -= qty
	if b.PendingQuantity < 0 {
		b.PendingQuantity = 0
	}
	b.Active = b.PendingQuantity > 0
}

// Cancel zeroes pending and returns how much was dropped.
func (b *Backorder) Cancel() int64 {
	dropped := b.PendingQuantity
	b.PendingQuantity = 0
	b.Active = false
	return dropped
}

// ListFilters narrows the active backorder listing.
type ListFilters struct {
	Search      string     `json:"search,omitempty"`
	ProductID   int64      `json:"product_id,omitempty"`
	SaleID      int64      `json:"sale_id,omitempty"`
	CustomerID  int64      `json:"customer_id,omitempty"`
	MinPending  *int64     `json:"min_pending,omitempty"`
	MaxPending  *int64     `json:"max_pending,omitempty"`
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	Page        int        `json:"page"`
	PerPage     int        `json:"per_page"`
}

// ListItem is one row of the listing with display context.
type ListItem struct {
	Backorder
	ProductSKU    string  `db:"product_sku" json:"product_sku"`
	ProductName   string  `db:"product_name" json:"product_name"`
	SaleID        int64   `db:"sale_id" json:"sale_id"`
	InvoiceNumber string  `db:"invoice_number" json:"invoice_number"`
	CustomerName  *string `db:"customer_name" json:"customer_name,omitempty"`
	LocationCode  string  `db:"location_code" json:"location_code"`
}

// ListResult is a page of active backorders, oldest first.
type ListResult struct {
	Items      []ListItem        `json:"items"`
	Total      int               `json:"total"`
	Pagination shared.Pagination `json:"pagination"`
}

// ProductSummary is the product joined to a backorder.
type ProductSummary struct {
	ID   int64  `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

// CustomerSummary is the customer of the owning sale.
type CustomerSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SaleSummary is the sale owning the backordered item.
type SaleSummary struct {
	ID            int64            `json:"id"`
	InvoiceNumber string           `json:"invoice_number"`
	CreatedAt     time.Time        `json:"created_at"`
	Customer      *CustomerSummary `json:"customer,omitempty"`
}

// SaleItemDetail is the backordered sale line with its sale.
type SaleItemDetail struct {
	sales.SaleItem
	Sale *SaleSummary `json:"sale,omitempty"`
}

// BackorderDetail is a backorder with every joined record it refers to.
// Joins that found no row are nil.
type BackorderDetail struct {
	Backorder
	Product      *ProductSummary           `json:"product,omitempty"`
	SaleItem     *SaleItemDetail           `json:"sale_item,omitempty"`
	Allocations  []sales.SaleItemInventory `json:"allocations"`
	Transactions []inventory.Transaction   `json:"transactions"`
}

package sales

import (
	"time"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
)

// Sale is an invoice header.
type Sale struct {
	ID            int64      `db:"id" json:"id"`
	InvoiceNumber string     `db:"invoice_number" json:"invoice_number"`
	CustomerID    int64      `db:"customer_id" json:"customer_id"`
	LocationID    int64      `db:"location_id" json:"location_id"`
	CreatedBy     int64      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	Items         []SaleItem `db:"-" json:"items"`
}

// SaleItem tracks ordered, fulfilled and backordered quantity of one line.
type SaleItem struct {
	ID                int64     `db:"id" json:"id"`
	SaleID            int64     `db:"sale_id" json:"sale_id"`
	ProductID         int64     `db:"product_id" json:"product_id"`
	OrderedQuantity   int64     `db:"ordered_quantity" json:"ordered_quantity"`
	FulfilledQuantity int64     `db:"fulfilled_quantity" json:"fulfilled_quantity"`
	BackorderQuantity int64     `db:"backorder_quantity" json:"backorder_quantity"`
	HasBackorder      bool      `db:"has_backorder" json:"has_backorder"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ApplyFulfillment moves qty from backordered to fulfilled.
func (i *SaleItem) ApplyFulfillment(qty int64) {
	i.FulfilledQuantity += qty
	i.BackorderQuantity -= qty
	if i.BackorderQuantity < 0 {
		i.BackorderQuantity = 0
	}
	i.HasBackorder = i.BackorderQuantity > 0
}

// CancelBackorder drops qty from the backordered total without fulfilling it.
func (i *SaleItem) CancelBackorder(qty int64) {
	i.BackorderQuantity -= qty
	if i.BackorderQuantity < 0 {
		i.BackorderQuantity = 0
	}
	i.HasBackorder = i.BackorderQuantity > 0
}

// SaleItemInventory links a sale item to the lot that satisfied part of it.
type SaleItemInventory struct {
	ID          int64     `db:"id" json:"id"`
	SaleItemID  int64     `db:"sale_item_id" json:"sale_item_id"`
	LotID       int64     `db:"inventory_lot_id" json:"inventory_lot_id"`
	LotNumber   string    `db:"lot_number" json:"lot_number,omitempty"`
	BackorderID int64     `db:"backorder_id" json:"backorder_id,omitempty"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CreateSaleItem is one requested line.
type CreateSaleItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// CreateSaleInput describes a new sale.
type CreateSaleInput struct {
	CustomerID int64            `json:"customer_id" validate:"required,gt=0"`
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Items      []CreateSaleItem `json:"items" validate:"required,min=1,dive"`
	ActorID    int64            `json:"-"`
}

// CreatedBackorder is a backorder opened for a line's shortfall.
type CreatedBackorder struct {
	ID         int64 `json:"id"`
	SaleItemID int64 `json:"sale_item_id"`
	ProductID  int64 `json:"product_id"`
	Pending    int64 `json:"pending_quantity"`
}

// CreateSaleResult is the created sale and any backorders it opened.
type CreateSaleResult struct {
	Sale       Sale               `json:"sale"`
	Backorders []CreatedBackorder `json:"backorders"`
}

// LotAllocation is the quantity taken from one lot.
type LotAllocation struct {
	Lot      inventory.Lot
	Quantity int64
}

// AllocateFIFO draws qty from lots in the given order and returns the
// allocations plus any shortfall.
func AllocateFIFO(lots []inventory.Lot, qty int64) ([]LotAllocation, int64) {
	var allocs []LotAllocation
	remaining := qty
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		if !lot.Available() {
			continue
		}
		take := min(lot.Quantity, remaining)
		allocs = append(allocs, LotAllocation{Lot: lot, Quantity: take})
		remaining -= take
	}
	return allocs, remaining
}

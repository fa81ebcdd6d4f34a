package inventory

import (
	"time"
)

// TransactionType enumerates the causes of a lot quantity change.
type TransactionType string

const (
	// TransactionTypeBackorderFulfillment designates stock for a backorder without moving it.
	TransactionTypeBackorderFulfillment TransactionType = "backorder_fulfillment"
	// TransactionTypeSale records stock allocated when a sale is created.
	TransactionTypeSale TransactionType = "sale"
	// TransactionTypePurchaseReceipt records inbound stock.
	TransactionTypePurchaseReceipt TransactionType = "purchase_receipt"
	// TransactionTypeWaybillDispatch records stock physically leaving a location.
	TransactionTypeWaybillDispatch     TransactionType = "waybill_dispatch"
	TransactionTypeWaybillEdit         TransactionType = "waybill_edit"
	TransactionTypeWaybillEditReversal TransactionType = "waybill_edit_reversal"
	TransactionTypeAdjustment          TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeBackorderFulfillment, TransactionTypeSale, TransactionTypePurchaseReceipt,
		TransactionTypeWaybillDispatch, TransactionTypeWaybillEdit, TransactionTypeWaybillEditReversal,
		TransactionTypeAdjustment:
		return true
	}
	return false
}

// Lot is a physical stock entry of one product at one location.
type Lot struct {
	ID         int64     `db:"id" json:"id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	LocationID int64     `db:"location_id" json:"location_id"`
	LotNumber  string    `db:"lot_number" json:"lot_number"`
	Quantity   int64     `db:"quantity" json:"quantity"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Available reports whether stock can be drawn from the lot.
func (l Lot) Available() bool {
	return l.Active && l.Quantity > 0
}

// Transaction is an immutable audit row paired with every lot quantity change.
type Transaction struct {
	ID             int64           `db:"id" json:"id"`
	LotID          int64           `db:"inventory_lot_id" json:"inventory_lot_id"`
	ProductID      int64           `db:"product_id" json:"product_id"`
	LocationID     int64           `db:"location_id" json:"location_id"`
	ActorID        int64           `db:"actor_id" json:"actor_id,omitempty"`
	Type           TransactionType `db:"tx_type" json:"tx_type"`
	QuantityBefore int64           `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int64           `db:"quantity_after" json:"quantity_after"`
	Note           string          `db:"note" json:"note"`
	DocumentNumber string          `db:"document_number" json:"document_number,omitempty"`
	RefType        string          `db:"ref_type" json:"ref_type,omitempty"`
	RefID          int64           `db:"ref_id" json:"ref_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Product is the catalog entry a lot belongs to.
type Product struct {
	ID              int64  `db:"id" json:"id"`
	SKU             string `db:"sku" json:"sku"`
	Name            string `db:"name" json:"name"`
	ReorderLevel    int64  `db:"reorder_level" json:"reorder_level"`
	ReorderQuantity int64  `db:"reorder_quantity" json:"reorder_quantity"`
}

// LocationStock is the on-hand total of one product at one location.
type LocationStock struct {
	LocationID   int64  `db:"location_id" json:"location_id"`
	LocationCode string `db:"location_code" json:"location_code"`
	OnHand       int64  `db:"on_hand" json:"on_hand"`
	Lots         int64  `db:"lots" json:"lots"`
}

// ProductStock is a read-time projection over active lots. It is never stored.
type ProductStock struct {
	Product      Product         `json:"product"`
	OnHand       int64           `json:"on_hand"`
	BelowReorder bool            `json:"below_reorder"`
	Locations    []LocationStock `json:"locations"`
}

// NewProductStock totals the per-location breakdown.
func NewProductStock(product Product, locations []LocationStock) ProductStock {
	stock := ProductStock{Product: product, Locations: locations}
	if stock.Locations == nil {
		stock.Locations = []LocationStock{}
	}
	for _, loc := range locations {
		stock.OnHand += loc.OnHand
	}
	stock.BelowReorder = product.ReorderLevel > 0 && stock.OnHand <= product.ReorderLevel
	return stock
}

// LotFilter narrows lot listings.
type LotFilter struct {
	ProductID    int64 `json:"product_id,omitempty"`
	LocationID   int64 `json:"location_id,omitempty"`
	ActiveOnly   bool  `json:"active_only,omitempty"`
	PositiveOnly bool  `json:"positive_only,omitempty"`
	Page         int   `json:"page"`
	PerPage      int   `json:"per_page"`
}

// LotList is a page of lots.
type LotList struct {
	Items []Lot `json:"items"`
	Total int   `json:"total"`
}

// TransactionFilter narrows the audit trail.
type TransactionFilter struct {
	LotID     int64
	ProductID int64
	Type      TransactionType
	Limit     int
}

// ReceiptInput describes stock arriving at a location.
type ReceiptInput struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	LotNumber  string `json:"lot_number" validate:"omitempty,max=64"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Note       string `json:"note" validate:"max=500"`
	ActorID    int64  `json:"-"`
}

// DispatchInput describes stock physically leaving a lot.
type DispatchInput struct {
	LotID    int64  `json:"inventory_lot_id" validate:"required,gt=0"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note" validate:"max=500"`
	RefType  string `json:"ref_type" validate:"max=64"`
	RefID    int64  `json:"ref_id" validate:"gte=0"`
	ActorID  int64  `json:"-"`
}

// Movement is the result of a receipt or dispatch.
type Movement struct {
	DocumentNumber string      `json:"document_number"`
	Lot            Lot         `json:"lot"`
	Transaction    Transaction `json:"transaction"`
}

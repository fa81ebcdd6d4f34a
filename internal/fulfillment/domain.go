package fulfillment

import (
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/sales"
)

// FulfillInput requests that a lot be applied to a backorder.
// A nil RequestedQuantity attempts the full pending quantity.
type FulfillInput struct {
	BackorderID       int64  `json:"-"`
	InventoryLotID    int64  `json:"inventory_lot_id" validate:"required,gt=0"`
	RequestedQuantity *int64 `json:"requested_quantity,omitempty"`
	ActorID           int64  `json:"-"`
	IdempotencyKey    string `json:"-"`
}

// Result reports what a fulfillment did.
type Result struct {
	BackorderID       int64                   `json:"backorder_id"`
	FulfilledQuantity int64                   `json:"fulfilled_quantity"`
	RemainingPending  int64                   `json:"remaining_pending"`
	Active            bool                    `json:"active"`
	SaleItem          sales.SaleItem          `json:"sale_item"`
	Link              sales.SaleItemInventory `json:"allocation"`
	Transaction       inventory.Transaction   `json:"transaction"`
}

// Clamp returns min(requested, pending, available), with a nil request
// standing for the full pending quantity.
func Clamp(requested *int64, pending, available int64) int64 {
	qty := pending
	if requested != nil && *requested < qty {
		qty = *requested
	}
	if available < qty {
		qty = available
	}
	return qty
}

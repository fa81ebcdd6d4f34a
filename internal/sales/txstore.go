package sales

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const itemColumns = `id, sale_id, product_id, ordered_quantity, fulfilled_quantity, backorder_quantity, has_backorder, created_at, updated_at`

// TxStore runs sale statements on a caller-owned transaction.
type TxStore struct {
	q db.Querier
}

// NewTxStore wraps q, normally a pgx.Tx.
func NewTxStore(q db.Querier) *TxStore {
	return &TxStore{q: q}
}

// GetItemForUpdate locks and returns a sale item.
func (s *TxStore) GetItemForUpdate(ctx context.Context, id int64) (SaleItem, error) {
	var item SaleItem
	err := pgxscan.Get(ctx, s.q, &item, `SELECT `+itemColumns+` FROM sale_items WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return SaleItem{}, fmt.Errorf("sale item %d: %w", id, shared.ErrNotFound)
		}
		return SaleItem{}, err
	}
	return item, nil
}

// UpdateItemCounters persists fulfilled, backorder and has-backorder.
func (s *TxStore) UpdateItemCounters(ctx context.Context, item SaleItem) error {
	_, err := s.q.Exec(ctx, `
		UPDATE sale_items
		SET fulfilled_quantity = $2, backorder_quantity = $3, has_backorder = $4, updated_at = NOW()
		WHERE id = $1`, item.ID, item.FulfilledQuantity, item.BackorderQuantity, item.HasBackorder)
	if err != nil {
		return fmt.Errorf("update sale item counters: %w", err)
	}
	return nil
}

// InsertItemInventory appends a lot linkage.
func (s *TxStore) InsertItemInventory(ctx context.Context, link SaleItemInventory) (SaleItemInventory, error) {
	err := s.q.QueryRow(ctx, `
		INSERT INTO sale_item_inventories (sale_item_id, inventory_lot_id, backorder_id, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, link.SaleItemID, link.LotID, db.NullID(link.BackorderID), link.Quantity,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return SaleItemInventory{}, fmt.Errorf("insert sale item inventory: %w", err)
	}
	return link, nil
}

// InsertSale inserts the header. A reused invoice number surfaces as ErrDuplicateDocumentNumber.
func (s *TxStore) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := s.q.QueryRow(ctx, `
		INSERT INTO sales (invoice_number, customer_id, location_id, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, sale.InvoiceNumber, sale.CustomerID, sale.LocationID, db.NullID(sale.CreatedBy),
	).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", shared.WrapDuplicateDocument(err))
	}
	return sale, nil
}

// InsertItem inserts a line with zero fulfilled quantity.
func (s *TxStore) InsertItem(ctx context.Context, item SaleItem) (SaleItem, error) {
	err := s.q.QueryRow(ctx, `
		INSERT INTO sale_items (sale_id, product_id, ordered_quantity)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`, item.SaleID, item.ProductID, item.OrderedQuantity,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return SaleItem{}, fmt.Errorf("insert sale item: %w", err)
	}
	return item, nil
}

// InsertBackorder opens an active backorder for a line's shortfall.
func (s *TxStore) InsertBackorder(ctx context.Context, item SaleItem, locationID, pending int64) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO backorders (sale_item_id, product_id, location_id, pending_quantity, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id`, item.ID, item.ProductID, locationID, pending,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert backorder: %w", err)
	}
	return id, nil
}

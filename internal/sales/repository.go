package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	InsertItem(ctx context.Context, item SaleItem) (SaleItem, error)
	UpdateItemCounters(ctx context.Context, item SaleItem) error
	InsertItemInventory(ctx context.Context, link SaleItemInventory) (SaleItemInventory, error)
	InsertBackorder(ctx context.Context, item SaleItem, locationID, pending int64) (int64, error)
	LockAllocatableLots(ctx context.Context, productID, locationID int64) ([]inventory.Lot, error)
	UpdateLot(ctx context.Context, lot inventory.Lot) error
	InsertTransaction(ctx context.Context, t inventory.Transaction) (inventory.Transaction, error)
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	numbers *sequence.Generator
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, numbers *sequence.Generator) *Repository {
	return &Repository{pool: pool, numbers: numbers}
}

type txRepo struct {
	*TxStore
	lots    *inventory.TxStore
	tx      pgx.Tx
	numbers *sequence.Generator
}

func (r *txRepo) NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error) {
	return r.numbers.Next(ctx, r.tx, kind, at)
}

func (r *txRepo) LockAllocatableLots(ctx context.Context, productID, locationID int64) ([]inventory.Lot, error) {
	return r.lots.LockAllocatableLots(ctx, productID, locationID)
}

func (r *txRepo) UpdateLot(ctx context.Context, lot inventory.Lot) error {
	return r.lots.UpdateLot(ctx, lot)
}

func (r *txRepo) InsertTransaction(ctx context.Context, t inventory.Transaction) (inventory.Transaction, error) {
	return r.lots.InsertTransaction(ctx, t)
}

// WithTx executes the callback inside a read-committed locking transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: NewTxStore(tx), lots: inventory.NewTxStore(tx), tx: tx, numbers: r.numbers})
	})
}

// GetSale returns the header and its items.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	var sale Sale
	err := pgxscan.Get(ctx, r.pool, &sale, `
		SELECT id, invoice_number, customer_id, location_id, COALESCE(created_by, 0) AS created_by, created_at
		FROM sales WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Sale{}, fmt.Errorf("sale %d: %w", id, shared.ErrNotFound)
		}
		return Sale{}, err
	}
	sale.Items = []SaleItem{}
	if err := pgxscan.Select(ctx, r.pool, &sale.Items, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = $1 ORDER BY id`, id); err != nil {
		return Sale{}, fmt.Errorf("list sale items: %w", err)
	}
	return sale, nil
}

// GetSaleItem returns one line.
func (r *Repository) GetSaleItem(ctx context.Context, id int64) (SaleItem, error) {
	var item SaleItem
	err := pgxscan.Get(ctx, r.pool, &item, `SELECT `+itemColumns+` FROM sale_items WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return SaleItem{}, fmt.Errorf("sale item %d: %w", id, shared.ErrNotFound)
		}
		return SaleItem{}, err
	}
	return item, nil
}

// ListItemLots returns the lot linkage of a sale item in creation order.
func (r *Repository) ListItemLots(ctx context.Context, saleItemID int64) ([]SaleItemInventory, error) {
	links := []SaleItemInventory{}
	err := pgxscan.Select(ctx, r.pool, &links, `
		SELECT sii.id, sii.sale_item_id, sii.inventory_lot_id, l.lot_number,
		       COALESCE(sii.backorder_id, 0) AS backorder_id, sii.quantity, sii.created_at
		FROM sale_item_inventories sii
		JOIN inventory_lots l ON l.id = sii.inventory_lot_id
		WHERE sii.sale_item_id = $1
		ORDER BY sii.created_at, sii.id`, saleItemID)
	if err != nil {
		return nil, fmt.Errorf("list sale item lots: %w", err)
	}
	return links, nil
}

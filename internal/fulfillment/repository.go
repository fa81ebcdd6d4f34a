package fulfillment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/backorders"
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sales"
)

// TxRepository is every statement a fulfillment runs, all on one transaction.
type TxRepository interface {
	GetBackorderForUpdate(ctx context.Context, id int64) (backorders.Backorder, error)
	UpdateBackorder(ctx context.Context, b backorders.Backorder) error
	GetLotForUpdate(ctx context.Context, id int64) (inventory.Lot, error)
	GetSaleItemForUpdate(ctx context.Context, id int64) (sales.SaleItem, error)
	UpdateSaleItem(ctx context.Context, item sales.SaleItem) error
	InsertItemInventory(ctx context.Context, link sales.SaleItemInventory) (sales.SaleItemInventory, error)
	InsertTransaction(ctx context.Context, t inventory.Transaction) (inventory.Transaction, error)
}

// Repository opens fulfillment transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	backorders *backorders.TxStore
	lots       *inventory.TxStore
	items      *sales.TxStore
}

func (r *txRepo) GetBackorderForUpdate(ctx context.Context, id int64) (backorders.Backorder, error) {
	return r.backorders.GetForUpdate(ctx, id)
}

func (r *txRepo) UpdateBackorder(ctx context.Context, b backorders.Backorder) error {
	return r.backorders.Update(ctx, b)
}

func (r *txRepo) GetLotForUpdate(ctx context.Context, id int64) (inventory.Lot, error) {
	return r.lots.GetLotForUpdate(ctx, id)
}

func (r *txRepo) GetSaleItemForUpdate(ctx context.Context, id int64) (sales.SaleItem, error) {
	return r.items.GetItemForUpdate(ctx, id)
}

func (r *txRepo) UpdateSaleItem(ctx context.Context, item sales.SaleItem) error {
	return r.items.UpdateItemCounters(ctx, item)
}

func (r *txRepo) InsertItemInventory(ctx context.Context, link sales.SaleItemInventory) (sales.SaleItemInventory, error) {
	return r.items.InsertItemInventory(ctx, link)
}

func (r *txRepo) InsertTransaction(ctx context.Context, t inventory.Transaction) (inventory.Transaction, error) {
	return r.lots.InsertTransaction(ctx, t)
}

// WithTx executes the callback inside a read-committed locking transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			backorders: backorders.NewTxStore(tx),
			lots:       inventory.NewTxStore(tx),
			items:      sales.NewTxStore(tx),
		})
	})
}

package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const transactionColumns = `id, inventory_lot_id, product_id, location_id, COALESCE(actor_id, 0) AS actor_id, tx_type,
	quantity_before, quantity_after, note, document_number, ref_type, COALESCE(ref_id, 0) AS ref_id, created_at`

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	numbers *sequence.Generator
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, numbers *sequence.Generator) *Repository {
	return &Repository{pool: pool, numbers: numbers}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetLotForUpdate(ctx context.Context, id int64) (Lot, error)
	EnsureLotForUpdate(ctx context.Context, productID, locationID int64, lotNumber string) (Lot, error)
	UpdateLot(ctx context.Context, lot Lot) error
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error)
}

type txRepo struct {
	*TxStore
	tx      pgx.Tx
	numbers *sequence.Generator
}

func (r *txRepo) NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error) {
	return r.numbers.Next(ctx, r.tx, kind, at)
}

// WithTx executes the callback inside a read-committed locking transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: NewTxStore(tx), tx: tx, numbers: r.numbers})
	})
}

// GetLot returns a lot by id.
func (r *Repository) GetLot(ctx context.Context, id int64) (Lot, error) {
	var lot Lot
	err := pgxscan.Get(ctx, r.pool, &lot, `SELECT `+lotColumns+` FROM inventory_lots WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Lot{}, fmt.Errorf("inventory lot %d: %w", id, shared.ErrNotFound)
		}
		return Lot{}, err
	}
	return lot, nil
}

func applyLotFilter(b squirrel.SelectBuilder, filter LotFilter) squirrel.SelectBuilder {
	if filter.ProductID > 0 {
		b = b.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.LocationID > 0 {
		b = b.Where(squirrel.Eq{"location_id": filter.LocationID})
	}
	if filter.ActiveOnly {
		b = b.Where(squirrel.Eq{"active": true})
	}
	if filter.PositiveOnly {
		b = b.Where(squirrel.Gt{"quantity": 0})
	}
	return b
}

// ListLots returns a page of lots matching filter.
func (r *Repository) ListLots(ctx context.Context, filter LotFilter) (LotList, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)

	countSQL, countArgs, err := applyLotFilter(psql.Select("COUNT(*)").From("inventory_lots"), filter).ToSql()
	if err != nil {
		return LotList{}, fmt.Errorf("build lot count: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return LotList{}, fmt.Errorf("count lots: %w", err)
	}

	query, args, err := applyLotFilter(psql.Select(lotColumns).From("inventory_lots"), filter).
		OrderBy("product_id", "location_id", "id").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return LotList{}, fmt.Errorf("build lot list: %w", err)
	}
	items := []Lot{}
	if err := pgxscan.Select(ctx, r.pool, &items, query, args...); err != nil {
		return LotList{}, fmt.Errorf("list lots: %w", err)
	}
	return LotList{Items: items, Total: total}, nil
}

// ListTransactions returns audit rows newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	b := psql.Select(transactionColumns).From("inventory_transactions")
	if filter.LotID > 0 {
		b = b.Where(squirrel.Eq{"inventory_lot_id": filter.LotID})
	}
	if filter.ProductID > 0 {
		b = b.Where(squirrel.Eq{"product_id": filter.ProductID})
	}
	if filter.Type != "" {
		b = b.Where(squirrel.Eq{"tx_type": string(filter.Type)})
	}
	query, args, err := b.OrderBy("created_at DESC", "id DESC").Limit(uint64(filter.Limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transaction list: %w", err)
	}
	txs := []Transaction{}
	if err := pgxscan.Select(ctx, r.pool, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// GetProduct returns a catalog entry.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := pgxscan.Get(ctx, r.pool, &p, `SELECT id, sku, name, reorder_level, reorder_quantity FROM products WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) || isNoRows(err) {
			return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// StockByLocation sums active lot quantities per location.
func (r *Repository) StockByLocation(ctx context.Context, productID int64) ([]LocationStock, error) {
	rows := []LocationStock{}
	err := pgxscan.Select(ctx, r.pool, &rows, `
		SELECT l.location_id, loc.code AS location_code,
		       COALESCE(SUM(l.quantity) FILTER (WHERE l.active), 0) AS on_hand,
		       COUNT(*) FILTER (WHERE l.active AND l.quantity > 0) AS lots
		FROM inventory_lots l
		JOIN locations loc ON loc.id = l.location_id
		WHERE l.product_id = $1
		GROUP BY l.location_id, loc.code
		ORDER BY l.location_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("stock by location: %w", err)
	}
	return rows, nil
}

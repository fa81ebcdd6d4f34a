package backorders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Backorder, error)
	Update(ctx context.Context, b Backorder) error
	GetSaleItemForUpdate(ctx context.Context, id int64) (sales.SaleItem, error)
	UpdateSaleItem(ctx context.Context, item sales.SaleItem) error
}

// Repository reads and mutates backorders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*TxStore
	items *sales.TxStore
}

func (r *txRepo) GetSaleItemForUpdate(ctx context.Context, id int64) (sales.SaleItem, error) {
	return r.items.GetItemForUpdate(ctx, id)
}

func (r *txRepo) UpdateSaleItem(ctx context.Context, item sales.SaleItem) error {
	return r.items.UpdateItemCounters(ctx, item)
}

// WithTx executes the callback inside a read-committed locking transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: NewTxStore(tx), items: sales.NewTxStore(tx)})
	})
}

func listBase(columns string) squirrel.SelectBuilder {
	return psql.Select(columns).
		From("backorders b").
		Join("products p ON p.id = b.product_id").
		Join("sale_items si ON si.id = b.sale_item_id").
		Join("sales s ON s.id = si.sale_id").
		Join("locations loc ON loc.id = b.location_id").
		LeftJoin("customers c ON c.id = s.customer_id").
		Where(squirrel.Eq{"b.active": true})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func applyFilters(b squirrel.SelectBuilder, f ListFilters) squirrel.SelectBuilder {
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		b = b.Where(squirrel.Or{
			squirrel.ILike{"p.name": pattern},
			squirrel.ILike{"p.sku": pattern},
			squirrel.ILike{"s.invoice_number": pattern},
			squirrel.ILike{"c.name": pattern},
		})
	}
	if f.ProductID > 0 {
		b = b.Where(squirrel.Eq{"b.product_id": f.ProductID})
	}
	if f.SaleID > 0 {
		b = b.Where(squirrel.Eq{"si.sale_id": f.SaleID})
	}
	if f.CustomerID > 0 {
		b = b.Where(squirrel.Eq{"s.customer_id": f.CustomerID})
	}
	if f.MinPending != nil {
		b = b.Where(squirrel.GtOrEq{"b.pending_quantity": *f.MinPending})
	}
	if f.MaxPending != nil {
		b = b.Where(squirrel.LtOrEq{"b.pending_quantity": *f.MaxPending})
	}
	if f.CreatedFrom != nil {
		b = b.Where(squirrel.GtOrEq{"b.created_at": *f.CreatedFrom})
	}
	if f.CreatedTo != nil {
		b = b.Where(squirrel.Lt{"b.created_at": *f.CreatedTo})
	}
	return b
}

const listColumns = `b.id, b.sale_item_id, b.product_id, b.location_id, b.pending_quantity, b.active, b.created_at, b.updated_at,
	p.sku AS product_sku, p.name AS product_name, si.sale_id, s.invoice_number, c.name AS customer_name, loc.code AS location_code`

func countQuery(f ListFilters) (string, []any, error) {
	return applyFilters(listBase("COUNT(*)"), f).ToSql()
}

// listQuery selects one page of active backorders in FIFO order.
func listQuery(f ListFilters, page shared.Pagination) (string, []any, error) {
	return applyFilters(listBase(listColumns), f).
		OrderBy("b.created_at ASC", "b.id ASC").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset())).
		ToSql()
}

// List returns active backorders matching f, oldest first, and the total count.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]ListItem, int, error) {
	countSQL, countArgs, err := countQuery(f)
	if err != nil {
		return nil, 0, fmt.Errorf("build backorder count: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count backorders: %w", err)
	}

	query, args, err := listQuery(f, shared.NewPagination(f.Page, f.PerPage, total))
	if err != nil {
		return nil, 0, fmt.Errorf("build backorder list: %w", err)
	}
	items := []ListItem{}
	if err := pgxscan.Select(ctx, r.pool, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list backorders: %w", err)
	}
	return items, total, nil
}

type detailRow struct {
	Backorder
	ProductRefID     *int64     `db:"product_ref_id"`
	ProductSKU       *string    `db:"product_sku"`
	ProductName      *string    `db:"product_name"`
	ItemID           *int64     `db:"item_id"`
	ItemSaleID       *int64     `db:"item_sale_id"`
	ItemProductID    *int64     `db:"item_product_id"`
	ItemOrdered      *int64     `db:"item_ordered"`
	ItemFulfilled    *int64     `db:"item_fulfilled"`
	ItemBackorder    *int64     `db:"item_backorder"`
	ItemHasBackorder *bool      `db:"item_has_backorder"`
	ItemCreatedAt    *time.Time `db:"item_created_at"`
	ItemUpdatedAt    *time.Time `db:"item_updated_at"`
	SaleRefID        *int64     `db:"sale_ref_id"`
	InvoiceNumber    *string    `db:"invoice_number"`
	SaleCreatedAt    *time.Time `db:"sale_created_at"`
	CustomerRefID    *int64     `db:"customer_ref_id"`
	CustomerName     *string    `db:"customer_name"`
}

const detailSQL = `
SELECT b.id, b.sale_item_id, b.product_id, b.location_id, b.pending_quantity, b.active, b.created_at, b.updated_at,
       p.id AS product_ref_id, p.sku AS product_sku, p.name AS product_name,
       si.id AS item_id, si.sale_id AS item_sale_id, si.product_id AS item_product_id,
       si.ordered_quantity AS item_ordered, si.fulfilled_quantity AS item_fulfilled,
       si.backorder_quantity AS item_backorder, si.has_backorder AS item_has_backorder,
       si.created_at AS item_created_at, si.updated_at AS item_updated_at,
       s.id AS sale_ref_id, s.invoice_number, s.created_at AS sale_created_at,
       c.id AS customer_ref_id, c.name AS customer_name
FROM backorders b
LEFT JOIN products p ON p.id = b.product_id
LEFT JOIN sale_items si ON si.id = b.sale_item_id
LEFT JOIN sales s ON s.id = si.sale_id
LEFT JOIN customers c ON c.id = s.customer_id
WHERE b.id = $1`

// Get returns a backorder with its joined context and history.
func (r *Repository) Get(ctx context.Context, id int64) (*BackorderDetail, error) {
	var row detailRow
	if err := pgxscan.Get(ctx, r.pool, &row, detailSQL, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("backorder %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("get backorder: %w", err)
	}
	detail := row.toDetail()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pgxscan.Select(gctx, r.pool, &detail.Allocations, `
			SELECT sii.id, sii.sale_item_id, sii.inventory_lot_id, l.lot_number,
			       COALESCE(sii.backorder_id, 0) AS backorder_id, sii.quantity, sii.created_at
			FROM sale_item_inventories sii
			JOIN inventory_lots l ON l.id = sii.inventory_lot_id
			WHERE sii.backorder_id = $1
			ORDER BY sii.created_at, sii.id`, id)
	})
	g.Go(func() error {
		return pgxscan.Select(gctx, r.pool, &detail.Transactions, `
			SELECT id, inventory_lot_id, product_id, location_id, COALESCE(actor_id, 0) AS actor_id, tx_type,
			       quantity_before, quantity_after, note, document_number, ref_type, COALESCE(ref_id, 0) AS ref_id, created_at
			FROM inventory_transactions
			WHERE ref_type = 'backorder' AND ref_id = $1
			ORDER BY created_at, id`, id)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load backorder history: %w", err)
	}
	return detail, nil
}

func (row detailRow) toDetail() *BackorderDetail {
	detail := &BackorderDetail{
		Backorder:    row.Backorder,
		Allocations:  []sales.SaleItemInventory{},
		Transactions: []inventory.Transaction{},
	}
	if row.ProductRefID != nil {
		detail.Product = &ProductSummary{ID: *row.ProductRefID, SKU: deref(row.ProductSKU), Name: deref(row.ProductName)}
	}
	if row.ItemID != nil {
		item := &SaleItemDetail{SaleItem: sales.SaleItem{
			ID:                *row.ItemID,
			SaleID:            derefInt(row.ItemSaleID),
			ProductID:         derefInt(row.ItemProductID),
			OrderedQuantity:   derefInt(row.ItemOrdered),
			FulfilledQuantity: derefInt(row.ItemFulfilled),
			BackorderQuantity: derefInt(row.ItemBackorder),
			HasBackorder:      row.ItemHasBackorder != nil && *row.ItemHasBackorder,
		}}
		if row.ItemCreatedAt != nil {
			item.CreatedAt = *row.ItemCreatedAt
		}
		if row.ItemUpdatedAt != nil {
			item.UpdatedAt = *row.ItemUpdatedAt
		}
		if row.SaleRefID != nil {
			sale := &SaleSummary{ID: *row.SaleRefID, InvoiceNumber: deref(row.InvoiceNumber)}
			if row.SaleCreatedAt != nil {
				sale.CreatedAt = *row.SaleCreatedAt
			}
			if row.CustomerRefID != nil {
				sale.Customer = &CustomerSummary{ID: *row.CustomerRefID, Name: deref(row.CustomerName)}
			}
			item.Sale = sale
		}
		detail.SaleItem = item
	}
	return detail
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

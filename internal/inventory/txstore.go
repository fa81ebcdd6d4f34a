package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const lotColumns = `id, product_id, location_id, lot_number, quantity, active, created_at, updated_at`

// TxStore runs lot and transaction statements on a caller-owned transaction.
// Other modules compose it when their own transactions touch lots.
type TxStore struct {
	q db.Querier
}

// NewTxStore wraps q, normally a pgx.Tx.
func NewTxStore(q db.Querier) *TxStore {
	return &TxStore{q: q}
}

// GetLotForUpdate locks and returns the lot.
func (s *TxStore) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	var lot Lot
	err := pgxscan.Get(ctx, s.q, &lot, `SELECT `+lotColumns+` FROM inventory_lots WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Lot{}, fmt.Errorf("inventory lot %d: %w", id, shared.ErrNotFound)
		}
		return Lot{}, err
	}
	return lot, nil
}

// EnsureLotForUpdate returns the lot for (product, location, lot number),
// creating an empty one when missing. The returned row is locked either way.
func (s *TxStore) EnsureLotForUpdate(ctx context.Context, productID, locationID int64, lotNumber string) (Lot, error) {
	var lot Lot
	err := pgxscan.Get(ctx, s.q, &lot, `
		INSERT INTO inventory_lots (product_id, location_id, lot_number, quantity, active)
		VALUES ($1, $2, $3, 0, TRUE)
		ON CONFLICT (product_id, location_id, lot_number) DO UPDATE SET updated_at = NOW()
		RETURNING `+lotColumns, productID, locationID, lotNumber)
	if err != nil {
		return Lot{}, fmt.Errorf("ensure lot: %w", err)
	}
	return lot, nil
}

// LockAllocatableLots locks the active positive lots of a product at a
// location in ascending id order, the allocation order for new sales.
func (s *TxStore) LockAllocatableLots(ctx context.Context, productID, locationID int64) ([]Lot, error) {
	var lots []Lot
	err := pgxscan.Select(ctx, s.q, &lots, `
		SELECT `+lotColumns+` FROM inventory_lots
		WHERE product_id = $1 AND location_id = $2 AND active AND quantity > 0
		ORDER BY id
		FOR UPDATE`, productID, locationID)
	if err != nil {
		return nil, fmt.Errorf("lock allocatable lots: %w", err)
	}
	return lots, nil
}

// UpdateLot persists quantity and active flag.
func (s *TxStore) UpdateLot(ctx context.Context, lot Lot) error {
	tag, err := s.q.Exec(ctx, `UPDATE inventory_lots SET quantity = $2, active = $3, updated_at = NOW() WHERE id = $1`, lot.ID, lot.Quantity, lot.Active)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory lot %d: %w", lot.ID, shared.ErrNotFound)
	}
	return nil
}

// InsertTransaction appends an audit row.
func (s *TxStore) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := s.q.QueryRow(ctx, `
		INSERT INTO inventory_transactions
			(inventory_lot_id, product_id, location_id, actor_id, tx_type, quantity_before, quantity_after, note, document_number, ref_type, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		t.LotID, t.ProductID, t.LocationID, db.NullID(t.ActorID), string(t.Type), t.QuantityBefore, t.QuantityAfter,
		t.Note, t.DocumentNumber, t.RefType, db.NullID(t.RefID),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert inventory transaction: %w", err)
	}
	return t, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

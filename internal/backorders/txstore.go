package backorders

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const backorderColumns = `id, sale_item_id, product_id, location_id, pending_quantity, active, created_at, updated_at`

// TxStore runs backorder statements on a caller-owned transaction.
type TxStore struct {
	q db.Querier
}

// NewTxStore wraps q, normally a pgx.Tx.
func NewTxStore(q db.Querier) *TxStore {
	return &TxStore{q: q}
}

// GetForUpdate locks and returns a backorder.
func (s *TxStore) GetForUpdate(ctx context.Context, id int64) (Backorder, error) {
	var b Backorder
	err := pgxscan.Get(ctx, s.q, &b, `SELECT `+backorderColumns+` FROM backorders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Backorder{}, fmt.Errorf("backorder %d: %w", id, shared.ErrNotFound)
		}
		return Backorder{}, err
	}
	return b, nil
}

// Update persists pending quantity and active flag.
func (s *TxStore) Update(ctx context.Context, b Backorder) error {
	_, err := s.q.Exec(ctx, `UPDATE backorders SET pending_quantity = $2, active = $3, updated_at = NOW() WHERE id = $1`,
		b.ID, b.PendingQuantity, b.Active)
	if err != nil {
		return fmt.Errorf("update backorder: %w", err)
	}
	return nil
}

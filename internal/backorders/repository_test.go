package backorders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func TestListQueryActiveOnlyFIFO(t *testing.T) {
	query, args, err := listQuery(ListFilters{}, shared.NewPagination(3, 10, 100))
	require.NoError(t, err)

	assert.Contains(t, query, "FROM backorders b")
	assert.Contains(t, query, "LEFT JOIN customers c ON c.id = s.customer_id")
	assert.Contains(t, query, "WHERE b.active = $1")
	assert.Contains(t, query, "ORDER BY b.created_at ASC, b.id ASC LIMIT 10 OFFSET 20")
	assert.Equal(t, []any{true}, args)
}

func TestListQuerySearchEscapesLikePatterns(t *testing.T) {
	query, args, err := listQuery(ListFilters{Search: "  50%_off\\ "}, shared.NewPagination(1, 20, 0))
	require.NoError(t, err)

	assert.Contains(t, query,
		"WHERE b.active = $1 AND (p.name ILIKE $2 OR p.sku ILIKE $3 OR s.invoice_number ILIKE $4 OR c.name ILIKE $5)")
	pattern := `%50\%\_off\\%`
	assert.Equal(t, []any{true, pattern, pattern, pattern, pattern}, args)
}

func TestListQueryAppliesEveryFilter(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	f := ListFilters{
		ProductID:   7,
		SaleID:      8,
		CustomerID:  9,
		MinPending:  ptr(2),
		MaxPending:  ptr(5),
		CreatedFrom: &from,
		CreatedTo:   &to,
	}

	query, args, err := listQuery(f, shared.NewPagination(1, 20, 0))
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE b.active = $1 AND b.product_id = $2 AND si.sale_id = $3 AND s.customer_id = $4"+
		" AND b.pending_quantity >= $5 AND b.pending_quantity <= $6 AND b.created_at >= $7 AND b.created_at < $8")
	assert.Equal(t, []any{true, int64(7), int64(8), int64(9), int64(2), int64(5), from, to}, args)
}

func TestCountQuerySharesFilters(t *testing.T) {
	f := ListFilters{Search: "chair", MinPending: ptr(1)}

	count, countArgs, err := countQuery(f)
	require.NoError(t, err)
	list, listArgs, err := listQuery(f, shared.NewPagination(1, 20, 0))
	require.NoError(t, err)

	assert.Contains(t, count, "SELECT COUNT(*) FROM backorders b")
	assert.NotContains(t, count, "ORDER BY")
	assert.Equal(t, listArgs, countArgs)
	assert.Contains(t, list, "AND b.pending_quantity >= $6")
}

func ptr(v int64) *int64 { return &v }

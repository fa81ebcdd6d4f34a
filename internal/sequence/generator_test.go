package sequence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the document_sequences table.
type mockQuerier struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{counters: map[string]int64{}}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := args[0].(string) + "|" + args[1].(string)
	current, ok := m.counters[key]
	switch {
	case strings.HasPrefix(strings.TrimSpace(sql), "SELECT"):
		if !ok {
			return &mockRow{err: pgx.ErrNoRows}
		}
		return &mockRow{val: current}
	case strings.Contains(sql, "GREATEST"):
		seed := args[2].(int64)
		if seed > current {
			current = seed
		}
	default:
		current++
	}
	m.counters[key] = current
	return &mockRow{val: current}
}

type countingObserver struct {
	kinds []string
}

func (c *countingObserver) ObserveSequence(kind string) {
	c.kinds = append(c.kinds, kind)
}

var may2024 = time.Date(2024, time.May, 14, 10, 0, 0, 0, time.UTC)

func TestPreviewFreshMonthStartsAtOne(t *testing.T) {
	q := newMockQuerier()
	gen := NewGenerator(q, nil)
	ctx := context.Background()

	first, err := gen.Preview(ctx, KindPurchase, may2024)
	require.NoError(t, err)
	require.Equal(t, "P-2024/05/0001", first)

	again, err := gen.Preview(ctx, KindPurchase, may2024)
	require.NoError(t, err)
	require.Equal(t, first, again, "preview must not reserve a number")
}

func TestNextIssuesIncreasingNumbers(t *testing.T) {
	q := newMockQuerier()
	obs := &countingObserver{}
	gen := NewGenerator(q, obs)
	ctx := context.Background()

	a, err := gen.Next(ctx, q, KindPurchase, may2024)
	require.NoError(t, err)
	b, err := gen.Next(ctx, q, KindPurchase, may2024)
	require.NoError(t, err)
	require.Equal(t, "P-2024/05/0001", a)
	require.Equal(t, "P-2024/05/0002", b)

	pa, err := Parse(a)
	require.NoError(t, err)
	pb, err := Parse(b)
	require.NoError(t, err)
	require.Greater(t, pb.Sequence, pa.Sequence)

	preview, err := gen.Preview(ctx, KindPurchase, may2024)
	require.NoError(t, err)
	require.Equal(t, "P-2024/05/0003", preview)
	require.Equal(t, []string{"purchase", "purchase"}, obs.kinds)
}

func TestCountersAreScopedByKindAndMonth(t *testing.T) {
	q := newMockQuerier()
	gen := NewGenerator(q, nil)
	ctx := context.Background()

	_, err := gen.Next(ctx, q, KindPurchase, may2024)
	require.NoError(t, err)

	june, err := gen.Next(ctx, q, KindPurchase, may2024.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, "P-2024/06/0001", june)

	po, err := gen.Next(ctx, q, KindPurchaseOrder, may2024)
	require.NoError(t, err)
	require.Equal(t, "PO-2024/05/0001", po)
}

func TestNextConcurrentCallersNeverCollide(t *testing.T) {
	q := newMockQuerier()
	gen := NewGenerator(q, nil)
	ctx := context.Background()

	const n = 50
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := gen.Next(ctx, q, KindShipment, may2024)
			if err == nil {
				results <- num
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for num := range results {
		require.False(t, seen[num], "duplicate %s", num)
		seen[num] = true
	}
	require.Len(t, seen, n)
}

func TestSeedNeverLowersCounter(t *testing.T) {
	q := newMockQuerier()
	gen := NewGenerator(q, nil)
	ctx := context.Background()

	current, err := gen.SeedFromNumber(ctx, "WB-2024/05/0041")
	require.NoError(t, err)
	require.EqualValues(t, 41, current)

	current, err = gen.Seed(ctx, KindWaybill, may2024, 10)
	require.NoError(t, err)
	require.EqualValues(t, 41, current)

	next, err := gen.Next(ctx, q, KindWaybill, may2024)
	require.NoError(t, err)
	require.Equal(t, "WB-2024/05/0042", next)
}

func TestNextPropagatesQueryErrors(t *testing.T) {
	gen := NewGenerator(nil, nil)
	boom := errors.New("connection reset")
	_, err := gen.Next(context.Background(), failingQuerier{err: boom}, KindReceipt, may2024)
	require.ErrorIs(t, err, boom)
}

func TestUnknownKindRejected(t *testing.T) {
	q := newMockQuerier()
	gen := NewGenerator(q, nil)
	_, err := gen.Next(context.Background(), q, Kind("bogus"), may2024)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = gen.Preview(context.Background(), Kind("bogus"), may2024)
	require.ErrorIs(t, err, shared.ErrValidation)
}

type failingQuerier struct {
	err error
}

func (f failingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return &mockRow{err: f.err}
}

package fulfillment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/backorders"
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryState struct {
	backorders   map[int64]backorders.Backorder
	lots         map[int64]inventory.Lot
	items        map[int64]sales.SaleItem
	links        []sales.SaleItemInventory
	transactions []inventory.Transaction
	writes       int
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		backorders:   make(map[int64]backorders.Backorder, len(s.backorders)),
		lots:         make(map[int64]inventory.Lot, len(s.lots)),
		items:        make(map[int64]sales.SaleItem, len(s.items)),
		links:        append([]sales.SaleItemInventory(nil), s.links...),
		transactions: append([]inventory.Transaction(nil), s.transactions...),
		writes:       s.writes,
	}
	for k, v := range s.backorders {
		out.backorders[k] = v
	}
	for k, v := range s.lots {
		out.lots[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	return out
}

// memoryRepo mimics read-committed row locking: a ForUpdate read blocks on the
// row lock, then sees the latest committed row. Writes become visible on commit.
type memoryRepo struct {
	mu       sync.Mutex
	state    memoryState
	rowLocks map[string]*sync.Mutex
	failOn   string
	nextID   int64
	lockLog  []string
}

type memoryTx struct {
	repo       *memoryRepo
	held       map[string]*sync.Mutex
	backorders map[int64]backorders.Backorder
	lots       map[int64]inventory.Lot
	items      map[int64]sales.SaleItem
	links      []sales.SaleItemInventory
	txs        []inventory.Transaction
	writes     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{
			backorders: map[int64]backorders.Backorder{},
			lots:       map[int64]inventory.Lot{},
			items:      map[int64]sales.SaleItem{},
		},
		rowLocks: map[string]*sync.Mutex{},
	}
}

func (r *memoryRepo) seedBackorder(id, ordered int64) backorders.Backorder {
	item := sales.SaleItem{ID: 100 + id, SaleID: 1, ProductID: 1, OrderedQuantity: ordered,
		BackorderQuantity: ordered, HasBackorder: ordered > 0}
	r.state.items[item.ID] = item
	b := backorders.Backorder{ID: id, SaleItemID: item.ID, ProductID: 1, LocationID: 1,
		PendingQuantity: ordered, Active: ordered > 0}
	r.state.backorders[id] = b
	return b
}

func (r *memoryRepo) seedLot(id, productID, locationID, qty int64) inventory.Lot {
	lot := inventory.Lot{ID: id, ProductID: productID, LocationID: locationID, LotNumber: "LOT-" + string(rune('A'+id)),
		Quantity: qty, Active: true}
	r.state.lots[id] = lot
	return lot
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:       r,
		held:       map[string]*sync.Mutex{},
		backorders: map[int64]backorders.Backorder{},
		lots:       map[int64]inventory.Lot{},
		items:      map[int64]sales.SaleItem{},
	}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (tx *memoryTx) lock(key string) {
	if _, ok := tx.held[key]; ok {
		return
	}
	tx.repo.mu.Lock()
	m, ok := tx.repo.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		tx.repo.rowLocks[key] = m
	}
	tx.repo.mu.Unlock()
	m.Lock()
	tx.held[key] = m
}

func (tx *memoryTx) release() {
	for key, m := range tx.held {
		m.Unlock()
		delete(tx.held, key)
	}
}

func (tx *memoryTx) commit() {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range tx.backorders {
		r.state.backorders[id] = b
	}
	for id, lot := range tx.lots {
		r.state.lots[id] = lot
	}
	for id, item := range tx.items {
		r.state.items[id] = item
	}
	r.state.links = append(r.state.links, tx.links...)
	r.state.transactions = append(r.state.transactions, tx.txs...)
	r.state.writes += tx.writes
}

func (tx *memoryTx) logLock(kind string) {
	tx.repo.mu.Lock()
	tx.repo.lockLog = append(tx.repo.lockLog, kind)
	tx.repo.mu.Unlock()
}

func (tx *memoryTx) allocID() int64 {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTx) fail(op string) error {
	if tx.repo.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (tx *memoryTx) GetBackorderForUpdate(ctx context.Context, id int64) (backorders.Backorder, error) {
	tx.logLock("backorder")
	tx.lock("backorder:" + strconv.FormatInt(id, 10))
	if b, ok := tx.backorders[id]; ok {
		return b, nil
	}
	tx.repo.mu.Lock()
	b, ok := tx.repo.state.backorders[id]
	tx.repo.mu.Unlock()
	if !ok {
		return backorders.Backorder{}, shared.ErrNotFound
	}
	return b, nil
}

func (tx *memoryTx) UpdateBackorder(ctx context.Context, b backorders.Backorder) error {
	if err := tx.fail("update_backorder"); err != nil {
		return err
	}
	tx.writes++
	tx.backorders[b.ID] = b
	return nil
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, id int64) (inventory.Lot, error) {
	tx.logLock("lot")
	tx.lock("lot:" + strconv.FormatInt(id, 10))
	if lot, ok := tx.lots[id]; ok {
		return lot, nil
	}
	tx.repo.mu.Lock()
	lot, ok := tx.repo.state.lots[id]
	tx.repo.mu.Unlock()
	if !ok {
		return inventory.Lot{}, shared.ErrNotFound
	}
	return lot, nil
}

func (tx *memoryTx) GetSaleItemForUpdate(ctx context.Context, id int64) (sales.SaleItem, error) {
	tx.logLock("sale_item")
	tx.lock("sale_item:" + strconv.FormatInt(id, 10))
	if item, ok := tx.items[id]; ok {
		return item, nil
	}
	tx.repo.mu.Lock()
	item, ok := tx.repo.state.items[id]
	tx.repo.mu.Unlock()
	if !ok {
		return sales.SaleItem{}, shared.ErrNotFound
	}
	return item, nil
}

func (tx *memoryTx) UpdateSaleItem(ctx context.Context, item sales.SaleItem) error {
	tx.writes++
	tx.items[item.ID] = item
	return nil
}

func (tx *memoryTx) InsertItemInventory(ctx context.Context, link sales.SaleItemInventory) (sales.SaleItemInventory, error) {
	tx.writes++
	link.ID = tx.allocID()
	tx.links = append(tx.links, link)
	return link, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, t inventory.Transaction) (inventory.Transaction, error) {
	if err := tx.fail("insert_transaction"); err != nil {
		return inventory.Transaction{}, err
	}
	tx.writes++
	t.ID = tx.allocID()
	tx.txs = append(tx.txs, t)
	return t, nil
}

type memoryIdempotency struct {
	keys    map[string]bool
	deleted []string
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type recordingViews struct {
	calls [][]cache.View
}

func (r *recordingViews) Invalidate(ctx context.Context, views ...cache.View) error {
	r.calls = append(r.calls, views)
	return nil
}

type recordingObserver struct {
	results []string
	units   int64
}

func (o *recordingObserver) ObserveFulfillment(result string, units int64) {
	o.results = append(o.results, result)
	o.units += units
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func qty(v int64) *int64 { return &v }

func TestClamp(t *testing.T) {
	cases := []struct {
		name      string
		requested *int64
		pending   int64
		available int64
		want      int64
	}{
		{"requested smallest", qty(3), 10, 8, 3},
		{"lot smallest", qty(100), 10, 4, 4},
		{"pending smallest", qty(100), 2, 40, 2},
		{"omitted uses pending", nil, 7, 40, 7},
		{"omitted clamps to lot", nil, 10, 6, 6},
		{"empty lot", nil, 10, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Clamp(tc.requested, tc.pending, tc.available))
		})
	}
}

func TestFulfillClampsAndLeavesLotUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 10)
	repo.seedLot(1, 1, 1, 4)
	svc := NewService(repo, discardLogger())

	res, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: qty(100), ActorID: 9})
	require.NoError(t, err)
	require.EqualValues(t, 4, res.FulfilledQuantity)
	require.EqualValues(t, 6, res.RemainingPending)
	require.True(t, res.Active)
	require.EqualValues(t, 4, repo.state.lots[1].Quantity)

	require.Len(t, repo.state.transactions, 1)
	tx := repo.state.transactions[0]
	require.Equal(t, inventory.TransactionTypeBackorderFulfillment, tx.Type)
	require.EqualValues(t, 4, tx.QuantityBefore)
	require.EqualValues(t, 4, tx.QuantityAfter)
	require.Equal(t, "backorder", tx.RefType)
	require.EqualValues(t, 1, tx.RefID)
	require.EqualValues(t, 9, tx.ActorID)

	require.Len(t, repo.state.links, 1)
	require.EqualValues(t, 4, repo.state.links[0].Quantity)
	require.EqualValues(t, 1, repo.state.links[0].BackorderID)
	require.EqualValues(t, 101, repo.state.links[0].SaleItemID)
}

func TestFulfillConservesPendingAndSaleItemCounters(t *testing.T) {
	for _, requested := range []*int64{nil, qty(1), qty(3), qty(5), qty(50)} {
		repo := newMemoryRepo()
		before := repo.seedBackorder(1, 5)
		repo.seedLot(1, 1, 1, 20)
		itemBefore := repo.state.items[before.SaleItemID]
		svc := NewService(repo, discardLogger())

		res, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: requested})
		require.NoError(t, err)

		after := repo.state.backorders[1]
		item := repo.state.items[before.SaleItemID]
		require.Equal(t, before.PendingQuantity, after.PendingQuantity+res.FulfilledQuantity)
		require.Equal(t, itemBefore.BackorderQuantity, item.BackorderQuantity+res.FulfilledQuantity)
		require.Equal(t, itemBefore.FulfilledQuantity+res.FulfilledQuantity, item.FulfilledQuantity)
		require.Equal(t, item.OrderedQuantity-item.FulfilledQuantity, item.BackorderQuantity)
		require.Equal(t, item.BackorderQuantity > 0, item.HasBackorder)
		require.Equal(t, after.PendingQuantity > 0, after.Active)
	}
}

func TestFulfillDeactivationBoundary(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 5)
	repo.seedBackorder(2, 5)
	repo.seedLot(1, 1, 1, 100)
	svc := NewService(repo, discardLogger())
	ctx := context.Background()

	res, err := svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: qty(4)})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.RemainingPending)
	require.True(t, repo.state.backorders[1].Active)

	res, err = svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 2, InventoryLotID: 1, RequestedQuantity: qty(5)})
	require.NoError(t, err)
	require.Zero(t, res.RemainingPending)
	require.False(t, res.Active)
	require.False(t, repo.state.backorders[2].Active)
	require.False(t, repo.state.items[102].HasBackorder)
}

func TestFulfillRejectsSecondCallWithoutWrites(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 3)
	repo.seedLot(1, 1, 1, 10)
	metrics := &recordingObserver{}
	svc := NewService(repo, discardLogger(), WithMetrics(metrics))
	ctx := context.Background()

	_, err := svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 1})
	require.NoError(t, err)
	snapshot := repo.state.clone()

	_, err = svc.FulfillBackorder(ctx, FulfillInput{BackorderID: 1, InventoryLotID: 1})
	require.ErrorIs(t, err, shared.ErrAlreadyFulfilled)
	require.Equal(t, snapshot, repo.state)
	require.Equal(t, []string{observability.ResultSuccess, observability.ResultRejected}, metrics.results)
	require.EqualValues(t, 3, metrics.units)
}

func TestFulfillMismatchCausesNoWrites(t *testing.T) {
	cases := []struct {
		name string
		lot  inventory.Lot
	}{
		{"other product", inventory.Lot{ID: 1, ProductID: 2, LocationID: 1, Quantity: 10, Active: true}},
		{"other location", inventory.Lot{ID: 1, ProductID: 1, LocationID: 3, Quantity: 10, Active: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepo()
			repo.seedBackorder(1, 5)
			repo.state.lots[1] = tc.lot
			snapshot := repo.state.clone()
			svc := NewService(repo, discardLogger())

			_, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1})
			require.ErrorIs(t, err, shared.ErrInconsistentStockReference)
			require.Equal(t, snapshot, repo.state)
			require.Zero(t, repo.state.writes)
		})
	}
}

func TestFulfillPreconditionErrors(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 5)
	repo.state.backorders[2] = backorders.Backorder{ID: 2, SaleItemID: 101, ProductID: 1, LocationID: 1}
	repo.seedLot(1, 1, 1, 10)
	repo.state.lots[2] = inventory.Lot{ID: 2, ProductID: 1, LocationID: 1, Quantity: 0, Active: true}
	repo.state.lots[3] = inventory.Lot{ID: 3, ProductID: 1, LocationID: 1, Quantity: 8, Active: false}
	svc := NewService(repo, discardLogger())

	cases := []struct {
		name string
		in   FulfillInput
		want error
	}{
		{"missing backorder", FulfillInput{BackorderID: 9, InventoryLotID: 1}, shared.ErrNotFound},
		{"inactive backorder", FulfillInput{BackorderID: 2, InventoryLotID: 1}, shared.ErrAlreadyFulfilled},
		{"missing lot", FulfillInput{BackorderID: 1, InventoryLotID: 9}, shared.ErrNotFound},
		{"empty lot", FulfillInput{BackorderID: 1, InventoryLotID: 2}, shared.ErrStockUnavailable},
		{"inactive lot", FulfillInput{BackorderID: 1, InventoryLotID: 3}, shared.ErrStockUnavailable},
		{"zero request", FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: qty(0)}, shared.ErrValidation},
		{"negative request", FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: qty(-2)}, shared.ErrValidation},
		{"missing ids", FulfillInput{}, shared.ErrValidation},
		{"bad idempotency key", FulfillInput{BackorderID: 1, InventoryLotID: 1, IdempotencyKey: "nope"}, shared.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.FulfillBackorder(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Zero(t, repo.state.writes)
}

func TestFulfillLocksBackorderBeforeLotBeforeSaleItem(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 5)
	repo.seedLot(1, 1, 1, 10)
	svc := NewService(repo, discardLogger())

	_, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"backorder", "lot", "sale_item"}, repo.lockLog)
}

func TestFulfillRollsBackOnStorageFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 5)
	repo.seedLot(1, 1, 1, 10)
	repo.failOn = "insert_transaction"
	snapshot := repo.state.clone()
	idem := &memoryIdempotency{}
	metrics := &recordingObserver{}
	views := &recordingViews{}
	svc := NewService(repo, discardLogger(), WithIdempotency(idem), WithMetrics(metrics), WithViews(views))

	_, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1,
		IdempotencyKey: "4f1d2c5e-8a6b-4c1a-9d3e-2b7f6a5c4d3e"})
	require.Error(t, err)
	require.False(t, shared.IsDomainError(err))
	require.Equal(t, snapshot, repo.state)
	require.Len(t, idem.deleted, 1)
	require.Empty(t, idem.keys)
	require.Equal(t, []string{observability.ResultError}, metrics.results)
	require.Empty(t, views.calls)
}

func TestFulfillIdempotencyKeyRejectsReplay(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 10)
	repo.seedLot(1, 1, 1, 10)
	idem := &memoryIdempotency{}
	svc := NewService(repo, discardLogger(), WithIdempotency(idem))
	in := FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: qty(2), IdempotencyKey: "4f1d2c5e-8a6b-4c1a-9d3e-2b7f6a5c4d3e"}

	_, err := svc.FulfillBackorder(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.FulfillBackorder(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.EqualValues(t, 8, repo.state.backorders[1].PendingQuantity)
	require.Contains(t, idem.keys, "backorder:1:4f1d2c5e-8a6b-4c1a-9d3e-2b7f6a5c4d3e")
}

func TestFulfillNotifiesViewsAndAudit(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 2)
	repo.seedLot(1, 1, 1, 10)
	views := &recordingViews{}
	audit := &recordingAudit{}
	svc := NewService(repo, discardLogger(), WithViews(views), WithAudit(audit))

	_, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1, ActorID: 4})
	require.NoError(t, err)
	require.Equal(t, [][]cache.View{{cache.ViewInventory, cache.ViewSales, cache.ViewBackorders}}, views.calls)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "backorders.fulfill", audit.logs[0].Action)
	require.EqualValues(t, 4, audit.logs[0].ActorID)
	require.Equal(t, "1", audit.logs[0].EntityID)
}

// Each fulfillment blocks on the backorder row lock and re-reads the committed
// row, so losers see the winner's pending quantity.
func TestConcurrentFulfillmentsDoNotOverAllocate(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedBackorder(1, 5)
	repo.seedLot(1, 1, 1, 5)
	svc := NewService(repo, discardLogger())

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		fulfilled int64
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.FulfillBackorder(context.Background(), FulfillInput{BackorderID: 1, InventoryLotID: 1, RequestedQuantity: qty(2)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, shared.ErrAlreadyFulfilled) {
					rejected++
				}
				return
			}
			fulfilled += res.FulfilledQuantity
		}()
	}
	wg.Wait()

	require.EqualValues(t, 5, fulfilled)
	require.Equal(t, workers-3, rejected)
	require.Zero(t, repo.state.backorders[1].PendingQuantity)
	require.Zero(t, repo.state.items[101].BackorderQuantity)
}

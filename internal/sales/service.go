package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	GetSaleItem(ctx context.Context, id int64) (SaleItem, error)
	ListItemLots(ctx context.Context, saleItemID int64) ([]SaleItemInventory, error)
}

// AllocationObserver receives allocated unit counts.
type AllocationObserver interface {
	ObserveAllocation(units int64)
}

// Service creates sales and reads them back.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditRecorder
	views   cache.Invalidator
	metrics AllocationObserver
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, views cache.Invalidator, metrics AllocationObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, views: views, metrics: metrics, logger: logger, now: time.Now}
}

// CreateSale numbers and inserts a sale, allocates each line from the oldest
// lots at the sale's location and opens a backorder for any shortfall.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (CreateSaleResult, error) {
	if input.CustomerID <= 0 || input.LocationID <= 0 {
		return CreateSaleResult{}, fmt.Errorf("%w: customer and location required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return CreateSaleResult{}, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	for i, line := range input.Items {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return CreateSaleResult{}, fmt.Errorf("%w: item %d needs a product and a positive quantity", shared.ErrValidation, i)
		}
	}

	// Lines are processed by product so concurrent sales lock lots in the same order.
	order := make([]int, len(input.Items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return input.Items[order[a]].ProductID < input.Items[order[b]].ProductID
	})

	var result CreateSaleResult
	var allocated int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		allocated = 0
		number, err := tx.NextNumber(ctx, sequence.KindInvoice, s.now())
		if err != nil {
			return err
		}
		sale, err := tx.InsertSale(ctx, Sale{
			InvoiceNumber: number,
			CustomerID:    input.CustomerID,
			LocationID:    input.LocationID,
			CreatedBy:     input.ActorID,
		})
		if err != nil {
			return err
		}
		items := make([]SaleItem, len(input.Items))
		var backorders []CreatedBackorder
		for _, idx := range order {
			line := input.Items[idx]
			item, err := tx.InsertItem(ctx, SaleItem{SaleID: sale.ID, ProductID: line.ProductID, OrderedQuantity: line.Quantity})
			if err != nil {
				return err
			}
			item, units, err := s.allocateLine(ctx, tx, sale, item)
			if err != nil {
				return err
			}
			allocated += units
			if item.BackorderQuantity > 0 {
				id, err := tx.InsertBackorder(ctx, item, sale.LocationID, item.BackorderQuantity)
				if err != nil {
					return err
				}
				backorders = append(backorders, CreatedBackorder{ID: id, SaleItemID: item.ID, ProductID: item.ProductID, Pending: item.BackorderQuantity})
			}
			items[idx] = item
		}
		sale.Items = items
		if backorders == nil {
			backorders = []CreatedBackorder{}
		}
		result = CreateSaleResult{Sale: sale, Backorders: backorders}
		return nil
	})
	if err != nil {
		return CreateSaleResult{}, shared.WrapDuplicateDocument(err)
	}

	if s.metrics != nil {
		s.metrics.ObserveAllocation(allocated)
	}
	if s.views != nil {
		if err := s.views.Invalidate(ctx, cache.ViewSales, cache.ViewInventory, cache.ViewBackorders); err != nil {
			s.logger.Warn("invalidate views after sale", slog.Int64("sale_id", result.Sale.ID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "sales.create",
			Entity:   "sale",
			EntityID: strconv.FormatInt(result.Sale.ID, 10),
			Meta: map[string]any{
				"invoice_number": result.Sale.InvoiceNumber,
				"backorders":     len(result.Backorders),
			},
		})
		if err != nil {
			s.logger.Warn("audit sale", slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *Service) allocateLine(ctx context.Context, tx TxRepository, sale Sale, item SaleItem) (SaleItem, int64, error) {
	lots, err := tx.LockAllocatableLots(ctx, item.ProductID, sale.LocationID)
	if err != nil {
		return item, 0, err
	}
	allocs, shortfall := AllocateFIFO(lots, item.OrderedQuantity)
	var units int64
	for _, alloc := range allocs {
		lot := alloc.Lot
		before := lot.Quantity
		lot.Quantity -= alloc.Quantity
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return item, 0, err
		}
		_, err := tx.InsertTransaction(ctx, inventory.Transaction{
			LotID:          lot.ID,
			ProductID:      lot.ProductID,
			LocationID:     lot.LocationID,
			ActorID:        sale.CreatedBy,
			Type:           inventory.TransactionTypeSale,
			QuantityBefore: before,
			QuantityAfter:  lot.Quantity,
			Note:           fmt.Sprintf("Allocated %d units to %s", alloc.Quantity, sale.InvoiceNumber),
			DocumentNumber: sale.InvoiceNumber,
			RefType:        "sale_item",
			RefID:          item.ID,
		})
		if err != nil {
			return item, 0, err
		}
		if _, err := tx.InsertItemInventory(ctx, SaleItemInventory{SaleItemID: item.ID, LotID: lot.ID, Quantity: alloc.Quantity}); err != nil {
			return item, 0, err
		}
		units += alloc.Quantity
	}
	item.FulfilledQuantity = units
	item.BackorderQuantity = shortfall
	item.HasBackorder = shortfall > 0
	if err := tx.UpdateItemCounters(ctx, item); err != nil {
		return item, 0, err
	}
	return item, units, nil
}

// GetSale returns a sale with its items.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	if id <= 0 {
		return Sale{}, fmt.Errorf("%w: sale id required", shared.ErrValidation)
	}
	return s.repo.GetSale(ctx, id)
}

// GetSaleItem returns one sale line.
func (s *Service) GetSaleItem(ctx context.Context, id int64) (SaleItem, error) {
	if id <= 0 {
		return SaleItem{}, fmt.Errorf("%w: sale item id required", shared.ErrValidation)
	}
	return s.repo.GetSaleItem(ctx, id)
}

// ListSaleItemLots returns which lots satisfied a sale line.
func (s *Service) ListSaleItemLots(ctx context.Context, saleItemID int64) ([]SaleItemInventory, error) {
	if _, err := s.GetSaleItem(ctx, saleItemID); err != nil {
		return nil, err
	}
	return s.repo.ListItemLots(ctx, saleItemID)
}

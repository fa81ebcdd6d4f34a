package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (Lot, error)
	ListLots(ctx context.Context, filter LotFilter) (LotList, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	StockByLocation(ctx context.Context, productID int64) ([]LocationStock, error)
}

// ViewCache is the read side of the view cache.
type ViewCache interface {
	FetchJSON(ctx context.Context, view cache.View, params any, dest any, loader func(context.Context) (any, error)) error
	cache.Invalidator
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	views  ViewCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, views ViewCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, views: views, logger: logger, now: time.Now}
}

// GetLot returns a single lot.
func (s *Service) GetLot(ctx context.Context, id int64) (Lot, error) {
	if id <= 0 {
		return Lot{}, fmt.Errorf("%w: lot id required", shared.ErrValidation)
	}
	return s.repo.GetLot(ctx, id)
}

// ListLots lists lots through the inventory view cache.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) (LotList, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	if s.views == nil {
		return s.repo.ListLots(ctx, filter)
	}
	var out LotList
	err := s.views.FetchJSON(ctx, cache.ViewInventory, struct {
		Kind string
		LotFilter
	}{"lots", filter}, &out, func(ctx context.Context) (any, error) {
		return s.repo.ListLots(ctx, filter)
	})
	return out, err
}

// ListTransactions lists the audit trail, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.LotID == 0 && filter.ProductID == 0 {
		return nil, fmt.Errorf("%w: lot or product required", shared.ErrValidation)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", shared.ErrValidation, filter.Type)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.repo.ListTransactions(ctx, filter)
}

// GetProductStock recomputes the on-hand aggregate from active lots.
func (s *Service) GetProductStock(ctx context.Context, productID int64) (ProductStock, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return ProductStock{}, err
	}
	locations, err := s.repo.StockByLocation(ctx, productID)
	if err != nil {
		return ProductStock{}, err
	}
	return NewProductStock(product, locations), nil
}

// ReceiveStock books inbound stock into a lot, creating it when needed.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiptInput) (Movement, error) {
	if input.ProductID <= 0 || input.LocationID <= 0 {
		return Movement{}, fmt.Errorf("%w: product and location required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Movement{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var result Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, sequence.KindReceipt, s.now())
		if err != nil {
			return err
		}
		lotNumber := input.LotNumber
		if lotNumber == "" {
			lotNumber = number
		}
		lot, err := tx.EnsureLotForUpdate(ctx, input.ProductID, input.LocationID, lotNumber)
		if err != nil {
			return err
		}
		before := lot.Quantity
		lot.Quantity += input.Quantity
		lot.Active = true
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		note := input.Note
		if note == "" {
			note = fmt.Sprintf("Received %d units", input.Quantity)
		}
		txn, err := tx.InsertTransaction(ctx, Transaction{
			LotID:          lot.ID,
			ProductID:      lot.ProductID,
			LocationID:     lot.LocationID,
			ActorID:        input.ActorID,
			Type:           TransactionTypePurchaseReceipt,
			QuantityBefore: before,
			QuantityAfter:  lot.Quantity,
			Note:           note,
			DocumentNumber: number,
		})
		if err != nil {
			return err
		}
		result = Movement{DocumentNumber: number, Lot: lot, Transaction: txn}
		return nil
	})
	if err != nil {
		return Movement{}, shared.WrapDuplicateDocument(err)
	}
	s.afterMovement(ctx, "inventory.receive", input.ActorID, result)
	return result, nil
}

// DispatchStock removes stock from a lot when goods physically leave.
func (s *Service) DispatchStock(ctx context.Context, input DispatchInput) (Movement, error) {
	if input.LotID <= 0 {
		return Movement{}, fmt.Errorf("%w: lot id required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Movement{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var result Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, input.LotID)
		if err != nil {
			return err
		}
		if !lot.Active || lot.Quantity < input.Quantity {
			return fmt.Errorf("lot %d has %d, dispatch needs %d: %w", lot.ID, lot.Quantity, input.Quantity, shared.ErrStockUnavailable)
		}
		number, err := tx.NextNumber(ctx, sequence.KindWaybill, s.now())
		if err != nil {
			return err
		}
		before := lot.Quantity
		lot.Quantity -= input.Quantity
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		note := input.Note
		if note == "" {
			note = fmt.Sprintf("Dispatched %d units", input.Quantity)
		}
		txn, err := tx.InsertTransaction(ctx, Transaction{
			LotID:          lot.ID,
			ProductID:      lot.ProductID,
			LocationID:     lot.LocationID,
			ActorID:        input.ActorID,
			Type:           TransactionTypeWaybillDispatch,
			QuantityBefore: before,
			QuantityAfter:  lot.Quantity,
			Note:           note,
			DocumentNumber: number,
			RefType:        input.RefType,
			RefID:          input.RefID,
		})
		if err != nil {
			return err
		}
		result = Movement{DocumentNumber: number, Lot: lot, Transaction: txn}
		return nil
	})
	if err != nil {
		return Movement{}, shared.WrapDuplicateDocument(err)
	}
	s.afterMovement(ctx, "inventory.dispatch", input.ActorID, result)
	return result, nil
}

func (s *Service) afterMovement(ctx context.Context, action string, actorID int64, m Movement) {
	if s.views != nil {
		if err := s.views.Invalidate(ctx, cache.ViewInventory); err != nil {
			s.logger.Warn("invalidate inventory view", slog.Any("error", err))
		}
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_lot",
		EntityID: strconv.FormatInt(m.Lot.ID, 10),
		Meta: map[string]any{
			"document_number": m.DocumentNumber,
			"quantity_before": m.Transaction.QuantityBefore,
			"quantity_after":  m.Transaction.QuantityAfter,
		},
	})
	if err != nil {
		s.logger.Warn("audit inventory movement", slog.String("action", action), slog.Any("error", err))
	}
}

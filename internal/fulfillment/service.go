package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const idempotencyModule = "fulfillment"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// IdempotencyGuard records processed request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Observer receives fulfillment outcomes.
type Observer interface {
	ObserveFulfillment(result string, units int64)
}

// Service applies inventory lots to open backorders.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyGuard
	views       cache.Invalidator
	audit       shared.AuditRecorder
	metrics     Observer
	logger      *slog.Logger
}

// Option customises Service.
type Option func(*Service)

// WithIdempotency enables Idempotency-Key handling.
func WithIdempotency(guard IdempotencyGuard) Option {
	return func(s *Service) { s.idempotency = guard }
}

// WithViews sets the view invalidator notified after commit.
func WithViews(views cache.Invalidator) Option {
	return func(s *Service) { s.views = views }
}

// WithAudit sets the audit recorder.
func WithAudit(audit shared.AuditRecorder) Option {
	return func(s *Service) { s.audit = audit }
}

// WithMetrics sets the outcome observer.
func WithMetrics(metrics Observer) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FulfillBackorder designates stock from one lot for a backorder. The lot's
// on-hand quantity is left unchanged; it is withdrawn later by a dispatch.
func (s *Service) FulfillBackorder(ctx context.Context, in FulfillInput) (Result, error) {
	if in.BackorderID <= 0 || in.InventoryLotID <= 0 {
		return Result{}, fmt.Errorf("%w: backorder and inventory lot are required", shared.ErrValidation)
	}
	if in.RequestedQuantity != nil && *in.RequestedQuantity <= 0 {
		return Result{}, fmt.Errorf("%w: requested quantity must be positive", shared.ErrValidation)
	}
	key, err := shared.ParseIdempotencyKey(in.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}
	if key != "" && s.idempotency != nil {
		key = "backorder:" + strconv.FormatInt(in.BackorderID, 10) + ":" + key
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			s.observe(err, 0)
			return Result{}, err
		}
	} else {
		key = ""
	}

	var result Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.apply(ctx, tx, in)
		return err
	})
	if err != nil {
		if key != "" {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		s.observe(err, 0)
		return Result{}, err
	}

	s.observe(nil, result.FulfilledQuantity)
	s.afterCommit(ctx, in, result)
	return result, nil
}

func (s *Service) apply(ctx context.Context, tx TxRepository, in FulfillInput) (Result, error) {
	b, err := tx.GetBackorderForUpdate(ctx, in.BackorderID)
	if err != nil {
		return Result{}, err
	}
	if !b.Active || b.PendingQuantity <= 0 {
		return Result{}, fmt.Errorf("backorder %d: %w", b.ID, shared.ErrAlreadyFulfilled)
	}
	lot, err := tx.GetLotForUpdate(ctx, in.InventoryLotID)
	if err != nil {
		return Result{}, err
	}
	if lot.ProductID != b.ProductID || lot.LocationID != b.LocationID {
		return Result{}, fmt.Errorf("lot %d for backorder %d: %w", lot.ID, b.ID, shared.ErrInconsistentStockReference)
	}
	if !lot.Available() {
		return Result{}, fmt.Errorf("lot %d: %w", lot.ID, shared.ErrStockUnavailable)
	}
	qty := Clamp(in.RequestedQuantity, b.PendingQuantity, lot.Quantity)
	if qty <= 0 {
		return Result{}, fmt.Errorf("backorder %d: %w", b.ID, shared.ErrNothingToFulfill)
	}

	item, err := tx.GetSaleItemForUpdate(ctx, b.SaleItemID)
	if err != nil {
		return Result{}, err
	}

	b.Reduce(qty)
	if err := tx.UpdateBackorder(ctx, b); err != nil {
		return Result{}, err
	}
	item.ApplyFulfillment(qty)
	if err := tx.UpdateSaleItem(ctx, item); err != nil {
		return Result{}, err
	}
	link, err := tx.InsertItemInventory(ctx, sales.SaleItemInventory{
		SaleItemID:  item.ID,
		LotID:       lot.ID,
		LotNumber:   lot.LotNumber,
		BackorderID: b.ID,
		Quantity:    qty,
	})
	if err != nil {
		return Result{}, err
	}
	movement, err := tx.InsertTransaction(ctx, inventory.Transaction{
		LotID:          lot.ID,
		ProductID:      lot.ProductID,
		LocationID:     lot.LocationID,
		ActorID:        in.ActorID,
		Type:           inventory.TransactionTypeBackorderFulfillment,
		QuantityBefore: lot.Quantity,
		QuantityAfter:  lot.Quantity,
		Note:           fmt.Sprintf("Allocated %d to backorder %d; lot stock is withdrawn on dispatch", qty, b.ID),
		RefType:        "backorder",
		RefID:          b.ID,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		BackorderID:       b.ID,
		FulfilledQuantity: qty,
		RemainingPending:  b.PendingQuantity,
		Active:            b.Active,
		SaleItem:          item,
		Link:              link,
		Transaction:       movement,
	}, nil
}

func (s *Service) afterCommit(ctx context.Context, in FulfillInput, res Result) {
	if s.views != nil {
		if err := s.views.Invalidate(ctx, cache.ViewInventory, cache.ViewSales, cache.ViewBackorders); err != nil {
			s.logger.Warn("invalidate views after fulfillment", slog.Int64("backorder_id", res.BackorderID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "backorders.fulfill",
			Entity:   "backorder",
			EntityID: strconv.FormatInt(res.BackorderID, 10),
			Meta: map[string]any{
				"inventory_lot_id":   in.InventoryLotID,
				"fulfilled_quantity": res.FulfilledQuantity,
				"remaining_pending":  res.RemainingPending,
			},
		})
		if err != nil {
			s.logger.Warn("audit fulfillment", slog.Any("error", err))
		}
	}
	s.logger.Info("backorder fulfilled",
		slog.Int64("backorder_id", res.BackorderID),
		slog.Int64("inventory_lot_id", in.InventoryLotID),
		slog.Int64("quantity", res.FulfilledQuantity),
		slog.Int64("remaining", res.RemainingPending))
}

func (s *Service) observe(err error, units int64) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveFulfillment(observability.ResultSuccess, units)
	case shared.IsDomainError(err):
		s.metrics.ObserveFulfillment(observability.ResultRejected, 0)
	default:
		s.metrics.ObserveFulfillment(observability.ResultError, 0)
	}
}

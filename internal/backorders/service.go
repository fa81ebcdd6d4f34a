package backorders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, f ListFilters) ([]ListItem, int, error)
	Get(ctx context.Context, id int64) (*BackorderDetail, error)
}

// ViewCache caches listings and accepts invalidations.
type ViewCache interface {
	FetchJSON(ctx context.Context, view cache.View, params any, dest any, loader func(context.Context) (any, error)) error
	cache.Invalidator
}

// Service is the backorder registry.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	views  ViewCache
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, views ViewCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, views: views, logger: logger}
}

// List returns active backorders, oldest first.
func (s *Service) List(ctx context.Context, f ListFilters) (ListResult, error) {
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	if f.MinPending != nil && f.MaxPending != nil && *f.MinPending > *f.MaxPending {
		return ListResult{}, fmt.Errorf("%w: min_pending exceeds max_pending", shared.ErrValidation)
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return ListResult{}, fmt.Errorf("%w: created_to is before created_from", shared.ErrValidation)
	}
	load := func(ctx context.Context) (any, error) {
		items, total, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, err
		}
		return ListResult{Items: items, Total: total, Pagination: shared.NewPagination(f.Page, f.PerPage, total)}, nil
	}
	if s.views == nil {
		res, err := load(ctx)
		if err != nil {
			return ListResult{}, err
		}
		return res.(ListResult), nil
	}
	var out ListResult
	if err := s.views.FetchJSON(ctx, cache.ViewBackorders, f, &out, load); err != nil {
		return ListResult{}, err
	}
	return out, nil
}

// Get returns a backorder with its context.
func (s *Service) Get(ctx context.Context, id int64) (*BackorderDetail, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: backorder id required", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// SoftDelete cancels the remaining pending quantity of a backorder. The sale
// item's backorder counter is reduced by the same amount in the same transaction.
func (s *Service) SoftDelete(ctx context.Context, id, actorID int64) (Backorder, error) {
	if id <= 0 {
		return Backorder{}, fmt.Errorf("%w: backorder id required", shared.ErrValidation)
	}
	var (
		result    Backorder
		cancelled int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.Active || b.PendingQuantity <= 0 {
			return fmt.Errorf("backorder %d: %w", id, shared.ErrAlreadyFulfilled)
		}
		item, err := tx.GetSaleItemForUpdate(ctx, b.SaleItemID)
		if err != nil {
			return err
		}
		cancelled = b.Cancel()
		if err := tx.Update(ctx, b); err != nil {
			return err
		}
		item.CancelBackorder(cancelled)
		if err := tx.UpdateSaleItem(ctx, item); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return Backorder{}, err
	}

	if s.views != nil {
		if err := s.views.Invalidate(ctx, cache.ViewBackorders, cache.ViewSales); err != nil {
			s.logger.Warn("invalidate views after backorder cancel", slog.Int64("backorder_id", id), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "backorders.soft_delete",
			Entity:   "backorder",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"cancelled_quantity": cancelled, "sale_item_id": result.SaleItemID},
		})
		if err != nil {
			s.logger.Warn("audit backorder cancel", slog.Any("error", err))
		}
	}
	return result, nil
}

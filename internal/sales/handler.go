package sales

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ServicePort is the part of Service used by the handler.
type ServicePort interface {
	CreateSale(ctx context.Context, input CreateSaleInput) (CreateSaleResult, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSaleItemLots(ctx context.Context, saleItemID int64) ([]SaleItemInventory, error)
}

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/items/{id}/lots", h.handleItemLots)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CreateSaleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actorID
	result, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.fail(w, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleItemLots(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	links, err := h.service.ListSaleItemLots(r.Context(), id)
	if err != nil {
		h.fail(w, "list sale item lots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": links})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.IsDomainError(err) {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	} else {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

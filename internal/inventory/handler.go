package inventory

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
	GetLot(ctx context.Context, id int64) (Lot, error)
	ListLots(ctx context.Context, filter LotFilter) (LotList, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetProductStock(ctx context.Context, productID int64) (ProductStock, error)
	ReceiveStock(ctx context.Context, input ReceiptInput) (Movement, error)
	DispatchStock(ctx context.Context, input DispatchInput) (Movement, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots", h.handleListLots)
	r.Get("/lots/{id}", h.handleGetLot)
	r.Get("/transactions", h.handleListTransactions)
	r.Get("/products/{id}/stock", h.handleProductStock)
	r.Post("/receipts", h.handleReceipt)
	r.Post("/dispatches", h.handleDispatch)
}

type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	var filter LotFilter
	var err error
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.LocationID, err = httpx.QueryInt64(r, "location_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := httpx.QueryInt64(r, "page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perPage, err := httpx.QueryInt64(r, "per_page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter.ActiveOnly = q.Get("active") != "false"
	filter.PositiveOnly = q.Get("in_stock") == "true"
	filter.Page, filter.PerPage = int(page), int(perPage)

	list, err := h.service.ListLots(r.Context(), filter)
	if err != nil {
		h.fail(w, "list lots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: list.Items, Total: list.Total})
}

func (h *Handler) handleGetLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.fail(w, "get lot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter TransactionFilter
	var err error
	if filter.LotID, err = httpx.QueryInt64(r, "lot_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit = int(limit)
	filter.Type = TransactionType(r.URL.Query().Get("type"))

	txs, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, "list inventory transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: txs, Total: len(txs)})
}

func (h *Handler) handleProductStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.GetProductStock(r.Context(), id)
	if err != nil {
		h.fail(w, "product stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ReceiptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actorID
	movement, err := h.service.ReceiveStock(r.Context(), input)
	if err != nil {
		h.fail(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input DispatchInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID = actorID
	movement, err := h.service.DispatchStock(r.Context(), input)
	if err != nil {
		h.fail(w, "dispatch stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.IsDomainError(err) {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	} else {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

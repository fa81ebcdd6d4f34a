package backorders

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ServicePort is the part of Service used by the handler.
type ServicePort interface {
	List(ctx context.Context, f ListFilters) (ListResult, error)
	Get(ctx context.Context, id int64) (*BackorderDetail, error)
	SoftDelete(ctx context.Context, id, actorID int64) (Backorder, error)
}

// Handler wires HTTP endpoints for the backorder registry.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers backorder routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list backorders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get backorder", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.SoftDelete(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, "delete backorder", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func parseFilters(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	f := ListFilters{Search: q.Get("search")}
	ints := []struct {
		name string
		dst  *int64
	}{
		{"product_id", &f.ProductID},
		{"sale_id", &f.SaleID},
		{"customer_id", &f.CustomerID},
	}
	for _, p := range ints {
		v, err := httpx.QueryInt64(r, p.name)
		if err != nil {
			return ListFilters{}, err
		}
		*p.dst = v
	}
	for name, dst := range map[string]**int64{"min_pending": &f.MinPending, "max_pending": &f.MaxPending} {
		if q.Get(name) == "" {
			continue
		}
		v, err := httpx.QueryInt64(r, name)
		if err != nil {
			return ListFilters{}, err
		}
		*dst = &v
	}
	if raw := q.Get("created_from"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: created_from must be YYYY-MM-DD", shared.ErrValidation)
		}
		f.CreatedFrom = &t
	}
	if raw := q.Get("created_to"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: created_to must be YYYY-MM-DD", shared.ErrValidation)
		}
		// Exclusive upper bound at the start of the next day.
		end := t.AddDate(0, 0, 1)
		f.CreatedTo = &end
	}
	page, err := httpx.QueryInt64(r, "page")
	if err != nil {
		return ListFilters{}, err
	}
	perPage, err := httpx.QueryInt64(r, "per_page")
	if err != nil {
		return ListFilters{}, err
	}
	f.Page, f.PerPage = int(page), int(perPage)
	return f, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.IsDomainError(err) {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	} else {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryRepo struct {
	shipments map[int64]Shipment
	numbers   map[string]bool
	counter   int64
	nextID    int64
	reuse     bool
}

type memoryTx struct {
	repo    *memoryRepo
	pending []Shipment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{shipments: map[int64]Shipment{}, numbers: map[string]bool{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	counter, nextID := r.counter, r.nextID
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		r.counter, r.nextID = counter, nextID
		return err
	}
	for _, s := range tx.pending {
		r.shipments[s.ID] = s
		r.numbers[s.ShipmentNumber] = true
	}
	return nil
}

func (r *memoryRepo) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	s, ok := r.shipments[id]
	if !ok {
		return Shipment{}, shared.ErrNotFound
	}
	return s, nil
}

func (tx *memoryTx) NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error) {
	if !tx.repo.reuse {
		tx.repo.counter++
	}
	return sequence.Format(kind, at, tx.repo.counter), nil
}

func (tx *memoryTx) InsertShipment(ctx context.Context, s Shipment) (Shipment, error) {
	if tx.repo.numbers[s.ShipmentNumber] {
		return Shipment{}, fmt.Errorf("insert shipment: %w", shared.WrapDuplicateDocument(&pgconn.PgError{Code: "23505"}))
	}
	tx.repo.nextID++
	s.ID = tx.repo.nextID
	s.CreatedAt = time.Now()
	tx.pending = append(tx.pending, s)
	return s, nil
}

func (tx *memoryTx) InsertParcel(ctx context.Context, shipmentID int64, p ParcelQuote) (ParcelQuote, error) {
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	for i := range tx.pending {
		if tx.pending[i].ID == shipmentID {
			tx.pending[i].Parcels = append(tx.pending[i].Parcels, p)
		}
	}
	return p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, NewCalculator(5000, d("0.5")), d("2.00"), nil, discardLogger())
	svc.now = func() time.Time { return time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateShipmentNumbersAndPersists(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.CreateShipment(ctx, CreateShipmentInput{Carrier: "JNE", SaleID: 3, ActorID: 2,
		Parcels: []Parcel{parcel("50", "40", "30", "4")}})
	require.NoError(t, err)
	require.Equal(t, "SHP-2024/05/0001", first.ShipmentNumber)
	require.Len(t, first.Parcels, 1)
	requireDecimal(t, "24", first.TotalCost)
	require.EqualValues(t, 3, *first.SaleID)
	require.EqualValues(t, 2, *first.CreatedBy)

	second, err := svc.CreateShipment(ctx, CreateShipmentInput{Carrier: "JNE", Parcels: []Parcel{parcel("10", "10", "10", "1")}})
	require.NoError(t, err)
	require.Equal(t, "SHP-2024/05/0002", second.ShipmentNumber)
	require.Nil(t, second.SaleID)

	got, err := svc.GetShipment(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ShipmentNumber, got.ShipmentNumber)
}

func TestCreateShipmentDuplicateNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	input := CreateShipmentInput{Carrier: "JNE", Parcels: []Parcel{parcel("10", "10", "10", "1")}}

	_, err := svc.CreateShipment(ctx, input)
	require.NoError(t, err)
	repo.reuse = true
	_, err = svc.CreateShipment(ctx, input)
	require.ErrorIs(t, err, shared.ErrDuplicateDocumentNumber)
	require.Len(t, repo.shipments, 1)
}

func TestQuoteUsesDefaultRate(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	q, err := svc.Quote(context.Background(), QuoteInput{Parcels: []Parcel{parcel("10", "10", "10", "2.2")}})
	require.NoError(t, err)
	requireDecimal(t, "2", q.RatePerKG)
	requireDecimal(t, "5", q.TotalCost)
}

func TestHandlerQuoteAndCreate(t *testing.T) {
	repo := newMemoryRepo()
	h := NewHandler(discardLogger(), newTestService(repo))
	r := chi.NewRouter()
	r.Route("/shipping", h.MountQuoteRoutes)
	r.Route("/shipments", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shipping/quote",
		strings.NewReader(`{"rate_per_kg":"1.25","parcels":[{"length_cm":50,"width_cm":40,"height_cm":30,"gross_kg":"4"}]}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	var q Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	requireDecimal(t, "15", q.TotalCost)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shipping/quote", strings.NewReader(`{"parcels":[]}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := `{"carrier":"SiCepat","parcels":[{"length_cm":10,"width_cm":10,"height_cm":10,"gross_kg":1}]}`
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/shipments/", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code, "actor required")

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/shipments/", strings.NewReader(body))
	r.ServeHTTP(rr, req.WithContext(shared.ContextWithActor(req.Context(), 5)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), "SHP-2024/05/0001")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/shipments/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/shipments/99", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

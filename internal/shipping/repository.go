package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error)
	InsertShipment(ctx context.Context, s Shipment) (Shipment, error)
	InsertParcel(ctx context.Context, shipmentID int64, p ParcelQuote) (ParcelQuote, error)
}

// Repository persists shipments in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	numbers *sequence.Generator
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, numbers *sequence.Generator) *Repository {
	return &Repository{pool: pool, numbers: numbers}
}

type txRepo struct {
	tx      pgx.Tx
	numbers *sequence.Generator
}

// WithTx executes the callback inside a read-committed locking transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, numbers: r.numbers})
	})
}

func (r *txRepo) NextNumber(ctx context.Context, kind sequence.Kind, at time.Time) (string, error) {
	return r.numbers.Next(ctx, r.tx, kind, at)
}

func (r *txRepo) InsertShipment(ctx context.Context, s Shipment) (Shipment, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO shipments (shipment_number, sale_id, carrier, rate_per_kg, total_chargeable_kg, total_cost, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		s.ShipmentNumber, s.SaleID, s.Carrier, s.RatePerKG, s.TotalChargeableKG, s.TotalCost, s.CreatedBy,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Shipment{}, fmt.Errorf("%w: sale does not exist", shared.ErrValidation)
		}
		return Shipment{}, fmt.Errorf("insert shipment: %w", shared.WrapDuplicateDocument(err))
	}
	return s, nil
}

func (r *txRepo) InsertParcel(ctx context.Context, shipmentID int64, p ParcelQuote) (ParcelQuote, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO shipment_parcels (shipment_id, length_cm, width_cm, height_cm, gross_kg, volumetric_kg, chargeable_kg, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		shipmentID, p.LengthCM, p.WidthCM, p.HeightCM, p.GrossKG, p.VolumetricKG, p.ChargeableKG, p.Cost,
	).Scan(&p.ID)
	if err != nil {
		return ParcelQuote{}, fmt.Errorf("insert shipment parcel: %w", err)
	}
	return p, nil
}

// GetShipment returns a shipment with its parcels.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	var s Shipment
	err := pgxscan.Get(ctx, r.pool, &s, `
		SELECT id, shipment_number, sale_id, carrier, rate_per_kg, total_chargeable_kg, total_cost, created_by, created_at
		FROM shipments WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Shipment{}, fmt.Errorf("shipment %d: %w", id, shared.ErrNotFound)
		}
		return Shipment{}, err
	}
	if err := pgxscan.Select(ctx, r.pool, &s.Parcels, `
		SELECT id, length_cm, width_cm, height_cm, gross_kg, volumetric_kg, chargeable_kg, cost
		FROM shipment_parcels WHERE shipment_id = $1 ORDER BY id`, id); err != nil {
		return Shipment{}, fmt.Errorf("load shipment parcels: %w", err)
	}
	return s, nil
}

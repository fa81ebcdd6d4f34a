package shipping

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShipment(ctx context.Context, id int64) (Shipment, error)
}

// Service quotes and records shipments.
type Service struct {
	repo        RepositoryPort
	calc        Calculator
	defaultRate decimal.Decimal
	audit       shared.AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, calc Calculator, defaultRate decimal.Decimal, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, calc: calc, defaultRate: defaultRate, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) rate(requested decimal.Decimal) decimal.Decimal {
	if requested.IsZero() {
		return s.defaultRate
	}
	return requested
}

// Quote prices parcels without persisting anything.
func (s *Service) Quote(ctx context.Context, input QuoteInput) (Quote, error) {
	return s.calc.Quote(input.Parcels, s.rate(input.RatePerKG))
}

// CreateShipment prices the parcels, issues a shipment number and stores both.
func (s *Service) CreateShipment(ctx context.Context, input CreateShipmentInput) (Shipment, error) {
	quote, err := s.calc.Quote(input.Parcels, s.rate(input.RatePerKG))
	if err != nil {
		return Shipment{}, err
	}
	shipment := Shipment{
		Carrier:           input.Carrier,
		RatePerKG:         quote.RatePerKG,
		TotalChargeableKG: quote.TotalChargeableKG,
		TotalCost:         quote.TotalCost,
	}
	if input.SaleID > 0 {
		shipment.SaleID = &input.SaleID
	}
	if input.ActorID > 0 {
		shipment.CreatedBy = &input.ActorID
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, sequence.KindShipment, s.now())
		if err != nil {
			return err
		}
		shipment.ShipmentNumber = number
		created, err := tx.InsertShipment(ctx, shipment)
		if err != nil {
			return err
		}
		created.Parcels = make([]ParcelQuote, 0, len(quote.Parcels))
		for _, p := range quote.Parcels {
			stored, err := tx.InsertParcel(ctx, created.ID, p)
			if err != nil {
				return err
			}
			created.Parcels = append(created.Parcels, stored)
		}
		shipment = created
		return nil
	})
	if err != nil {
		return Shipment{}, err
	}

	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "shipments.create",
			Entity:   "shipment",
			EntityID: strconv.FormatInt(shipment.ID, 10),
			Meta: map[string]any{
				"shipment_number": shipment.ShipmentNumber,
				"total_cost":      shipment.TotalCost.StringFixed(2),
			},
		})
		if err != nil {
			s.logger.Warn("audit shipment", slog.Any("error", err))
		}
	}
	return shipment, nil
}

// GetShipment returns a stored shipment.
func (s *Service) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	if id <= 0 {
		return Shipment{}, fmt.Errorf("%w: shipment id required", shared.ErrValidation)
	}
	return s.repo.GetShipment(ctx, id)
}

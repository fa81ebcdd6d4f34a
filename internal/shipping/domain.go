package shipping

import (
	"time"

	"github.com/shopspring/decimal"
)

// Parcel is one box as measured at packing, in centimetres and kilograms.
type Parcel struct {
	LengthCM decimal.Decimal `db:"length_cm" json:"length_cm"`
	WidthCM  decimal.Decimal `db:"width_cm" json:"width_cm"`
	HeightCM decimal.Decimal `db:"height_cm" json:"height_cm"`
	GrossKG  decimal.Decimal `db:"gross_kg" json:"gross_kg"`
}

// ParcelQuote is a parcel with its computed weights and cost.
type ParcelQuote struct {
	ID int64 `db:"id" json:"id,omitempty"`
	Parcel
	VolumetricKG decimal.Decimal `db:"volumetric_kg" json:"volumetric_kg"`
	ChargeableKG decimal.Decimal `db:"chargeable_kg" json:"chargeable_kg"`
	Cost         decimal.Decimal `db:"cost" json:"cost"`
}

// Quote prices a set of parcels at one rate.
type Quote struct {
	RatePerKG         decimal.Decimal `json:"rate_per_kg"`
	TotalChargeableKG decimal.Decimal `json:"total_chargeable_kg"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	Parcels           []ParcelQuote   `json:"parcels"`
}

// QuoteInput requests a price. A zero RatePerKG uses the configured rate.
type QuoteInput struct {
	RatePerKG decimal.Decimal `json:"rate_per_kg"`
	Parcels   []Parcel        `json:"parcels" validate:"required,min=1"`
}

// Shipment is a persisted, numbered consignment.
type Shipment struct {
	ID                int64           `db:"id" json:"id"`
	ShipmentNumber    string          `db:"shipment_number" json:"shipment_number"`
	SaleID            *int64          `db:"sale_id" json:"sale_id,omitempty"`
	Carrier           string          `db:"carrier" json:"carrier"`
	RatePerKG         decimal.Decimal `db:"rate_per_kg" json:"rate_per_kg"`
	TotalChargeableKG decimal.Decimal `db:"total_chargeable_kg" json:"total_chargeable_kg"`
	TotalCost         decimal.Decimal `db:"total_cost" json:"total_cost"`
	CreatedBy         *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	Parcels           []ParcelQuote   `db:"-" json:"parcels"`
}

// CreateShipmentInput describes a shipment to number and persist.
type CreateShipmentInput struct {
	SaleID    int64           `json:"sale_id" validate:"omitempty,gt=0"`
	Carrier   string          `json:"carrier" validate:"required,max=80"`
	RatePerKG decimal.Decimal `json:"rate_per_kg"`
	Parcels   []Parcel        `json:"parcels" validate:"required,min=1"`
	ActorID   int64           `json:"-"`
}

package shipping

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// DefaultVolumetricDivisor converts cubic centimetres to kilograms for most couriers.
const DefaultVolumetricDivisor = 5000

var (
	two      = decimal.NewFromInt(2)
	halfKilo = decimal.RequireFromString("0.5")
)

// Calculator prices parcels by chargeable weight.
type Calculator struct {
	Divisor         decimal.Decimal
	MinChargeableKG decimal.Decimal
}

// NewCalculator builds a Calculator. A non-positive divisor falls back to DefaultVolumetricDivisor.
func NewCalculator(divisor int64, minChargeable decimal.Decimal) Calculator {
	if divisor <= 0 {
		divisor = DefaultVolumetricDivisor
	}
	if minChargeable.IsNegative() {
		minChargeable = decimal.Zero
	}
	return Calculator{Divisor: decimal.NewFromInt(divisor), MinChargeableKG: minChargeable}
}

// VolumetricWeight is L*W*H/divisor kilograms, kept to three decimals.
func VolumetricWeight(p Parcel, divisor decimal.Decimal) decimal.Decimal {
	if !divisor.IsPositive() {
		return decimal.Zero
	}
	return p.LengthCM.Mul(p.WidthCM).Mul(p.HeightCM).DivRound(divisor, 3)
}

// ChargeableWeight is the largest of gross, volumetric and minimum, rounded up to the next half kilogram.
func ChargeableWeight(gross, volumetric, minimum decimal.Decimal) decimal.Decimal {
	w := decimal.Max(gross, volumetric, minimum)
	return w.Mul(two).Ceil().Div(two)
}

// Validate rejects parcels with missing dimensions or weight.
func (p Parcel) Validate() error {
	dims := []struct {
		name  string
		value decimal.Decimal
	}{
		{"length_cm", p.LengthCM},
		{"width_cm", p.WidthCM},
		{"height_cm", p.HeightCM},
	}
	for _, d := range dims {
		if !d.value.IsPositive() {
			return fmt.Errorf("%w: %s must be positive", shared.ErrValidation, d.name)
		}
	}
	if p.GrossKG.IsNegative() {
		return fmt.Errorf("%w: gross_kg must not be negative", shared.ErrValidation)
	}
	return nil
}

// Price computes weights and cost for one parcel.
func (c Calculator) Price(p Parcel, rate decimal.Decimal) ParcelQuote {
	vol := VolumetricWeight(p, c.Divisor)
	chargeable := ChargeableWeight(p.GrossKG, vol, c.MinChargeableKG)
	return ParcelQuote{
		Parcel:       p,
		VolumetricKG: vol,
		ChargeableKG: chargeable,
		Cost:         chargeable.Mul(rate).Round(2),
	}
}

// Quote prices every parcel and totals them.
func (c Calculator) Quote(parcels []Parcel, rate decimal.Decimal) (Quote, error) {
	if len(parcels) == 0 {
		return Quote{}, fmt.Errorf("%w: at least one parcel required", shared.ErrValidation)
	}
	if rate.IsNegative() {
		return Quote{}, fmt.Errorf("%w: rate_per_kg must not be negative", shared.ErrValidation)
	}
	q := Quote{RatePerKG: rate.Round(2), TotalChargeableKG: decimal.Zero, TotalCost: decimal.Zero}
	for i, p := range parcels {
		if err := p.Validate(); err != nil {
			return Quote{}, fmt.Errorf("parcel %d: %w", i+1, err)
		}
		pq := c.Price(p, q.RatePerKG)
		q.Parcels = append(q.Parcels, pq)
		q.TotalChargeableKG = q.TotalChargeableKG.Add(pq.ChargeableKG)
		q.TotalCost = q.TotalCost.Add(pq.Cost)
	}
	return q, nil
}

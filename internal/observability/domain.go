package observability

import "github.com/prometheus/client_golang/prometheus"

// Fulfillment results used as the result label.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Domain holds counters for stock allocation and document numbering.
type Domain struct {
	fulfillments   *prometheus.CounterVec
	unitsAllocated prometheus.Counter
	sequences      *prometheus.CounterVec
}

// NewDomain registers domain collectors on registerer.
func NewDomain(registerer prometheus.Registerer) *Domain {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_backorder_fulfillments_total",
		Help: "Backorder fulfillment attempts by result.",
	}, []string{"result"})
	units := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_units_allocated_total",
		Help: "Units allocated from inventory lots to sale items.",
	})
	sequences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_sequence_numbers_issued_total",
		Help: "Document numbers issued by kind.",
	}, []string{"kind"})
	registerer.MustRegister(fulfillments, units, sequences)
	return &Domain{fulfillments: fulfillments, unitsAllocated: units, sequences: sequences}
}

// ObserveFulfillment records one fulfillment attempt.
func (d *Domain) ObserveFulfillment(result string, units int64) {
	if d == nil {
		return
	}
	d.fulfillments.WithLabelValues(result).Inc()
	if units > 0 {
		d.unitsAllocated.Add(float64(units))
	}
}

// ObserveAllocation records units allocated outside of backorder fulfillment.
func (d *Domain) ObserveAllocation(units int64) {
	if d == nil || units <= 0 {
		return
	}
	d.unitsAllocated.Add(float64(units))
}

// ObserveSequence records an issued document number.
func (d *Domain) ObserveSequence(kind string) {
	if d == nil {
		return
	}
	d.sequences.WithLabelValues(kind).Inc()
}

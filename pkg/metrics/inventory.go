package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the inventory counters.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// InventoryMetrics tracks allocation and checkout admission outcomes.
type InventoryMetrics struct {
	allocations    *prometheus.CounterVec
	allocatedUnits prometheus.Counter
	admissions     *prometheus.CounterVec
	soldOut        prometheus.Counter
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_allocations_total",
		Help: "FIFO allocation attempts by outcome.",
	}, []string{"outcome"})
	allocatedUnits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_allocated_units_total",
		Help: "Units committed to orders from stock batches.",
	})
	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_admissions_total",
		Help: "Checkout admission decisions by outcome.",
	}, []string{"outcome"})
	soldOut := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_batches_sold_out_total",
		Help: "Batches depleted by allocation.",
	})
	reg.MustRegister(allocations, allocatedUnits, admissions, soldOut)
	return &InventoryMetrics{
		allocations:    allocations,
		allocatedUnits: allocatedUnits,
		admissions:     admissions,
		soldOut:        soldOut,
	}
}

// ObserveAllocation records one allocate call and the units it committed.
func (m *InventoryMetrics) ObserveAllocation(outcome string, units int) {
	if m == nil || m.allocations == nil {
		return
	}
	m.allocations.WithLabelValues(normalizeOutcome(outcome)).Inc()
	if units > 0 {
		m.allocatedUnits.Add(float64(units))
	}
}

// ObserveAdmission records a checkout admission decision.
func (m *InventoryMetrics) ObserveAdmission(outcome string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

// IncSoldOut counts a batch reaching sold_out.
func (m *InventoryMetrics) IncSoldOut() {
	if m == nil || m.soldOut == nil {
		return
	}
	m.soldOut.Inc()
}

func normalizeOutcome(outcome string) string {
	if outcome == "" {
		return OutcomeError
	}
	return outcome
}

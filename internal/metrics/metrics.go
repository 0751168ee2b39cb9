// Package metrics holds the Prometheus instrumentation for the registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration outcomes.
const (
	ResultSuccess     = "success"
	ResultValidation  = "validation"
	ResultIncomplete  = "incomplete"
	ResultPersistence = "persistence"
	ResultError       = "error"
)

// Verification outcomes.
const (
	VerifyFound    = "found"
	VerifyNotFound = "not_found"
	VerifyInvalid  = "invalid"
)

// Metrics holds all registry metrics. A nil *Metrics is a no-op.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	AppendDuration prometheus.Histogram
	LedgerHeight   prometheus.Gauge
	Certificates   prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"result"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_verifications_total",
			Help: "Verification queries by outcome",
		}, []string{"result"}),
		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "landchain_append_duration_seconds",
			Help:    "Latency of ledger append plus certificate issuance",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		LedgerHeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "landchain_ledger_records",
			Help: "Number of records in the ledger",
		}),
		Certificates: f.NewGauge(prometheus.GaugeOpts{
			Name: "landchain_certificates",
			Help: "Number of issued certificates",
		}),
	}
}

// ObserveRegistration records one registration attempt.
func (m *Metrics) ObserveRegistration(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.AppendDuration.Observe(took.Seconds())
	}
}

// ObserveVerification records one verification query.
func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

// SetSizes updates the ledger and certificate gauges.
func (m *Metrics) SetSizes(records, certificates int) {
	if m == nil {
		return
	}
	m.LedgerHeight.Set(float64(records))
	m.Certificates.Set(float64(certificates))
}

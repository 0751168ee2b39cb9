package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRegistration(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRegistration(ResultSuccess, 5*time.Millisecond)
	m.ObserveRegistration(ResultValidation, 0)
	m.ObserveRegistration(ResultValidation, 0)

	if got := testutil.ToFloat64(m.Registrations.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.Registrations.WithLabelValues(ResultValidation)); got != 2 {
		t.Errorf("validation = %v", got)
	}
	if got := testutil.CollectAndCount(m.AppendDuration); got != 1 {
		t.Errorf("histogram series = %d", got)
	}
}

func TestSetSizes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetSizes(3, 2)
	if got := testutil.ToFloat64(m.LedgerHeight); got != 3 {
		t.Errorf("ledger height = %v", got)
	}
	if got := testutil.ToFloat64(m.Certificates); got != 2 {
		t.Errorf("certificates = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRegistration(ResultSuccess, time.Second)
	m.ObserveVerification(VerifyFound)
	m.SetSizes(1, 1)
}

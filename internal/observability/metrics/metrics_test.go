package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBillingMetricsRecordAction(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegisterer(registry, Config{ServiceName: "digiurban-billing", Environment: "test"})

	m.RecordAction("mark-paid", 3, nil)
	m.RecordAction("mark-paid", 1, errors.New("conflict"))
	m.RecordAction("cancel", 0, nil)

	if got := testutil.ToFloat64(m.invoiceActions.WithLabelValues("mark-paid", "success")); got != 3 {
		t.Fatalf("expected 3 successful mark-paid, got %v", got)
	}
	if got := testutil.ToFloat64(m.invoiceActions.WithLabelValues("mark-paid", "failure")); got != 1 {
		t.Fatalf("expected 1 failed mark-paid, got %v", got)
	}
	if got := testutil.CollectAndCount(m.invoiceActions); got != 2 {
		t.Fatalf("expected 2 series, got %d", got)
	}
}

func TestBillingMetricsNilSafe(t *testing.T) {
	var m *BillingMetrics
	m.RecordAction("cancel", 1, nil)
	m.RecordExport("csv")
	m.RecordInvoiceCreated()
}

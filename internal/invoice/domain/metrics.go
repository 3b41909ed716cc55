package domain

import "time"

// Metrics summarizes an invoice list. Cancelled invoices fall in no status
// bucket yet still count toward TotalAmount.
type Metrics struct {
	Total         int   `json:"total"`
	Pending       int   `json:"pending"`
	Paid          int   `json:"paid"`
	Overdue       int   `json:"overdue"`
	PendingAmount int64 `json:"pending_amount"`
	PaidAmount    int64 `json:"paid_amount"`
	OverdueAmount int64 `json:"overdue_amount"`
	TotalAmount   int64 `json:"total_amount"`
}

// ComputeMetrics folds invoices into Metrics, classifying overdue at now.
func ComputeMetrics(invoices []Invoice, now time.Time) Metrics {
	var m Metrics
	for _, inv := range invoices {
		m.Total++
		m.TotalAmount += inv.Amount

		switch {
		case inv.IsOverdue(now):
			m.Overdue++
			m.OverdueAmount += inv.Amount
		case inv.Status == InvoiceStatusPending:
			m.Pending++
			m.PendingAmount += inv.Amount
		case inv.Status == InvoiceStatusPaid:
			m.Paid++
			m.PaidAmount += inv.Amount
		}
	}
	return m
}

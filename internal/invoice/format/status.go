package format

import invoicedomain "github.com/digiurban/billing/internal/invoice/domain"

var statusLabels = map[invoicedomain.InvoiceStatus]string{
	invoicedomain.InvoiceStatusPending:   "Pendente",
	invoicedomain.InvoiceStatusPaid:      "Pago",
	invoicedomain.InvoiceStatusOverdue:   "Vencido",
	invoicedomain.InvoiceStatusCancelled: "Cancelado",
}

// StatusLabel is the operator-facing (pt-BR) name of a status.
func StatusLabel(status invoicedomain.InvoiceStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

package pdf

import (
	"context"
	"io"
)

// Provider renders billing documents. Inputs are already formatted for
// display so the renderer carries no currency or date rules.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
	GenerateInvoiceReport(ctx context.Context, data ReportData) (io.Reader, error)
}

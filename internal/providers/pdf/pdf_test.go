package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoice(t *testing.T) {
	p := New()

	r, err := p.GenerateInvoice(context.Background(), InvoiceData{
		IssuerName:    "DigiUrban",
		InvoiceNumber: "INV-2025-001",
		Status:        "PAGO",
		IssueDate:     "01/01/2025",
		DueDate:       "10/01/2025",
		Period:        "Janeiro 2025",
		TenantName:    "Prefeitura de São Paulo",
		TenantCNPJ:    "46.395.000/0001-39",
		Plan:          "ENTERPRISE",
		Items: []InvoiceItem{
			{Description: "Assinatura ENTERPRISE", Qty: 1, UnitPrice: "R$ 10.000,00", Amount: "R$ 10.000,00"},
		},
		Total: "R$ 10.000,00",
	})
	require.NoError(t, err)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestGenerateInvoiceReportEmpty(t *testing.T) {
	p := New()

	r, err := p.GenerateInvoiceReport(context.Background(), ReportData{
		Title:       "Faturas",
		GeneratedAt: "20/01/2025",
	})
	require.NoError(t, err)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestGenerateHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().GenerateInvoiceReport(ctx, ReportData{})
	assert.ErrorIs(t, err, context.Canceled)
}

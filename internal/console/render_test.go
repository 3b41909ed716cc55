package console

import (
	"bytes"
	"testing"
	"time"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var renderNow = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func TestStatusBadgeLabels(t *testing.T) {
	assert.Contains(t, StatusBadge(invoicedomain.InvoiceStatusPaid), "Pago")
	assert.Contains(t, StatusBadge(invoicedomain.InvoiceStatusOverdue), "Vencido")
	assert.Contains(t, StatusBadge(invoicedomain.InvoiceStatus("DRAFT")), "DRAFT")
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, invoicedomain.MockInvoices(), []string{"2"}, renderNow))

	out := buf.String()
	assert.Contains(t, out, "INV-2025-001")
	assert.Contains(t, out, "Prefeitura de Campinas")
	assert.Contains(t, out, "R$ 10.000,00")
	assert.Contains(t, out, "Cancelado")
	assert.Contains(t, out, "* ")
}

func TestRenderMetrics(t *testing.T) {
	m := invoicedomain.ComputeMetrics(invoicedomain.MockInvoices(), renderNow)

	var buf bytes.Buffer
	require.NoError(t, RenderMetrics(&buf, m))
	assert.Contains(t, buf.String(), "R$ 32.500,00")
	assert.Contains(t, buf.String(), "Vencidas")
}

func TestRenderDetail(t *testing.T) {
	inv := invoicedomain.MockInvoices()[2]

	var buf bytes.Buffer
	require.NoError(t, RenderDetail(&buf, inv, renderNow))
	out := buf.String()
	assert.Contains(t, out, "INV-2025-003")
	assert.Contains(t, out, "Vencido")
	assert.Contains(t, out, "R$ 2.500,00")
}

package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportCSV(t *testing.T) {
	f := newFixture(t)

	file, err := f.svc.Export(context.Background(), invoicedomain.ExportRequest{Format: "CSV"})
	require.NoError(t, err)
	assert.Equal(t, "invoices_2025-01-20.csv", file.Filename)
	assert.Equal(t, contentTypeCSV, file.ContentType)

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, exportHeader, records[0])

	first := records[1]
	assert.Equal(t, "INV-2025-001", first[0])
	assert.Equal(t, "Prefeitura de São Paulo", first[1])
	assert.Equal(t, "PAID", first[4])
	assert.Equal(t, "10000.00", first[8])
	assert.Equal(t, "2025-01-08", first[9])
}

func TestExportHonoursFilter(t *testing.T) {
	f := newFixture(t)

	file, err := f.svc.Export(context.Background(), invoicedomain.ExportRequest{
		Format: "csv",
		Filter: invoicedomain.Filter{Plan: "PROFESSIONAL"},
	})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "INV-2025-002", records[1][0])
	assert.Equal(t, "INV-2025-004", records[2][0])
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)

	file, err := f.svc.Export(context.Background(), invoicedomain.ExportRequest{Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "invoices_2025-01-20.xlsx", file.Filename)
	assert.Equal(t, contentTypeXLSX, file.ContentType)

	book, err := excelize.OpenReader(bytes.NewReader(file.Body))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Faturas")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "Número", rows[0][0])
	assert.Equal(t, "INV-2025-003", rows[3][0])
}

func TestExportPDFReport(t *testing.T) {
	f := newFixture(t)

	file, err := f.svc.Export(context.Background(), invoicedomain.ExportRequest{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "invoices_2025-01-20.pdf", file.Filename)
	assert.Equal(t, contentTypePDF, file.ContentType)
	require.Greater(t, len(file.Body), 4)
	assert.Equal(t, "%PDF", string(file.Body[:4]))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Export(context.Background(), invoicedomain.ExportRequest{Format: "docx"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidExportFormat)

	_, err = f.svc.Export(context.Background(), invoicedomain.ExportRequest{Format: "csv", Filter: invoicedomain.Filter{Plan: "GOLD"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPlan)
}

func TestDocument(t *testing.T) {
	f := newFixture(t)

	file, err := f.svc.Document(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-001.pdf", file.Filename)
	assert.Equal(t, contentTypePDF, file.ContentType)
	assert.Equal(t, "%PDF", string(file.Body[:4]))

	_, err = f.svc.Document(context.Background(), "999")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestFilterLabel(t *testing.T) {
	assert.Equal(t, "Todas as faturas", filterLabel(invoicedomain.Filter{Status: "all"}))
	assert.Equal(t, "Filtros: status=PAID, plano=STARTER, busca=santos",
		filterLabel(invoicedomain.Filter{Status: "paid", Plan: "starter", Search: "santos"}))
}

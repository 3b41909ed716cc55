package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/format"
	"github.com/digiurban/billing/internal/providers/pdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeader = []string{
	"Número", "Prefeitura", "CNPJ", "Plano", "Status", "Status efetivo",
	"Período", "Vencimento", "Valor", "Pago em", "Cancelado em",
}

func ParseExportFormat(raw string) (invoicedomain.ExportFormat, error) {
	f := invoicedomain.ExportFormat(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case invoicedomain.ExportFormatCSV, invoicedomain.ExportFormatPDF, invoicedomain.ExportFormatXLSX:
		return f, nil
	default:
		return "", invoicedomain.ErrInvalidExportFormat
	}
}

func (s *Service) Export(ctx context.Context, req invoicedomain.ExportRequest) (invoicedomain.ExportFile, error) {
	exportFormat, err := ParseExportFormat(req.Format)
	if err != nil {
		return invoicedomain.ExportFile{}, err
	}

	invoices, err := s.listFiltered(ctx, req.Filter)
	if err != nil {
		return invoicedomain.ExportFile{}, err
	}

	now := s.clock.Now()
	file := invoicedomain.ExportFile{
		Filename: fmt.Sprintf("invoices_%s.%s", now.Format("2006-01-02"), exportFormat),
	}

	switch exportFormat {
	case invoicedomain.ExportFormatCSV:
		file.ContentType = contentTypeCSV
		file.Body, err = renderCSV(invoices)
	case invoicedomain.ExportFormatXLSX:
		file.ContentType = contentTypeXLSX
		file.Body, err = renderXLSX(invoices)
	case invoicedomain.ExportFormatPDF:
		file.ContentType = contentTypePDF
		file.Body, err = s.renderReport(ctx, invoices, req.Filter, now)
	}
	if err != nil {
		s.logger(ctx).Error("invoice export failed", zap.String("format", string(exportFormat)), zap.Error(err))
		return invoicedomain.ExportFile{}, err
	}

	s.metrics.RecordExport(string(exportFormat))
	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, "", nil, "invoice.exported", "invoice", nil, map[string]any{
			"format":   string(exportFormat),
			"count":    len(invoices),
			"filename": file.Filename,
		})
	}
	return file, nil
}

// Document renders one invoice as a PDF.
func (s *Service) Document(ctx context.Context, id string) (invoicedomain.ExportFile, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return invoicedomain.ExportFile{}, err
	}

	data := pdf.InvoiceData{
		IssuerName:    "DigiUrban Tecnologia",
		IssuerEmail:   "financeiro@digiurban.com.br",
		InvoiceNumber: inv.Number,
		Status:        format.StatusLabel(inv.EffectiveStatus),
		IssueDate:     format.Date(inv.CreatedAt),
		DueDate:       format.Date(inv.DueDate),
		Period:        inv.Period,
		TenantName:    inv.Tenant.Name,
		TenantCNPJ:    inv.Tenant.TaxID,
		TenantEmail:   inv.Tenant.BillingEmail,
		Plan:          string(inv.Plan),
		Total:         format.BRL(inv.Amount),
	}
	for _, item := range inv.Items {
		data.Items = append(data.Items, pdf.InvoiceItem{
			Description: item.Description,
			Qty:         item.Quantity,
			UnitPrice:   format.BRL(item.UnitPrice),
			Amount:      format.BRL(item.Total),
		})
	}

	r, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		return invoicedomain.ExportFile{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return invoicedomain.ExportFile{}, err
	}

	return invoicedomain.ExportFile{
		Filename:    fmt.Sprintf("%s.pdf", inv.Number),
		ContentType: contentTypePDF,
		Body:        body,
	}, nil
}

func exportRow(inv invoicedomain.Invoice) []string {
	return []string{
		inv.Number,
		inv.Tenant.Name,
		inv.Tenant.TaxID,
		string(inv.Plan),
		string(inv.Status),
		string(inv.EffectiveStatus),
		inv.Period,
		inv.DueDate.Format("2006-01-02"),
		format.Decimal(inv.Amount),
		optionalDate(inv.PaidAt),
		optionalDate(inv.CancelledAt),
	}
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func renderCSV(invoices []invoicedomain.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if err := w.Write(exportRow(inv)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(invoices []invoicedomain.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Faturas"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]any, 0, len(exportHeader))
	for _, h := range exportHeader {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, err
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	for i, inv := range invoices {
		cols := exportRow(inv)
		row := make([]any, 0, len(cols))
		for j, value := range cols {
			if j == 8 {
				row = append(row, float64(inv.Amount)/100)
				continue
			}
			row = append(row, value)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if len(invoices) > 0 {
		last := strconv.Itoa(len(invoices) + 1)
		if err := f.SetCellStyle(sheet, "I2", "I"+last, money); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "K", 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) renderReport(ctx context.Context, invoices []invoicedomain.Invoice, filter invoicedomain.Filter, now time.Time) ([]byte, error) {
	m := invoicedomain.ComputeMetrics(invoices, now)

	report := pdf.ReportData{
		Title:       "Faturas DigiUrban",
		GeneratedAt: now.Format("02/01/2006 15:04"),
		FilterLabel: filterLabel(filter),
		Summary: []pdf.SummaryLine{
			{Label: "Total", Count: m.Total, Amount: format.BRL(m.TotalAmount)},
			{Label: "Pendentes", Count: m.Pending, Amount: format.BRL(m.PendingAmount)},
			{Label: "Pagas", Count: m.Paid, Amount: format.BRL(m.PaidAmount)},
			{Label: "Vencidas", Count: m.Overdue, Amount: format.BRL(m.OverdueAmount)},
		},
	}
	for _, inv := range invoices {
		report.Rows = append(report.Rows, pdf.ReportRow{
			Number:  inv.Number,
			Tenant:  inv.Tenant.Name,
			CNPJ:    inv.Tenant.TaxID,
			Plan:    string(inv.Plan),
			Status:  format.StatusLabel(inv.EffectiveStatus),
			Period:  inv.Period,
			DueDate: format.Date(inv.DueDate),
			Amount:  format.BRL(inv.Amount),
		})
	}

	r, err := s.pdf.GenerateInvoiceReport(ctx, report)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func filterLabel(f invoicedomain.Filter) string {
	parts := []string{}
	if v := strings.TrimSpace(f.Status); v != "" && !strings.EqualFold(v, invoicedomain.FilterAll) {
		parts = append(parts, "status="+strings.ToUpper(v))
	}
	if v := strings.TrimSpace(f.Plan); v != "" && !strings.EqualFold(v, invoicedomain.FilterAll) {
		parts = append(parts, "plano="+strings.ToUpper(v))
	}
	if v := strings.TrimSpace(f.TenantID); v != "" && !strings.EqualFold(v, invoicedomain.FilterAll) {
		parts = append(parts, "prefeitura="+v)
	}
	if f.Search != "" {
		parts = append(parts, "busca="+f.Search)
	}
	if len(parts) == 0 {
		return "Todas as faturas"
	}
	return "Filtros: " + strings.Join(parts, ", ")
}

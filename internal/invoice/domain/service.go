package domain

import (
	"context"
	"errors"
	"time"
)

type ListInvoiceRequest struct {
	Filter Filter
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type CreateInvoiceItemRequest struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type CreateInvoiceRequest struct {
	TenantID    string                     `json:"tenant_id"`
	Plan        string                     `json:"plan"`
	PeriodStart time.Time                  `json:"period_start"`
	DueDate     *time.Time                 `json:"due_date,omitempty"`
	Items       []CreateInvoiceItemRequest `json:"items"`
}

type CancelInvoiceRequest struct {
	ID     string
	Reason string
}

type BulkActionRequest struct {
	Action     string   `json:"action"`
	InvoiceIDs []string `json:"invoiceIds"`
}

// BulkActionResult lists the invoices an action was applied to and the ones
// it deliberately left alone (reminders inside their cooldown window).
type BulkActionResult struct {
	Action    Action   `json:"action"`
	Processed []string `json:"processed"`
	Skipped   []string `json:"skipped,omitempty"`
}

type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

type ExportRequest struct {
	Format string
	Filter Filter
}

// ExportFile is a rendered invoice list ready to be downloaded.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

type GenerateResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

type Service interface {
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	Summary(context.Context, ListInvoiceRequest) (Metrics, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)

	MarkPaid(ctx context.Context, id string) (Invoice, error)
	Cancel(context.Context, CancelInvoiceRequest) (Invoice, error)
	SendReminder(ctx context.Context, id string) (Invoice, error)
	BulkAction(context.Context, BulkActionRequest) (BulkActionResult, error)

	Export(context.Context, ExportRequest) (ExportFile, error)
	Document(ctx context.Context, id string) (ExportFile, error)

	GeneratePeriodInvoices(ctx context.Context, periodStart time.Time) (GenerateResult, error)
	ReconcileOverdue(ctx context.Context) (int, error)
}

var (
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvoiceNotFound         = errors.New("invoice_not_found")
	ErrInvalidAction           = errors.New("invalid_action")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidStatusFilter     = errors.New("invalid_status_filter")
	ErrInvalidStatusMode       = errors.New("invalid_status_mode")
	ErrInvalidPlan             = errors.New("invalid_plan")
	ErrInvalidTenant           = errors.New("invalid_tenant")
	ErrInvalidItems            = errors.New("invalid_items")
	ErrInvalidPeriod           = errors.New("invalid_period")
	ErrInvalidDueDate          = errors.New("invalid_due_date")
	ErrInvalidExportFormat     = errors.New("invalid_export_format")
	ErrEmptySelection          = errors.New("empty_selection")
	ErrBulkTooLarge            = errors.New("bulk_selection_too_large")
	ErrInvoiceAlreadyPaid      = errors.New("invoice_already_paid")
	ErrInvoiceCancelled        = errors.New("invoice_cancelled")
	ErrInvoiceAlreadyCancelled = errors.New("invoice_already_cancelled")
	ErrReminderNotAllowed      = errors.New("reminder_not_allowed")
	ErrReminderThrottled       = errors.New("reminder_throttled")
	ErrTenantInactive          = errors.New("tenant_inactive")
)

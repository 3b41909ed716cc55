// Package domain contains the invoice model and the pure rules evaluated over invoice lists.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/digiurban/billing/internal/tenant/domain"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Plan aliases the tenant subscription tier.
type Plan = tenantdomain.Plan

// InvoiceSource tells generated subscription invoices apart from manual ones.
type InvoiceSource string

const (
	InvoiceSourceSubscription InvoiceSource = "SUBSCRIPTION"
	InvoiceSourceManual       InvoiceSource = "MANUAL"
)

// Invoice is a billing document issued to a tenant.
//
// Amount is never persisted. Repositories and constructors fill it from the
// items through Recalculate, so amount always equals the sum of item totals.
type Invoice struct {
	ID              snowflake.ID        `gorm:"primaryKey" json:"id"`
	Number          string              `gorm:"type:text;not null;uniqueIndex" json:"number"`
	TenantID        snowflake.ID        `gorm:"not null;index" json:"tenant_id"`
	Tenant          tenantdomain.Tenant `gorm:"foreignKey:TenantID" json:"tenant"`
	Plan            Plan                `gorm:"type:text;not null" json:"plan"`
	Status          InvoiceStatus       `gorm:"type:text;not null;index" json:"status"`
	EffectiveStatus InvoiceStatus       `gorm:"-" json:"effective_status,omitempty"`
	Source          InvoiceSource       `gorm:"type:text;not null" json:"source"`
	Currency        string              `gorm:"type:text;not null" json:"currency"`
	Amount          int64               `gorm:"-" json:"amount"`
	Period          string              `gorm:"type:text;not null" json:"period"`
	PeriodStart     time.Time           `gorm:"not null;index" json:"period_start"`
	DueDate         time.Time           `gorm:"not null" json:"due_date"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason    string              `gorm:"type:text" json:"cancel_reason,omitempty"`
	ReminderCount   int                 `gorm:"not null;default:0" json:"reminder_count"`
	LastReminderAt  *time.Time          `json:"last_reminder_at,omitempty"`
	Items           []InvoiceItem       `gorm:"foreignKey:InvoiceID" json:"items"`
	Metadata        datatypes.JSONMap   `json:"metadata,omitempty"`
	CreatedAt       time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Position    int          `gorm:"not null" json:"position"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Quantity    int64        `gorm:"not null" json:"quantity"`
	UnitPrice   int64        `gorm:"not null" json:"unit_price"`
	Total       int64        `gorm:"-" json:"total"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// LineTotal is quantity times unit price.
func (i InvoiceItem) LineTotal() int64 {
	return i.Quantity * i.UnitPrice
}

// Recalculate refreshes the derived item totals and the invoice amount.
func (i *Invoice) Recalculate() {
	var amount int64
	for idx := range i.Items {
		i.Items[idx].Total = i.Items[idx].LineTotal()
		amount += i.Items[idx].Total
	}
	i.Amount = amount
}

// IsOverdue reports whether the invoice counts as overdue at now: either it
// was stored as OVERDUE or it is still PENDING after its due date.
func (i Invoice) IsOverdue(now time.Time) bool {
	switch i.Status {
	case InvoiceStatusOverdue:
		return true
	case InvoiceStatusPending:
		return i.DueDate.Before(now)
	default:
		return false
	}
}

// StatusAt projects the stored status onto now without mutating it.
func (i Invoice) StatusAt(now time.Time) InvoiceStatus {
	if i.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// InvoiceSequence backs human invoice numbers per scope (year or tenant and year).
type InvoiceSequence struct {
	Scope     string    `gorm:"primaryKey;type:text"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }

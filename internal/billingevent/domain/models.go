package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventInvoiceCreated      = "invoice.created"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceCancelled    = "invoice.cancelled"
	EventInvoiceReminderSent = "invoice.reminder_sent"
	EventInvoiceOverdue      = "invoice.overdue"
)

// BillingEvent captures outbox events for billing workflows. Rows are written
// in the same transaction as the state change and relayed to the broker later.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   string            `gorm:"type:text;not null;index"`
	AggregateID snowflake.ID      `gorm:"not null;index"`
	Payload     datatypes.JSONMap `gorm:"not null"`
	DedupeKey   *string           `gorm:"type:varchar(191);uniqueIndex"`
	Published   bool              `gorm:"not null;default:false;index"`
	PublishedAt *time.Time
	Attempts    int       `gorm:"not null;default:0"`
	LastError   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

type Repository interface {
	// Insert reports false when an event with the same dedupe key already exists.
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) (bool, error)
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]*BillingEvent, error)
	MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, ids []snowflake.ID, reason string) error
}

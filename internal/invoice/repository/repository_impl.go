package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/invoice/domain"
	tenantdomain "github.com/digiurban/billing/internal/tenant/domain"
	"github.com/digiurban/billing/pkg/db/option"
	"github.com/digiurban/billing/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var withRelations = option.Func(func(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Tenant").
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc, id asc")
		})
})

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, number, tenant_id, plan, status, source, currency, period, period_start,
			due_date, paid_at, cancelled_at, cancel_reason, reminder_count, last_reminder_at,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Number,
		invoice.TenantID,
		invoice.Plan,
		invoice.Status,
		invoice.Source,
		invoice.Currency,
		invoice.Period,
		invoice.PeriodStart,
		invoice.DueDate,
		invoice.PaidAt,
		invoice.CancelledAt,
		invoice.CancelReason,
		invoice.ReminderCount,
		invoice.LastReminderAt,
		invoice.Metadata,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
	if err != nil {
		return err
	}

	items := make([]*domain.InvoiceItem, 0, len(invoice.Items))
	for i := range invoice.Items {
		invoice.Items[i].InvoiceID = invoice.ID
		items = append(items, &invoice.Items[i])
	}
	if err := repository.On[domain.InvoiceItem](db).Create(ctx, items...); err != nil {
		return err
	}

	invoice.Recalculate()
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	invoices, err := r.find(ctx, db, []option.QueryOption{option.WithWhere("invoices.id = ?", id)})
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return invoices[0], nil
}

// FindForUpdate loads and row-locks the given invoices, returning them in id order.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.Int64())
	}
	return r.find(ctx, db, []option.QueryOption{
		option.WithIDs("invoices.id", raw),
		option.WithSortBy("id", "asc"),
		option.ForUpdate(),
	})
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	opts := []option.QueryOption{}
	if filter.TenantID != 0 {
		opts = append(opts, option.WithWhere("invoices.tenant_id = ?", filter.TenantID))
	}
	if filter.Status != "" {
		opts = append(opts, option.WithWhere("invoices.status = ?", filter.Status))
	}
	if filter.Plan != "" {
		opts = append(opts, option.WithWhere("invoices.plan = ?", filter.Plan))
	}
	opts = append(opts, option.WithSortBy("number", "asc"), option.WithSortBy("id", "asc"))
	return r.find(ctx, db, opts)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error {
	result := db.WithContext(ctx).Model(&domain.Invoice{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

// LockTenant takes the tenant row lock that serializes invoice generation
// for that tenant until the surrounding transaction ends.
func (r *repo) LockTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	tenant, err := repository.On[tenantdomain.Tenant](db).First(ctx,
		option.WithWhere("id = ?", tenantID),
		option.ForUpdate(),
	)
	if err != nil {
		return err
	}
	if tenant == nil {
		return domain.ErrInvalidTenant
	}
	return nil
}

func (r *repo) ExistsForPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, periodStart time.Time, source domain.InvoiceSource) (bool, error) {
	count, err := repository.On[domain.Invoice](db).Count(ctx,
		option.WithWhere("tenant_id = ? AND period_start = ? AND source = ?", tenantID, periodStart, source),
		option.WithWhere("status <> ?", domain.InvoiceStatusCancelled),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListPendingDueBefore(ctx context.Context, db *gorm.DB, now time.Time) ([]*domain.Invoice, error) {
	return r.find(ctx, db, []option.QueryOption{
		option.WithWhere("invoices.status = ? AND invoices.due_date < ?", domain.InvoiceStatusPending, now),
		option.WithSortBy("due_date", "asc"),
		option.ForUpdate(),
	})
}

// NextSequence increments the counter for scope and returns the new value.
// The UPDATE holds the row lock until the surrounding transaction ends, so
// concurrent allocators for the same scope serialize.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, scope string, now time.Time) (int64, error) {
	db = db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.InvoiceSequence{
		Scope:     scope,
		LastValue: 0,
		UpdatedAt: now,
	}).Error; err != nil {
		return 0, err
	}

	if err := db.Exec(
		`UPDATE invoice_sequences SET last_value = last_value + 1, updated_at = ? WHERE scope = ?`,
		now,
		scope,
	).Error; err != nil {
		return 0, err
	}

	var next int64
	if err := db.Raw(
		`SELECT last_value FROM invoice_sequences WHERE scope = ?`,
		scope,
	).Scan(&next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) find(ctx context.Context, db *gorm.DB, opts []option.QueryOption) ([]*domain.Invoice, error) {
	opts = append([]option.QueryOption{withRelations}, opts...)
	invoices, err := repository.On[domain.Invoice](db).Find(ctx, opts...)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		inv.Recalculate()
	}
	return invoices, nil
}

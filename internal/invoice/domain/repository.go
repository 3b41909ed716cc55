package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter holds the criteria pushed down to SQL. Free-text search and
// effective-status matching stay in Filter.Match.
type ListFilter struct {
	TenantID snowflake.ID
	Status   InvoiceStatus
	Plan     Plan
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error
	LockTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error
	ExistsForPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, periodStart time.Time, source InvoiceSource) (bool, error)
	ListPendingDueBefore(ctx context.Context, db *gorm.DB, now time.Time) ([]*Invoice, error)
	NextSequence(ctx context.Context, db *gorm.DB, scope string, now time.Time) (int64, error)
}

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/repository"
	"github.com/digiurban/billing/internal/migration"
	tenantdomain "github.com/digiurban/billing/internal/tenant/domain"
	dbpkg "github.com/digiurban/billing/pkg/db"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	for _, tenant := range domain.MockTenants() {
		require.NoError(t, db.Create(&tenant).Error)
	}
	repo := repository.Provide()
	for _, inv := range domain.MockInvoices() {
		inv := inv
		require.NoError(t, repo.Insert(context.Background(), db, &inv))
	}
	return db
}

func TestNextSequenceIncrementsPerScope(t *testing.T) {
	db := newTestDB(t)
	repo := repository.Provide()
	ctx := context.Background()
	now := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextSequence(ctx, db, "invoice:2025", now)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := repo.NextSequence(ctx, db, "invoice:2026", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestFindByIDLoadsRelations(t *testing.T) {
	db := newTestDB(t)

	inv, err := repository.Provide().FindByID(context.Background(), db, snowflake.ID(1))
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "Prefeitura de São Paulo", inv.Tenant.Name)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, int64(1_000_000), inv.Amount)

	missing, err := repository.Provide().FindByID(context.Background(), db, snowflake.ID(42))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPushesDownCriteria(t *testing.T) {
	db := newTestDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	all, err := repo.List(ctx, db, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "INV-2025-001", all[0].Number)

	pending, err := repo.List(ctx, db, domain.ListFilter{Status: domain.InvoiceStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	professional, err := repo.List(ctx, db, domain.ListFilter{Plan: tenantdomain.PlanProfessional, TenantID: 104})
	require.NoError(t, err)
	require.Len(t, professional, 1)
	assert.Equal(t, "INV-2025-004", professional[0].Number)
}

func TestUpdateMissingInvoice(t *testing.T) {
	db := newTestDB(t)

	err := repository.Provide().Update(context.Background(), db, snowflake.ID(42), map[string]any{"status": domain.InvoiceStatusPaid})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestExistsForPeriodIgnoresCancelled(t *testing.T) {
	db := newTestDB(t)
	repo := repository.Provide()
	ctx := context.Background()
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	exists, err := repo.ExistsForPeriod(ctx, db, 102, jan, domain.InvoiceSourceSubscription)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForPeriod(ctx, db, 105, jan, domain.InvoiceSourceSubscription)
	require.NoError(t, err)
	assert.False(t, exists)
}

// subscriptionCopy returns Campinas' January subscription invoice under a new
// id and number.
func subscriptionCopy(id int64, number string, status domain.InvoiceStatus) domain.Invoice {
	inv := domain.MockInvoices()[1]
	inv.ID = snowflake.ID(id)
	inv.Number = number
	inv.Status = status
	inv.Items[0].ID = snowflake.ID(id*10 + 1)
	return inv
}

func TestInsertRejectsSecondSubscriptionInvoiceForPeriod(t *testing.T) {
	db := newTestDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	dup := subscriptionCopy(20, "INV-2025-020", domain.InvoiceStatusPending)
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.Insert(ctx, tx, &dup)
	})
	require.Error(t, err)
	assert.True(t, dbpkg.IsDuplicateKeyErr(err), err)

	var count int64
	require.NoError(t, db.Model(&domain.Invoice{}).
		Where("tenant_id = ? AND period_start = ?", 102, dup.PeriodStart).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Manual and cancelled invoices for the same period stay allowed.
	manual := subscriptionCopy(21, "INV-2025-021", domain.InvoiceStatusPending)
	manual.Source = domain.InvoiceSourceManual
	require.NoError(t, repo.Insert(ctx, db, &manual))

	cancelled := subscriptionCopy(22, "INV-2025-022", domain.InvoiceStatusCancelled)
	require.NoError(t, repo.Insert(ctx, db, &cancelled))
}

func TestLockTenant(t *testing.T) {
	db := newTestDB(t)
	repo := repository.Provide()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.LockTenant(context.Background(), tx, 102)
	}))
	assert.ErrorIs(t, repo.LockTenant(context.Background(), db, 999), domain.ErrInvalidTenant)
}

func TestListPendingDueBefore(t *testing.T) {
	db := newTestDB(t)

	due, err := repository.Provide().ListPendingDueBefore(context.Background(), db, time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "INV-2025-002", due[0].Number)
}

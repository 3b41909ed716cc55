package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	"github.com/digiurban/billing/internal/audit/repository"
	"github.com/digiurban/billing/internal/auditcontext"
	"github.com/digiurban/billing/internal/clock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clk clock.Clock) (auditdomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}), db
}

func TestAuditLogUsesContextMetadata(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC))
	svc, db := newTestService(t, clk)

	ctx := auditcontext.WithActor(context.Background(), "user", "ops@digiurban.com.br")
	ctx = auditcontext.WithRequestID(ctx, "req-1")
	ctx = auditcontext.WithIPAddress(ctx, "10.0.0.1")

	target := "1"
	require.NoError(t, svc.AuditLog(ctx, "", nil, "invoice.paid", "invoice", &target, map[string]any{
		"number": "INV-2025-002",
	}))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "ops@digiurban.com.br", *entry.ActorID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "INV-2025-002", entry.Metadata["number"])
	require.NotNil(t, entry.IPAddress)
	assert.Nil(t, entry.UserAgent)
	assert.True(t, entry.CreatedAt.Equal(clk.Now()))
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, db := newTestService(t, clock.SystemClock{})

	require.NoError(t, svc.AuditLog(context.Background(), "", nil, "invoice.created", "", nil, nil))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), entry.ActorType)
	assert.Equal(t, "unknown", entry.TargetType)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t, clock.SystemClock{})

	err := svc.AuditLog(context.Background(), "", nil, "  ", "invoice", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndOrders(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clk)
	ctx := context.Background()

	require.NoError(t, svc.AuditLog(ctx, "", nil, "invoice.paid", "invoice", nil, nil))
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctx, "", nil, "invoice.cancelled", "invoice", nil, nil))
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctx, "", nil, "invoice.paid", "invoice", nil, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "invoice.paid"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.True(t, resp.AuditLogs[0].CreatedAt.After(resp.AuditLogs[1].CreatedAt))
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t, clock.SystemClock{})
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestListInvoiceTrailPages(t *testing.T) {
	svc, _ := newTestService(t, clock.SystemClock{})
	ctx := auditcontext.WithActor(context.Background(), "user", "900")

	target := "2"
	other := "4"
	for _, action := range []string{"invoice.reminder_sent", "invoice.reminder_sent", "invoice.paid"} {
		require.NoError(t, svc.AuditLog(ctx, "", nil, action, auditdomain.TargetInvoice, &target, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, "", nil, "invoice.cancelled", auditdomain.TargetInvoice, &other, nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{InvoiceID: "2", ActorID: "900", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.Equal(t, "invoice.paid", first.AuditLogs[0].Action)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{InvoiceID: "2", Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.Equal(t, "invoice.reminder_sent", second.AuditLogs[0].Action)
	assert.Empty(t, second.NextCursor)
}

func TestListRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t, clock.SystemClock{})

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{Cursor: "not-an-id"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidCursor)
}
